// internal/models/match.go
package models

import "time"

// MatchStatus is the lifecycle state of a match document.
type MatchStatus string

const (
	MatchActive   MatchStatus = "active"
	MatchArchived MatchStatus = "archived"
)

// Match is an upcoming match with its participant and reserve rosters.
// Participants are capacity-bounded; reserves are an unbounded FIFO waitlist.
type Match struct {
	ID           string        `json:"id" firestore:"-"`
	Date         time.Time     `json:"date" firestore:"date"`
	Participants []RosterEntry `json:"participants" firestore:"participants"`
	Reserves     []RosterEntry `json:"reserves" firestore:"reserves"`
	Status       MatchStatus   `json:"status" firestore:"status"`
	CreatedBy    string        `json:"createdBy" firestore:"createdBy"`
	CreatedAt    time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt" firestore:"updatedAt"`
}

// NewMatch returns an active match with empty rosters.
func NewMatch(id string, date time.Time, createdBy string, now time.Time) *Match {
	return &Match{
		ID:           id,
		Date:         date,
		Participants: []RosterEntry{},
		Reserves:     []RosterEntry{},
		Status:       MatchActive,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Participants = cloneEntries(m.Participants)
	c.Reserves = cloneEntries(m.Reserves)
	return &c
}

// IsEmpty reports whether nobody holds a participant seat.
func (m *Match) IsEmpty() bool {
	return len(m.Participants) == 0
}

// IndexOf returns the position of entryID in the given list, or -1.
func IndexOf(list []RosterEntry, entryID string) int {
	for i, e := range list {
		if e.EntryID == entryID {
			return i
		}
	}
	return -1
}

// HasUser reports whether uid holds a non-guest entry in either roster.
func (m *Match) HasUser(uid string) bool {
	for _, list := range [][]RosterEntry{m.Participants, m.Reserves} {
		if i := IndexOf(list, uid); i >= 0 && !list[i].IsGuest() {
			return true
		}
	}
	return false
}

// GuestsOf returns the guest entries sponsored by uid across both rosters.
func (m *Match) GuestsOf(uid string) []RosterEntry {
	var out []RosterEntry
	for _, list := range [][]RosterEntry{m.Participants, m.Reserves} {
		for _, e := range list {
			if e.IsGuest() && e.SponsorUserID == uid {
				out = append(out, e)
			}
		}
	}
	return out
}

func cloneEntries(in []RosterEntry) []RosterEntry {
	out := make([]RosterEntry, len(in))
	copy(out, in)
	return out
}
