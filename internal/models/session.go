// internal/models/session.go
package models

import (
	"time"

	"github.com/elliotchance/pie/v2"
)

// Session is the immutable record of a closed match. The uid lists are
// derived from the rosters and only hold registered users.
type Session struct {
	ID                 string        `json:"id" firestore:"-"`
	MatchID            string        `json:"matchId" firestore:"matchId"`
	Date               time.Time     `json:"date" firestore:"date"`
	Participants       []RosterEntry `json:"participants" firestore:"participants"`
	Reserves           []RosterEntry `json:"reserves" firestore:"reserves"`
	ParticipantUserIDs []string      `json:"participantUserIds" firestore:"participantUserIds"`
	ReserveUserIDs     []string      `json:"reserveUserIds" firestore:"reserveUserIds"`
	IgnoredFromStats   bool          `json:"ignoredFromStats" firestore:"ignoredFromStats"`
	ClosedBy           string        `json:"closedBy" firestore:"closedBy"`
	ClosedAt           time.Time     `json:"closedAt" firestore:"closedAt"`
}

// NewSessionFromMatch snapshots the final rosters of m.
func NewSessionFromMatch(id string, m *Match, closedBy string, now time.Time) *Session {
	snap := m.Clone()
	return &Session{
		ID:                 id,
		MatchID:            m.ID,
		Date:               m.Date,
		Participants:       snap.Participants,
		Reserves:           snap.Reserves,
		ParticipantUserIDs: UserIDs(snap.Participants),
		ReserveUserIDs:     UserIDs(snap.Reserves),
		ClosedBy:           closedBy,
		ClosedAt:           now,
	}
}

// Involves reports whether uid was a participant or reserve.
func (s *Session) Involves(uid string) bool {
	return pie.Contains(s.ParticipantUserIDs, uid) || pie.Contains(s.ReserveUserIDs, uid)
}

// UserIDs returns the ids of the non-guest entries, in roster order.
func UserIDs(entries []RosterEntry) []string {
	users := pie.Filter(entries, func(e RosterEntry) bool { return !e.IsGuest() })
	ids := pie.Map(users, func(e RosterEntry) string { return e.EntryID })
	if ids == nil {
		return []string{}
	}
	return ids
}
