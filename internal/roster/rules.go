package roster

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elliotchance/pie/v2"

	"github.com/Liunai/pallavolo/internal/models"
)

// MaxNameLength bounds guest and display names, in runes.
const MaxNameLength = 40

// Policy holds the tunable roster limits.
type Policy struct {
	// Capacity is the maximum number of participants.
	Capacity int
	// GuestLimit caps guests per sponsor per match for non-admin callers.
	GuestLimit int
}

func DefaultPolicy() Policy {
	return Policy{Capacity: 14, GuestLimit: 3}
}

// Member identifies the user signing up, with the display snapshot to store.
type Member struct {
	UserID      string
	DisplayName string
	PhotoURL    string
}

type SignupRequest struct {
	Member     Member
	AsReserve  bool
	GuestNames []string
	// UnlimitedGuests lifts the per-sponsor guest limit (admins).
	UnlimitedGuests bool
}

// Placement says where the member's own entry landed.
type Placement string

const (
	PlacedParticipant Placement = "participant"
	PlacedReserve     Placement = "reserve"
	// PlacedNone means the member was already registered and only guests were added.
	PlacedNone Placement = "none"
)

type SignupResult struct {
	Match     *models.Match `json:"match"`
	Placement Placement     `json:"placement"`
	// Redirected is set when a participant signup overflowed into reserves.
	Redirected bool     `json:"redirected"`
	GuestIDs   []string `json:"guestIds"`
}

// CleanGuestNames trims names and rejects blank or overlong ones.
func CleanGuestNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || utf8.RuneCountInString(n) > MaxNameLength {
			return nil, ErrInvalidGuestName
		}
		out = append(out, n)
	}
	return out, nil
}

func applySignup(m *models.Match, p Policy, req SignupRequest, now time.Time) (SignupResult, error) {
	guests, err := CleanGuestNames(req.GuestNames)
	if err != nil {
		return SignupResult{}, err
	}
	uid := req.Member.UserID
	registered := m.HasUser(uid)
	if registered && len(guests) == 0 {
		return SignupResult{}, ErrAlreadyRegistered
	}
	if !req.UnlimitedGuests && len(m.GuestsOf(uid))+len(guests) > p.GuestLimit {
		return SignupResult{}, ErrGuestLimit
	}

	res := SignupResult{Placement: PlacedNone}
	if !registered {
		entry := models.NewUserEntry(uid, req.Member.DisplayName, req.Member.PhotoURL, now)
		switch {
		case req.AsReserve:
			m.Reserves = append(m.Reserves, entry)
			res.Placement = PlacedReserve
		case len(m.Participants) < p.Capacity:
			m.Participants = append(m.Participants, entry)
			res.Placement = PlacedParticipant
		default:
			m.Reserves = append(m.Reserves, entry)
			res.Placement = PlacedReserve
			res.Redirected = true
		}
	}

	for _, name := range guests {
		g := models.NewGuestEntry(name, uid, now)
		m.Reserves = append(m.Reserves, g)
		res.GuestIDs = append(res.GuestIDs, g.EntryID)
	}
	return res, nil
}

// applyRemove takes entryID out of the chosen list. Leaving participants
// frees a seat, which goes to the first registered user in reserves.
func applyRemove(m *models.Match, entryID string, fromReserves bool) (promoted *models.RosterEntry, err error) {
	if fromReserves {
		i := models.IndexOf(m.Reserves, entryID)
		if i < 0 {
			return nil, ErrNotRegistered
		}
		m.Reserves = removeAt(m.Reserves, i)
		return nil, nil
	}

	i := models.IndexOf(m.Participants, entryID)
	if i < 0 {
		return nil, ErrNotRegistered
	}
	m.Participants = removeAt(m.Participants, i)
	return promoteFirstReserve(m), nil
}

// applyUnsubscribe removes the user's own entry from whichever list holds it.
func applyUnsubscribe(m *models.Match, uid string) (*models.RosterEntry, error) {
	if models.IndexOf(m.Participants, uid) >= 0 {
		return applyRemove(m, uid, false)
	}
	if i := models.IndexOf(m.Reserves, uid); i >= 0 && !m.Reserves[i].IsGuest() {
		return applyRemove(m, uid, true)
	}
	return nil, ErrNotRegistered
}

func promoteFirstReserve(m *models.Match) *models.RosterEntry {
	i := pie.FindFirstUsing(m.Reserves, func(e models.RosterEntry) bool { return !e.IsGuest() })
	if i < 0 {
		return nil
	}
	e := m.Reserves[i]
	m.Reserves = removeAt(m.Reserves, i)
	m.Participants = append(m.Participants, e)
	return &e
}

func applyPromote(m *models.Match, p Policy, entryID string) error {
	if len(m.Participants) >= p.Capacity {
		return ErrCapacityExceeded
	}
	i := models.IndexOf(m.Reserves, entryID)
	if i < 0 {
		return ErrNotRegistered
	}
	e := m.Reserves[i]
	if e.IsGuest() {
		return ErrGuestNotPromotable
	}
	m.Reserves = removeAt(m.Reserves, i)
	m.Participants = append(m.Participants, e)
	return nil
}

// applyRemoveGuest drops one guest from reserves. A non-empty sponsorUID
// restricts removal to that sponsor's guests.
func applyRemoveGuest(m *models.Match, guestID, sponsorUID string) error {
	i := models.IndexOf(m.Reserves, guestID)
	if i < 0 || !m.Reserves[i].IsGuest() {
		return ErrGuestNotFound
	}
	if sponsorUID != "" && m.Reserves[i].SponsorUserID != sponsorUID {
		return ErrGuestNotFound
	}
	m.Reserves = removeAt(m.Reserves, i)
	return nil
}

func removeAt(list []models.RosterEntry, i int) []models.RosterEntry {
	out := make([]models.RosterEntry, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
