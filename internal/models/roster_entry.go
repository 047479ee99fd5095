// internal/models/roster_entry.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind tags a RosterEntry as either a registered user or a guest.
type EntryKind string

const (
	EntryUser  EntryKind = "user"
	EntryGuest EntryKind = "guest"
)

// guestIDPrefix keeps guest ids out of the user id namespace.
const guestIDPrefix = "guest-"

// RosterEntry is one line of a match roster. For users EntryID is the user's
// stable id; for guests it is a generated id and SponsorUserID names the user
// who brought them. Display fields are a snapshot taken at signup.
type RosterEntry struct {
	Kind          EntryKind `json:"kind" firestore:"kind"`
	EntryID       string    `json:"entryId" firestore:"entryId"`
	DisplayName   string    `json:"displayName" firestore:"displayName"`
	PhotoURL      string    `json:"photoUrl,omitempty" firestore:"photoUrl"`
	SponsorUserID string    `json:"sponsorUserId,omitempty" firestore:"sponsorUserId"`
	JoinedAt      time.Time `json:"joinedAt" firestore:"joinedAt"`
}

// NewUserEntry builds the roster entry of a registered user.
func NewUserEntry(uid, displayName, photoURL string, joinedAt time.Time) RosterEntry {
	return RosterEntry{
		Kind:        EntryUser,
		EntryID:     uid,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		JoinedAt:    joinedAt,
	}
}

// NewGuestEntry builds a guest entry with a fresh id.
func NewGuestEntry(name, sponsorUID string, joinedAt time.Time) RosterEntry {
	return RosterEntry{
		Kind:          EntryGuest,
		EntryID:       guestIDPrefix + uuid.NewString(),
		DisplayName:   name,
		SponsorUserID: sponsorUID,
		JoinedAt:      joinedAt,
	}
}

// IsGuest reports whether the entry is a guest brought by another user.
func (e RosterEntry) IsGuest() bool {
	return e.Kind == EntryGuest
}

// UserID returns the entry id for registered users and "" for guests.
func (e RosterEntry) UserID() string {
	if e.IsGuest() {
		return ""
	}
	return e.EntryID
}
