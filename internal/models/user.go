package models

import "time"

// Role is the flat role enumeration of a user profile.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
	RoleCapitana   Role = "capitana"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleCapitana:
		return true
	}
	return false
}

// IsAdmin reports whether the role may run privileged roster operations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type UserProfile struct {
	UID               string    `json:"uid" firestore:"-"`
	Email             string    `json:"email" firestore:"email"`
	DisplayName       string    `json:"displayName" firestore:"displayName"`
	CustomDisplayName string    `json:"customDisplayName,omitempty" firestore:"customDisplayName"`
	PhotoURL          string    `json:"photoUrl,omitempty" firestore:"photoUrl"`
	Role              Role      `json:"role" firestore:"role"`
	LastLogin         time.Time `json:"lastLogin" firestore:"lastLogin"`

	Stats UserStats `json:"stats" firestore:"stats"`
}

// Name is the name shown on rosters: the custom override if set.
func (u *UserProfile) Name() string {
	if u.CustomDisplayName != "" {
		return u.CustomDisplayName
	}
	return u.DisplayName
}

// UserStats are the aggregate attendance counters of a user.
type UserStats struct {
	TotalSessions   int `json:"totalSessions" firestore:"totalSessions"`
	AsParticipant   int `json:"asParticipant" firestore:"asParticipant"`
	AsReserve       int `json:"asReserve" firestore:"asReserve"`
	FriendsBrought  int `json:"friendsBrought" firestore:"friendsBrought"`
	SetsPlayed      int `json:"setsPlayed" firestore:"setsPlayed"`
	SetsWon         int `json:"setsWon" firestore:"setsWon"`
	SetsLost        int `json:"setsLost" firestore:"setsLost"`
	PointDifference int `json:"pointDifference" firestore:"pointDifference"`
}

// StatsDelta is a signed change to the attendance counters.
type StatsDelta struct {
	TotalSessions  int `json:"totalSessions"`
	AsParticipant  int `json:"asParticipant"`
	AsReserve      int `json:"asReserve"`
	FriendsBrought int `json:"friendsBrought"`
}

func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

func (d StatsDelta) Add(o StatsDelta) StatsDelta {
	return StatsDelta{
		TotalSessions:  d.TotalSessions + o.TotalSessions,
		AsParticipant:  d.AsParticipant + o.AsParticipant,
		AsReserve:      d.AsReserve + o.AsReserve,
		FriendsBrought: d.FriendsBrought + o.FriendsBrought,
	}
}

func (d StatsDelta) Negate() StatsDelta {
	return StatsDelta{
		TotalSessions:  -d.TotalSessions,
		AsParticipant:  -d.AsParticipant,
		AsReserve:      -d.AsReserve,
		FriendsBrought: -d.FriendsBrought,
	}
}

// Apply returns s with the delta added to the attendance counters.
func (s UserStats) Apply(d StatsDelta) UserStats {
	s.TotalSessions += d.TotalSessions
	s.AsParticipant += d.AsParticipant
	s.AsReserve += d.AsReserve
	s.FriendsBrought += d.FriendsBrought
	return s
}

// WithAttendance returns s with the attendance counters replaced by d.
func (s UserStats) WithAttendance(d StatsDelta) UserStats {
	s.TotalSessions = d.TotalSessions
	s.AsParticipant = d.AsParticipant
	s.AsReserve = d.AsReserve
	s.FriendsBrought = d.FriendsBrought
	return s
}
