package roster

import "errors"

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrAlreadyRegistered  = errors.New("already registered for this match")
	ErrNotRegistered      = errors.New("not registered for this match")
	ErrCapacityExceeded   = errors.New("participant list is full")
	ErrGuestLimit         = errors.New("too many guests for one sponsor")
	ErrGuestNotPromotable = errors.New("guests cannot be promoted to participants")
	ErrGuestNotFound      = errors.New("guest not found")
	ErrInvalidGuestName   = errors.New("guest name must not be empty")
)

// rejections are expected outcomes of user input, not faults.
var rejections = map[error]string{
	ErrMatchNotFound:      "match_not_found",
	ErrAlreadyRegistered:  "already_registered",
	ErrNotRegistered:      "not_registered",
	ErrCapacityExceeded:   "capacity_exceeded",
	ErrGuestLimit:         "guest_limit",
	ErrGuestNotPromotable: "guest_not_promotable",
	ErrGuestNotFound:      "guest_not_found",
	ErrInvalidGuestName:   "invalid_guest_name",
}

// Outcome returns a stable code for err: "ok", one of the rejection codes,
// or "error" for anything unexpected.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for target, code := range rejections {
		if errors.Is(err, target) {
			return code
		}
	}
	return "error"
}

// IsRejection reports whether err is an expected domain outcome.
func IsRejection(err error) bool {
	o := Outcome(err)
	return o != "ok" && o != "error"
}
