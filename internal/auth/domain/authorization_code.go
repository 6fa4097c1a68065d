package domain

import "time"

// AuthorizationCode is the short-lived grant issued after a password check.
// It lives in the key-value store under its own opaque value.
type AuthorizationCode struct {
	UserID    string
	Privilege string
	Challenge string // base64url(sha256(verifier)), no padding
	State     string
	Used      bool
}

// LoginThrottle tracks consecutive failed logins for one username.
type LoginThrottle struct {
	Attempts     int
	BlockedUntil *time.Time
}

// Blocked reports whether a lockout is set and still in the future.
func (l LoginThrottle) Blocked(now time.Time) bool {
	return l.BlockedUntil != nil && l.BlockedUntil.After(now)
}
