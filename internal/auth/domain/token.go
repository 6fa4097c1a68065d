package domain

import "time"

// TokenFamily is what a successful exchange or refresh hands back to the
// caller. It is never stored.
type TokenFamily struct {
	AccessToken  string
	ExpiresIn    time.Duration
	RefreshToken string
	CSRFToken    string
}

// RefreshToken models the stored refresh token record in the DB.
// Only fingerprints of the refresh and csrf values are persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	CSRFHash  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
