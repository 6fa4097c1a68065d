package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Default token TTL constants for standard OAuth2/JWT flows.
// These provide sensible security defaults but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// ClaimPrivilege carries the privilege label of the subject.
const ClaimPrivilege = "privilege"

// registered claim names are owned by the codec and never copied from or
// into caller claims.
var registered = map[string]struct{}{
	"sub": {}, "exp": {}, "iat": {}, "nbf": {}, "iss": {}, "aud": {}, "jti": {},
}

// Payload is what a verified access token carries.
type Payload struct {
	Subject   string
	Claims    map[string]any
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// String returns a custom claim as a string, or "" when missing or not a string.
func (p Payload) String(name string) string {
	v, _ := p.Claims[name].(string)
	return v
}

// Privilege is shorthand for the privilege claim.
func (p Payload) Privilege() string {
	return p.String(ClaimPrivilege)
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
