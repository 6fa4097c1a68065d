package authsdk

import "time"

// ============================================================================
// Registration
// ============================================================================

// RegistrationRequest is the body of POST /v1/auth/registration.
type RegistrationRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UserResponse holds the public fields of a user. Returned by registration
// and by GET /v1/auth/me.
type UserResponse struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Privilege string `json:"privilege,omitempty"`
}

// ============================================================================
// Authorization Code Flow
// ============================================================================

// CodeRequest is the body of POST /v1/auth/code.
type CodeRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	CodeChallenge string `json:"code_challenge"`
	State         string `json:"state"`
}

// CodeResponse carries the authorization code and echoes the caller's state.
type CodeResponse struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// TokenRequest is the body of POST /v1/auth/token.
type TokenRequest struct {
	Code     string `json:"code"`
	Verifier string `json:"verifier"`
	State    string `json:"state"`
}

// TokenResponse is returned by the token and refresh endpoints. The refresh
// and csrf tokens travel as cookies, never in the body.
type TokenResponse struct {
	// TokenType is always "bearer"
	TokenType string `json:"token_type"`

	// AccessToken is the signed JWT used to authenticate API requests
	AccessToken string `json:"access_token"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`
}

// RevokeRequest is the body of POST /v1/auth/revoke. With All set, every
// refresh token of the token's owner is revoked.
type RevokeRequest struct {
	Token string `json:"token"`
	All   bool   `json:"all"`
}

// RevokeResponse confirms a revocation.
type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// ============================================================================
// Administration
// ============================================================================

// ThrottleResponse is the login throttle of one username.
type ThrottleResponse struct {
	Username string `json:"username"`

	// Attempts counts failed logins since the last success or lockout
	Attempts int `json:"attempts"`

	// BlockedUntil is set while a lockout is active
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz includes Checks).
type HealthResponse struct {
	// Status is "ok", "degraded" (key-value fallback) or "unavailable"
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness results for dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of each dependency.
type HealthChecks struct {
	// Database is "ok" or the ping error
	Database string `json:"database"`

	// KV is the key-value facade state ("up", "down" or "syncing")
	KV string `json:"kv"`
}
