package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Sizes in raw bytes. Encoded tokens are base64url without padding.
const (
	TokenSize128 = 16 // authorization codes, refresh and csrf tokens (22 chars)
	TokenSize256 = 32 // PKCE verifiers, pepper files (43 chars)
	TokenSize512 = 64 // HMAC signing secrets (86 chars)
)

// GenerateToken returns size random bytes as base64url text.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken is the SHA-256 of token as base64url text. Refresh and
// csrf tokens are persisted only as fingerprints and looked up by them.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MatchesFingerprint reports in constant time whether token hashes to
// fingerprint. An empty token never matches.
func MatchesFingerprint(token, fingerprint string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(FingerprintToken(token)), []byte(fingerprint)) == 1
}
