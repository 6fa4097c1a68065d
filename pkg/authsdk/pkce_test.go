package authsdk

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEChallenge(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCEChallenge()
	require.NoError(t, err)
	require.NotNil(t, pkce)

	require.NotEmpty(t, pkce.Verifier)
	require.NotEmpty(t, pkce.Challenge)

	// Verify challenge is correctly computed from verifier
	hash := sha256.Sum256([]byte(pkce.Verifier))
	expectedChallenge := base64.RawURLEncoding.EncodeToString(hash[:])
	require.Equal(t, expectedChallenge, pkce.Challenge)
	require.False(t, strings.HasSuffix(pkce.Challenge, "="), "challenge must not be padded")
}

func TestGeneratePKCEChallenge_Unique(t *testing.T) {
	t.Parallel()

	a, err := GeneratePKCEChallenge()
	require.NoError(t, err)
	b, err := GeneratePKCEChallenge()
	require.NoError(t, err)

	require.NotEqual(t, a.Verifier, b.Verifier)
	require.NotEqual(t, a.Challenge, b.Challenge)
}

func TestChallengeFor_KnownVector(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"pIGBSrXj-y6Zqk0qS4Rgsn4FL49XmLomL2jtKm2yeI0",
		ChallengeFor("dBjftJeZ4CVP-mB0unHnhKaHhxJ8C0RDEmMOtq1Z4gk"),
	)
}
