//go:build e2e

package auth_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRedisOutage verifies that logins keep working while redis is down and
// that the service reconnects once it is back.
func TestRedisOutage(t *testing.T) {
	baseURL, redisC := setupAuthWithRedis(t)
	client := authsdk.NewSDKClient(baseURL)
	registerAndLogin(t, client)

	health, err := client.GetReadiness(t.Context())
	assertHealthy(t, health, err)
	require.Equal(t, "up", health.Checks.KV)

	timeout := 5 * time.Second
	require.NoError(t, redisC.Stop(t.Context(), &timeout))

	tok, err := client.Login(t.Context(), testUsername, testPassword)
	require.NoError(t, err)
	assertTokenResponse(t, tok)

	health, err = client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "degraded", health.Status)

	require.NoError(t, redisC.Start(t.Context()))
	require.Eventually(t, func() bool {
		h, err := client.GetReadiness(t.Context())
		return err == nil && h.Checks.KV == "up"
	}, 30*time.Second, 500*time.Millisecond)
}
