package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, "keyhouse-auth", cfg.Issuer)
	require.Equal(t, "HS256", cfg.Algorithm)
	require.False(t, cfg.Debug)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 5*time.Minute, cfg.CodeTTL)
	require.Equal(t, 5, cfg.MaxLoginAttempts)
	require.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 3, cfg.HashWorkers)
	require.Equal(t, 5*time.Second, cfg.RedisHealthcheckInterval)
	require.Equal(t, 10000, cfg.KVLocalCapacity)
	require.Equal(t, 72*time.Hour, cfg.TokenPurgeAfter)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_DEBUG", "true")
	t.Setenv("AUTH_TOKEN_ALGORITHM", "HS512")
	t.Setenv("AUTH_ACCESS_TTL", "30m")
	t.Setenv("AUTH_LOGIN_ATTEMPTS_BEFORE_BLOCK", "7")
	t.Setenv("AUTH_LOGIN_BLOCK_TIME", "20") // bare integers are minutes
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "3")

	cfg := LoadConfig()

	require.True(t, cfg.Debug)
	require.Equal(t, "HS512", cfg.Algorithm)
	require.Equal(t, 30*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7, cfg.MaxLoginAttempts)
	require.Equal(t, 20*time.Minute, cfg.LockoutDuration)
	require.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 3, cfg.StrictLimit.RequestsPerWindow)
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	t.Setenv("KEYHOUSE_TEST_BOOL", "nope")
	require.True(t, getEnvBoolOrDefault("KEYHOUSE_TEST_BOOL", true))

	t.Setenv("KEYHOUSE_TEST_BOOL", "0")
	require.False(t, getEnvBoolOrDefault("KEYHOUSE_TEST_BOOL", true))
}

func TestGetEnvListOrDefault(t *testing.T) {
	require.Nil(t, getEnvListOrDefault("KEYHOUSE_TEST_LIST", nil))

	t.Setenv("KEYHOUSE_TEST_LIST", " root, ,ops ,")
	require.Equal(t, []string{"root", "ops"}, getEnvListOrDefault("KEYHOUSE_TEST_LIST", nil))

	t.Setenv("KEYHOUSE_TEST_LIST", " , ")
	require.Equal(t, []string{"x"}, getEnvListOrDefault("KEYHOUSE_TEST_LIST", []string{"x"}))

	t.Setenv("AUTH_ADMIN_LOGINS", "root")
	require.Equal(t, []string{"root"}, LoadConfig().AdminLogins)
}
