package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
)

type Config struct {
	Issuer    string // Optional: issuer claim for tokens (default: keyhouse-auth)
	Debug     bool   // Optional: drops the Secure flag from cookies (default: false)
	Algorithm string // Optional: HMAC signing algorithm (HS256, HS384, HS512) (default: HS256)

	SecretFile   string // Optional: path to the token signing secret (default: ./secret)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	DatabaseFile string // Optional: path to SQLite database file (default: ./auth.db)

	AccessTTL        time.Duration // Access token lifetime (default: 15m)
	RefreshTTL       time.Duration // Refresh token lifetime (default: 7 days)
	CodeTTL          time.Duration // Authorization code lifetime (default: 5m)
	MaxLoginAttempts int           // Failed logins before a lockout (default: 5)
	LockoutDuration  time.Duration // Lockout length (default: 15m)
	HashWorkers      int           // Concurrent password hashes (default: 3)
	AdminLogins      []string      // Existing logins granted the admin privilege at startup (default: none)

	RedisURL                 string        // Optional: redis://... ; empty runs on the local tier only
	RedisHealthcheckInterval time.Duration // Reconnect probe interval while redis is down (default: 5s)
	KVLocalCapacity          int           // Local tier topic capacity (default: 10000)
	KVLocalUniqueCapacity    int           // Local tier unique-key capacity (default: 10000)

	TokenPurgeAfter      time.Duration // Expired refresh tokens older than this are deleted (default: 72h)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	StrictLimit   httpx.RateLimitConfig // RATELIMIT_STRICT_*
	ModerateLimit httpx.RateLimitConfig // RATELIMIT_MODERATE_*
	PublicLimit   httpx.RateLimitConfig // RATELIMIT_PUBLIC_*
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "keyhouse-auth"),
		Debug:     getEnvBoolOrDefault("AUTH_DEBUG", false),
		Algorithm: getEnvOrDefault("AUTH_TOKEN_ALGORITHM", "HS256"),

		SecretFile:   getEnvOrDefault("AUTH_SECRET_FILE", "secret"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),

		AccessTTL:        getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:       getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		CodeTTL:          getEnvDurationOrDefault("AUTH_CODE_TTL", service.DefaultCodeTTL),
		MaxLoginAttempts: getEnvIntOrDefault("AUTH_LOGIN_ATTEMPTS_BEFORE_BLOCK", service.DefaultMaxLoginAttempts),
		LockoutDuration:  getEnvDurationOrDefault("AUTH_LOGIN_BLOCK_TIME", service.DefaultLockoutDuration),
		HashWorkers:      getEnvIntOrDefault("AUTH_HASH_WORKERS", 3),
		AdminLogins:      getEnvListOrDefault("AUTH_ADMIN_LOGINS", nil),

		RedisURL:                 os.Getenv("REDIS_URL"),
		RedisHealthcheckInterval: getEnvDurationOrDefault("REDIS_HEALTHCHECK_INTERVAL", 5*time.Second),
		KVLocalCapacity:          getEnvIntOrDefault("KV_LOCAL_CAPACITY", 10000),
		KVLocalUniqueCapacity:    getEnvIntOrDefault("KV_LOCAL_UNIQUE_CAPACITY", 10000),

		TokenPurgeAfter:      getEnvDurationOrDefault("TOKEN_PURGE_AFTER", service.DefaultTokenPurgeAfter),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		StrictLimit:   httpx.ParseRateLimitFromEnv("STRICT", httpx.StrictLimit),
		ModerateLimit: httpx.ParseRateLimitFromEnv("MODERATE", httpx.ModerateLimit),
		PublicLimit:   httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping empty items.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
