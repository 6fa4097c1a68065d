package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
	"github.com/aussiebroadwan/keyhouse/pkg/kv"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

const (
	DefaultCodeTTL          = 5 * time.Minute
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// PasswordHasher is satisfied by *cryptox.Hasher.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encodedHash string) (bool, error)
}

// TokenCodec is satisfied by *jwtx.Codec.
type TokenCodec interface {
	CreateAccessToken(subject string, claims map[string]any) (string, error)
	CreateOpaqueToken() (string, error)
	Decode(token string) (jwtx.Payload, error)
	AccessTTL() time.Duration
}

// EngineConfig holds the tunables of the authorization flow. Zero values
// fall back to the package defaults.
type EngineConfig struct {
	CodeTTL          time.Duration
	RefreshTTL       time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration

	Logger *slog.Logger

	// OnLockout, if set, is called each time a login gets locked out.
	OnLockout func(username string)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Deps are the collaborators the engine works with.
type Deps struct {
	Store  store.Store
	KV     kv.Store
	Hasher PasswordHasher
	Codec  TokenCodec
}

// Engine runs registration, the authorization code flow with PKCE, refresh
// token rotation and revocation. Codes and login throttles live in the KV
// store, so an Engine holds no mutable state of its own and is safe for
// concurrent use.
type Engine struct {
	cfg    EngineConfig
	store  store.Store
	kv     kv.Store
	hasher PasswordHasher
	codec  TokenCodec
	log    *slog.Logger
}

func NewEngine(cfg EngineConfig, deps Deps) *Engine {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slogx.Discard()
	}

	return &Engine{
		cfg:    cfg,
		store:  deps.Store,
		kv:     deps.KV,
		hasher: deps.Hasher,
		codec:  deps.Codec,
		log:    logger.With("component", "auth"),
	}
}

func (e *Engine) now() time.Time { return e.cfg.Now() }
