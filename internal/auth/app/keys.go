package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
)

// Keys holds the two secrets the service keeps on disk.
type Keys struct {
	Secret []byte // access token signing secret
	Pepper string // appended to passwords before hashing
}

// InitKeys loads the signing secret and the password pepper, generating and
// persisting either one on first start. Losing the secret invalidates every
// access token; losing the pepper invalidates every argon2id password hash.
func InitKeys(cfg Config, logger *slog.Logger) (Keys, error) {
	secret, err := jwtx.LoadOrGenerateSecret(cfg.SecretFile)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load signing secret: %w", err)
	}

	pepper, err := cryptox.LoadOrGenerateKeyFile(cfg.PepperFile, cryptox.TokenSize256)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load pepper: %w", err)
	}

	logger.Info("keys loaded",
		"secret_file", cfg.SecretFile,
		"pepper_file", cfg.PepperFile,
		"algorithm", cfg.Algorithm,
	)
	return Keys{Secret: secret, Pepper: pepper}, nil
}
