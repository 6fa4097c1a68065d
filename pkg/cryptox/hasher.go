package cryptox

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// DefaultHashWorkers is the number of hashes allowed to run at once.
const DefaultHashWorkers = 3

// HasherConfig configures a Hasher.
type HasherConfig struct {
	Pepper  string
	Workers int
}

// Hasher hashes and verifies passwords with at most Workers computations in
// flight. Callers beyond that wait for a slot or for their context to end.
type Hasher struct {
	pepper string
	slots  *semaphore.Weighted
}

// NewHasher builds a Hasher.
func NewHasher(cfg HasherConfig) *Hasher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultHashWorkers
	}
	return &Hasher{
		pepper: cfg.Pepper,
		slots:  semaphore.NewWeighted(int64(workers)),
	}
}

// Hash returns an Argon2id PHC string for password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	return HashPassword(password, h.pepper)
}

// Verify reports whether password matches encodedHash. A mismatch is not an
// error; malformed hashes are.
func (h *Hasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	err := VerifyPassword(password, h.pepper, encodedHash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPasswordMismatch):
		return false, nil
	default:
		return false, err
	}
}
