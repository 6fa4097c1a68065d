package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so a Tx cannot start a transaction within a transaction.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// UserField names a column a user can be looked up by.
type UserField int

const (
	UserByID UserField = iota
	UserByLogin
)

func (f UserField) String() string {
	switch f {
	case UserByID:
		return "id"
	case UserByLogin:
		return "login"
	default:
		return fmt.Sprintf("UserField(%d)", int(f))
	}
}

// UserLookup is a typed user query: one field, one value.
type UserLookup struct {
	By    UserField
	Value string
}

// ByID looks a user up by id.
func ByID(id string) UserLookup { return UserLookup{By: UserByID, Value: id} }

// ByLogin looks a user up by login.
func ByLogin(login string) UserLookup { return UserLookup{By: UserByLogin, Value: login} }

type Users interface {
	// FindUser returns ok=false when no user matches.
	FindUser(ctx context.Context, q UserLookup) (u domain.User, ok bool, err error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// A taken login yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)

	// SetPrivilege changes the privilege of the user with the given login.
	// An unknown login yields ErrNotFound.
	SetPrivilege(ctx context.Context, login, privilege string) (domain.User, error)
}

type RefreshTokens interface {
	// FindToken returns the record with the given token fingerprint.
	FindToken(ctx context.Context, tokenHash string) (t domain.RefreshToken, ok bool, err error)

	// CreateToken stores a new refresh token record.
	CreateToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshToken, error)

	// UpdateToken writes the revoked flag and bumps updated_at. Revocation
	// is monotonic: a revoked record is never un-revoked.
	UpdateToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshToken, error)

	// ListTokensForUser returns every record owned by the user, newest first.
	ListTokensForUser(ctx context.Context, userID string) ([]domain.RefreshToken, error)

	// DeleteExpiredBefore removes records that expired before cutoff and
	// returns how many were deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
