package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
)

type refreshTokensRepo struct {
	q *queries
}

func (r *refreshTokensRepo) FindToken(ctx context.Context, tokenHash string) (domain.RefreshToken, bool, error) {
	row := r.q.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(mapNotFound(err), store.ErrNotFound) {
			return domain.RefreshToken{}, false, nil
		}
		return domain.RefreshToken{}, false, err
	}
	return t, true, nil
}

func (r *refreshTokensRepo) CreateToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshToken, error) {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshTokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.CSRFHash, t.Revoked,
		toMillis(t.ExpiresAt), toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
	)
	if err != nil {
		return domain.RefreshToken{}, mapConflict(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) UpdateToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshToken, error) {
	t.UpdatedAt = time.Now().UTC()

	// MAX keeps revocation monotonic even if a stale record is written back.
	res, err := r.q.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = MAX(revoked, ?), updated_at = ? WHERE id = ?`,
		t.Revoked, toMillis(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.RefreshToken{}, err
	}
	if n == 0 {
		return domain.RefreshToken{}, store.ErrNotFound
	}

	row := r.q.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE id = ?`, t.ID)
	out, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return out, nil
}

func (r *refreshTokensRepo) ListTokensForUser(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	rows, err := r.q.db.QueryContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *refreshTokensRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshToken(s scanner) (domain.RefreshToken, error) {
	var (
		t                         domain.RefreshToken
		expires, created, updated int64
	)
	err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CSRFHash, &t.Revoked, &expires, &created, &updated)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}
