package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
)

type usersRepo struct {
	q *queries
}

// lookupColumn maps a typed lookup to its column. Unknown fields never reach SQL.
func lookupColumn(f store.UserField) (string, error) {
	switch f {
	case store.UserByID:
		return "id", nil
	case store.UserByLogin:
		return "login", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported user lookup %s", f)
	}
}

func (r *usersRepo) FindUser(ctx context.Context, q store.UserLookup) (domain.User, bool, error) {
	column, err := lookupColumn(q.By)
	if err != nil {
		return domain.User{}, false, err
	}

	row := r.q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, q.Value)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(mapNotFound(err), store.ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return u, true, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Privilege == "" {
		u.Privilege = domain.PrivilegeUser
	}

	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Login, u.Name, u.Email, u.PasswordHash, u.Privilege,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return domain.User{}, mapConflict(err)
	}
	return u, nil
}

func (r *usersRepo) SetPrivilege(ctx context.Context, login, privilege string) (domain.User, error) {
	res, err := r.q.db.ExecContext(ctx,
		`UPDATE users SET privilege = ?, updated_at = ? WHERE login = ?`,
		privilege, toMillis(time.Now().UTC()), login,
	)
	if err != nil {
		return domain.User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.User{}, err
	}
	if n == 0 {
		return domain.User{}, store.ErrNotFound
	}

	row := r.q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = ?`, login)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func scanUser(s scanner) (domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	err := s.Scan(&u.ID, &u.Login, &u.Name, &u.Email, &u.PasswordHash, &u.Privilege, &created, &updated)
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}
