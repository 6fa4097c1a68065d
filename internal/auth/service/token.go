package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
	"github.com/aussiebroadwan/keyhouse/pkg/idx"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// errReuse marks a rotation attempt on an already revoked refresh token.
var errReuse = errors.New("refresh token reuse")

// ExchangeToken redeems an authorization code for a token family.
//
// A missing, used or state-mismatched code returns ErrInvalidCode. A verifier
// that does not hash to the stored challenge returns ErrPKCEFailed and
// leaves the code redeemable. The code is marked used with a compare-and-swap
// so concurrent exchanges of one code have exactly one winner.
func (e *Engine) ExchangeToken(ctx context.Context, code, verifier, state string) (domain.TokenFamily, error) {
	l := slogx.FromContext(ctx)
	if code == "" {
		return domain.TokenFamily{}, ErrInvalidCode
	}
	topic := codeTopic(code)

	fields, ok, err := e.kv.Get(ctx, topic)
	if err != nil {
		return domain.TokenFamily{}, err
	}
	grant := decodeCode(fields)
	if !ok || grant.Used ||
		subtle.ConstantTimeCompare([]byte(grant.State), []byte(state)) != 1 {
		return domain.TokenFamily{}, ErrInvalidCode
	}

	if !verifyPKCE(verifier, grant.Challenge) {
		l.Info("pkce verification failed")
		return domain.TokenFamily{}, ErrPKCEFailed
	}

	won, err := e.kv.CompareAndSwapField(ctx, topic, fieldUsed, flagUnused, flagUsed)
	if err != nil {
		return domain.TokenFamily{}, err
	}
	if !won {
		l.Warn("authorization code redeemed concurrently")
		return domain.TokenFamily{}, ErrInvalidCode
	}

	family, err := e.issueFamily(ctx, e.store, grant.UserID, grant.Privilege)
	if err != nil {
		return domain.TokenFamily{}, err
	}

	l.Info("authorization code redeemed", slog.String("user_id", grant.UserID))
	return family, nil
}

// Refresh rotates a refresh token. The presented csrf value must be the one
// issued with it. The presented record is revoked and a new family is
// minted for its owner.
//
// Presenting a token that is already revoked is treated as reuse: every
// refresh token of the owner is revoked and ErrRefreshFailed is returned.
func (e *Engine) Refresh(ctx context.Context, token, csrf string) (domain.TokenFamily, error) {
	l := slogx.FromContext(ctx)
	if token == "" {
		return domain.TokenFamily{}, ErrRefreshFailed
	}

	rec, ok, err := e.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return domain.TokenFamily{}, err
	}
	if !ok {
		return domain.TokenFamily{}, ErrRefreshFailed
	}

	if !cryptox.MatchesFingerprint(csrf, rec.CSRFHash) {
		l.Info("refresh csrf mismatch", slog.String("user_id", rec.UserID))
		return domain.TokenFamily{}, ErrCSRFFailed
	}

	if rec.Revoked {
		return domain.TokenFamily{}, e.reuseDetected(ctx, rec)
	}
	if rec.Expired(e.now()) {
		return domain.TokenFamily{}, ErrRefreshFailed
	}

	user, ok, err := e.store.Users().FindUser(ctx, store.ByID(rec.UserID))
	if err != nil {
		return domain.TokenFamily{}, err
	}
	if !ok {
		return domain.TokenFamily{}, ErrRefreshFailed
	}

	var family domain.TokenFamily
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		// Re-read inside the transaction so two concurrent rotations of the
		// same token cannot both succeed.
		current, ok, err := tx.RefreshTokens().FindToken(ctx, rec.TokenHash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRefreshFailed
		}
		if current.Revoked {
			return errReuse
		}

		current.Revoked = true
		if _, err := tx.RefreshTokens().UpdateToken(ctx, current); err != nil {
			return err
		}

		family, err = e.issueFamily(ctx, tx, user.ID, user.Privilege)
		return err
	})
	if errors.Is(err, errReuse) {
		return domain.TokenFamily{}, e.reuseDetected(ctx, rec)
	}
	if err != nil {
		return domain.TokenFamily{}, err
	}

	l.Info("refresh token rotated", slog.String("user_id", user.ID))
	return family, nil
}

// RevokeOne revokes a single refresh token. Unknown or already revoked
// tokens are a no-op.
func (e *Engine) RevokeOne(ctx context.Context, token string) error {
	rec, ok, err := e.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(token))
	if err != nil || !ok || rec.Revoked {
		return err
	}

	rec.Revoked = true
	if _, err := e.store.RefreshTokens().UpdateToken(ctx, rec); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("refresh token revoked", slog.String("user_id", rec.UserID))
	return nil
}

// RevokeAll revokes every refresh token owned by the owner of token.
// Unknown tokens are a no-op.
func (e *Engine) RevokeAll(ctx context.Context, token string) error {
	rec, ok, err := e.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(token))
	if err != nil || !ok {
		return err
	}

	n, err := e.revokeAllFor(ctx, rec.UserID)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("refresh tokens revoked",
		slog.String("user_id", rec.UserID),
		slog.Int("count", n),
	)
	return nil
}

// Identify resolves the user behind a bearer access token.
func (e *Engine) Identify(ctx context.Context, accessToken string) (domain.User, error) {
	payload, err := e.codec.Decode(accessToken)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, ok, err := e.store.Users().FindUser(ctx, store.ByID(payload.Subject))
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	return user, nil
}

// issueFamily mints an access token plus a fresh refresh/csrf pair and
// persists the refresh record through repo.
func (e *Engine) issueFamily(ctx context.Context, repo store.Store, userID, privilege string) (domain.TokenFamily, error) {
	now := e.now()

	access, err := e.codec.CreateAccessToken(userID, map[string]any{
		jwtx.ClaimPrivilege: privilege,
	})
	if err != nil {
		return domain.TokenFamily{}, err
	}
	refresh, err := e.codec.CreateOpaqueToken()
	if err != nil {
		return domain.TokenFamily{}, err
	}
	csrf, err := e.codec.CreateOpaqueToken()
	if err != nil {
		return domain.TokenFamily{}, err
	}

	_, err = repo.RefreshTokens().CreateToken(ctx, domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(refresh),
		CSRFHash:  cryptox.FingerprintToken(csrf),
		ExpiresAt: now.Add(e.cfg.RefreshTTL),
	})
	if err != nil {
		return domain.TokenFamily{}, err
	}

	return domain.TokenFamily{
		AccessToken:  access,
		ExpiresIn:    e.codec.AccessTTL(),
		RefreshToken: refresh,
		CSRFToken:    csrf,
	}, nil
}

func (e *Engine) reuseDetected(ctx context.Context, rec domain.RefreshToken) error {
	n, err := e.revokeAllFor(ctx, rec.UserID)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Warn("refresh token reuse detected",
		slog.String("user_id", rec.UserID),
		slog.String("token_id", rec.ID),
		slog.Int("revoked", n),
	)
	return ErrRefreshFailed
}

func (e *Engine) revokeAllFor(ctx context.Context, userID string) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		tokens, err := tx.RefreshTokens().ListTokensForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if t.Revoked {
				continue
			}
			t.Revoked = true
			if _, err := tx.RefreshTokens().UpdateToken(ctx, t); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// RefreshTTL is the lifetime of issued refresh tokens.
func (e *Engine) RefreshTTL() time.Duration { return e.cfg.RefreshTTL }
