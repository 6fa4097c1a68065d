package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// KV layout.
const (
	codeTopicPrefix     = "auth:code:"
	throttleTopicPrefix = "auth:throttle:"

	fieldUserID       = "user_id"
	fieldPrivilege    = "privilege"
	fieldChallenge    = "challenge"
	fieldState        = "state"
	fieldUsed         = "used"
	fieldAttempts     = "attempts"
	fieldBlockedUntil = "blocked_until"

	flagUnused = "0"
	flagUsed   = "1"
)

func codeTopic(code string) string         { return codeTopicPrefix + code }
func throttleTopic(username string) string { return throttleTopicPrefix + username }

// AuthorizeRequest is a username/password check bound to a PKCE challenge.
type AuthorizeRequest struct {
	Username      string
	Password      string
	CodeChallenge string
	State         string
}

// Grant is an issued authorization code with the caller's state echoed back.
type Grant struct {
	Code  string
	State string
}

// Authorize checks the credentials and issues a single-use authorization
// code bound to the PKCE challenge and state.
//
// Unknown users and wrong passwords both return ErrInvalidCredentials and
// both count towards the lockout of that username. While a lockout is active
// every attempt returns *TooManyAttemptsError, whatever the credentials.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (Grant, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(req.CodeChallenge) == "" {
		return Grant{}, fmt.Errorf("%w: code_challenge is required", ErrInvalidRequest)
	}

	throttle, err := e.loadThrottle(ctx, req.Username)
	if err != nil {
		return Grant{}, err
	}
	if throttle.Blocked(e.now()) {
		l.Info("login blocked", slog.String("username", req.Username))
		return Grant{}, &TooManyAttemptsError{Until: *throttle.BlockedUntil}
	}

	user, ok, err := e.store.Users().FindUser(ctx, store.ByLogin(req.Username))
	if err != nil {
		return Grant{}, err
	}

	valid := false
	if ok {
		valid, err = e.hasher.Verify(ctx, req.Password, user.PasswordHash)
		if err != nil {
			return Grant{}, err
		}
	}
	if !valid {
		if err := e.recordFailure(ctx, req.Username, throttle); err != nil {
			return Grant{}, err
		}
		l.Info("login failed", slog.String("username", req.Username))
		return Grant{}, ErrInvalidCredentials
	}

	if err := e.kv.Remove(ctx, throttleTopic(req.Username)); err != nil {
		return Grant{}, err
	}

	code, err := e.codec.CreateOpaqueToken()
	if err != nil {
		return Grant{}, err
	}
	grant := domain.AuthorizationCode{
		UserID:    user.ID,
		Privilege: user.Privilege,
		Challenge: req.CodeChallenge,
		State:     req.State,
	}
	if err := e.kv.Put(ctx, codeTopic(code), encodeCode(grant), e.cfg.CodeTTL); err != nil {
		return Grant{}, err
	}

	l.Info("authorization code issued", slog.String("user_id", user.ID))
	return Grant{Code: code, State: req.State}, nil
}

// LoginThrottle returns the throttle state of username. A username with no
// failures returns the zero value.
func (e *Engine) LoginThrottle(ctx context.Context, username string) (domain.LoginThrottle, bool, error) {
	fields, ok, err := e.kv.Get(ctx, throttleTopic(username))
	if err != nil || !ok {
		return domain.LoginThrottle{}, false, err
	}
	return decodeThrottle(fields), true, nil
}

// ClearThrottle drops the failure count and any lockout of username.
func (e *Engine) ClearThrottle(ctx context.Context, username string) error {
	if err := e.kv.Remove(ctx, throttleTopic(username)); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("login throttle cleared", slog.String("username", username))
	return nil
}

func (e *Engine) loadThrottle(ctx context.Context, username string) (domain.LoginThrottle, error) {
	t, _, err := e.LoginThrottle(ctx, username)
	return t, err
}

// recordFailure bumps the attempt count and starts a lockout once the
// count reaches the threshold. The state is written back without a TTL.
func (e *Engine) recordFailure(ctx context.Context, username string, t domain.LoginThrottle) error {
	t.Attempts++
	if t.Attempts >= e.cfg.MaxLoginAttempts {
		until := e.now().Add(e.cfg.LockoutDuration)
		t.BlockedUntil = &until
		t.Attempts = 0

		slogx.FromContext(ctx).Warn("login locked out",
			slog.String("username", username),
			slog.Time("until", until),
		)
		if e.cfg.OnLockout != nil {
			e.cfg.OnLockout(username)
		}
	}
	return e.kv.Put(ctx, throttleTopic(username), encodeThrottle(t), 0)
}

func encodeCode(c domain.AuthorizationCode) map[string]string {
	used := flagUnused
	if c.Used {
		used = flagUsed
	}
	return map[string]string{
		fieldUserID:    c.UserID,
		fieldPrivilege: c.Privilege,
		fieldChallenge: c.Challenge,
		fieldState:     c.State,
		fieldUsed:      used,
	}
}

// decodeCode treats anything but an explicit unused flag as used.
func decodeCode(fields map[string]string) domain.AuthorizationCode {
	return domain.AuthorizationCode{
		UserID:    fields[fieldUserID],
		Privilege: fields[fieldPrivilege],
		Challenge: fields[fieldChallenge],
		State:     fields[fieldState],
		Used:      fields[fieldUsed] != flagUnused,
	}
}

func encodeThrottle(t domain.LoginThrottle) map[string]string {
	fields := map[string]string{
		fieldAttempts:     strconv.Itoa(t.Attempts),
		fieldBlockedUntil: "",
	}
	if t.BlockedUntil != nil {
		fields[fieldBlockedUntil] = t.BlockedUntil.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

// decodeThrottle is lenient: malformed fields read as zero.
func decodeThrottle(fields map[string]string) domain.LoginThrottle {
	var t domain.LoginThrottle
	t.Attempts, _ = strconv.Atoi(fields[fieldAttempts])
	if raw := fields[fieldBlockedUntil]; raw != "" {
		if until, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t.BlockedUntil = &until
		}
	}
	return t
}

// verifyPKCE checks base64url_nopad(sha256(verifier)) against the stored challenge.
func verifyPKCE(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
}
