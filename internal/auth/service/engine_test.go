package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
	"github.com/aussiebroadwan/keyhouse/pkg/kv"
)

const testPassword = "TestPass6"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *Engine
	store  *sqlite.Store
	kv     kv.Store
	codec  *jwtx.Codec
	clock  *clock
}

func newFixture(t *testing.T, kvStore kv.Store) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	if kvStore == nil {
		local := kv.NewLocalStore(kv.LocalConfig{})
		t.Cleanup(func() { _ = local.Close() })
		kvStore = local
	}

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL: time.Minute,
	})
	require.NoError(t, err)

	clk := &clock{now: time.Now()}
	engine := NewEngine(EngineConfig{
		CodeTTL:          time.Minute,
		RefreshTTL:       time.Hour,
		MaxLoginAttempts: 3,
		LockoutDuration:  10 * time.Minute,
		Now:              clk.Now,
	}, Deps{
		Store:  st,
		KV:     kvStore,
		Hasher: cryptox.NewHasher(cryptox.HasherConfig{Pepper: "pepper"}),
		Codec:  codec,
	})

	return &fixture{engine: engine, store: st, kv: kvStore, codec: codec, clock: clk}
}

func (f *fixture) register(t *testing.T, login string) domain.User {
	t.Helper()
	u, err := f.engine.Register(context.Background(), RegistrationCandidate{Login: login, Password: testPassword})
	require.NoError(t, err)
	return u
}

func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// login runs authorize and exchange for login with a fresh verifier.
func (f *fixture) login(t *testing.T, login string) domain.TokenFamily {
	t.Helper()
	ctx := context.Background()
	verifier := "verifier-" + login + "-0123456789abcdef0123456789"

	grant, err := f.engine.Authorize(ctx, AuthorizeRequest{
		Username:      login,
		Password:      testPassword,
		CodeChallenge: challengeFor(verifier),
		State:         "state-1",
	})
	require.NoError(t, err)

	family, err := f.engine.ExchangeToken(ctx, grant.Code, verifier, grant.State)
	require.NoError(t, err)
	return family
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	t.Run("login too short", func(t *testing.T) {
		_, err := f.engine.Register(ctx, RegistrationCandidate{Login: "usr", Password: testPassword})
		require.ErrorIs(t, err, ErrInvalidRegistration)
	})

	t.Run("password too short", func(t *testing.T) {
		_, err := f.engine.Register(ctx, RegistrationCandidate{Login: "user", Password: "Test5"})
		require.ErrorIs(t, err, ErrInvalidRegistration)
	})

	t.Run("valid registration", func(t *testing.T) {
		u, err := f.engine.Register(ctx, RegistrationCandidate{Login: "user", Password: "TestPass6"})
		require.NoError(t, err)
		require.Equal(t, "user", u.Login)
		require.Equal(t, domain.PrivilegeUser, u.Privilege)
		require.NotEqual(t, "TestPass6", u.PasswordHash)
	})

	t.Run("login conflict", func(t *testing.T) {
		_, err := f.engine.Register(ctx, RegistrationCandidate{Login: "user", Password: "TestPass7"})
		require.ErrorIs(t, err, ErrLoginConflict)
	})
}

func TestRegistrationCandidateValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		c     RegistrationCandidate
		valid bool
	}{
		{"ok", RegistrationCandidate{Login: "alice", Password: "Secret12"}, true},
		{"ok with email", RegistrationCandidate{Login: "alice", Password: "Secret12", Email: "a@example.com"}, true},
		{"whitespace in login", RegistrationCandidate{Login: "al ice", Password: "Secret12"}, false},
		{"login too long", RegistrationCandidate{Login: string(make([]byte, 64)), Password: "Secret12"}, false},
		{"all lowercase with digit", RegistrationCandidate{Login: "alice", Password: "secret12"}, false},
		{"all uppercase with digit", RegistrationCandidate{Login: "alice", Password: "SECRET12"}, false},
		{"no digit", RegistrationCandidate{Login: "alice", Password: "SecretPass"}, false},
		{"bad email", RegistrationCandidate{Login: "alice", Password: "Secret12", Email: "nope"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestAuthorizeThrottle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t, "alice")

	attempt := func(password string) error {
		_, err := f.engine.Authorize(ctx, AuthorizeRequest{
			Username:      "alice",
			Password:      password,
			CodeChallenge: challengeFor("v"),
			State:         "s",
		})
		return err
	}

	for range 3 {
		require.ErrorIs(t, attempt("wrong"), ErrInvalidCredentials)
	}

	// Locked out: even the right password is refused.
	err := attempt(testPassword)
	var tooMany *TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
	require.WithinDuration(t, f.clock.Now().Add(10*time.Minute), tooMany.Until, time.Second)

	throttle, ok, err := f.engine.LoginThrottle(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, throttle.Attempts)

	// Lockout expires; success clears the throttle state.
	f.clock.Advance(11 * time.Minute)
	require.NoError(t, attempt(testPassword))

	_, ok, err = f.engine.LoginThrottle(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearThrottle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t, "alice")

	req := AuthorizeRequest{Username: "alice", Password: "wrong", CodeChallenge: challengeFor("v"), State: "s"}
	for range 3 {
		_, err := f.engine.Authorize(ctx, req)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	require.NoError(t, f.engine.ClearThrottle(ctx, "alice"))
	_, ok, err := f.engine.LoginThrottle(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)

	req.Password = testPassword
	_, err = f.engine.Authorize(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.engine.ClearThrottle(ctx, "nobody"))
}

func TestSetPrivilege(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t, "alice")

	u, err := f.engine.SetPrivilege(ctx, "alice", domain.PrivilegeAdmin)
	require.NoError(t, err)
	require.Equal(t, domain.PrivilegeAdmin, u.Privilege)

	family := f.login(t, "alice")
	payload, err := f.codec.Decode(family.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.PrivilegeAdmin, payload.Privilege())

	_, err = f.engine.SetPrivilege(ctx, "alice", "root")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.engine.SetPrivilege(ctx, "nobody", domain.PrivilegeAdmin)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthorizeUnknownUserCountsAsFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	req := AuthorizeRequest{Username: "ghost", Password: "x", CodeChallenge: "c", State: "s"}
	for range 3 {
		_, err := f.engine.Authorize(ctx, req)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := f.engine.Authorize(ctx, req)
	var tooMany *TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
}

func TestAuthorizeRequiresChallenge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.register(t, "alice")

	_, err := f.engine.Authorize(context.Background(), AuthorizeRequest{Username: "alice", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExchangeToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	user := f.register(t, "alice")

	verifier := "a-verifier-with-plenty-of-entropy-0123456789"
	authorize := func() Grant {
		g, err := f.engine.Authorize(ctx, AuthorizeRequest{
			Username:      "alice",
			Password:      testPassword,
			CodeChallenge: challengeFor(verifier),
			State:         "xyz",
		})
		require.NoError(t, err)
		require.Equal(t, "xyz", g.State)
		return g
	}

	t.Run("round trip", func(t *testing.T) {
		g := authorize()
		family, err := f.engine.ExchangeToken(ctx, g.Code, verifier, "xyz")
		require.NoError(t, err)
		require.NotEmpty(t, family.RefreshToken)
		require.NotEmpty(t, family.CSRFToken)
		require.Equal(t, time.Minute, family.ExpiresIn)

		payload, err := f.codec.Decode(family.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, payload.Subject)
		require.Equal(t, domain.PrivilegeUser, payload.Privilege())

		_, err = f.engine.ExchangeToken(ctx, g.Code, verifier, "xyz")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong state", func(t *testing.T) {
		g := authorize()
		_, err := f.engine.ExchangeToken(ctx, g.Code, verifier, "other")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.engine.ExchangeToken(ctx, "nope", verifier, "xyz")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("pkce failure leaves code usable", func(t *testing.T) {
		g := authorize()
		_, err := f.engine.ExchangeToken(ctx, g.Code, "wrong-verifier", "xyz")
		require.ErrorIs(t, err, ErrPKCEFailed)

		_, err = f.engine.ExchangeToken(ctx, g.Code, verifier, "xyz")
		require.NoError(t, err)
	})

	t.Run("concurrent exchange has one winner", func(t *testing.T) {
		g := authorize()

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.engine.ExchangeToken(ctx, g.Code, verifier, "xyz"); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})

	t.Run("stored record carries the grant", func(t *testing.T) {
		g := authorize()
		fields, ok, err := f.kv.Get(ctx, codeTopic(g.Code))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.AuthorizationCode{
			UserID:    user.ID,
			Privilege: domain.PrivilegeUser,
			Challenge: challengeFor(verifier),
			State:     "xyz",
		}, decodeCode(fields))

		_, err = f.engine.ExchangeToken(ctx, g.Code, verifier, "xyz")
		require.NoError(t, err)
		fields, _, err = f.kv.Get(ctx, codeTopic(g.Code))
		require.NoError(t, err)
		require.True(t, decodeCode(fields).Used)
	})

	t.Run("record without an unused flag is not redeemable", func(t *testing.T) {
		fields := encodeCode(domain.AuthorizationCode{
			UserID: user.ID, Privilege: domain.PrivilegeUser, Challenge: challengeFor(verifier), State: "xyz",
		})
		delete(fields, fieldUsed)
		require.NoError(t, f.kv.Put(ctx, codeTopic("planted"), fields, time.Minute))

		_, err := f.engine.ExchangeToken(ctx, "planted", verifier, "xyz")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("expired code", func(t *testing.T) {
		local := kv.NewLocalStore(kv.LocalConfig{})
		t.Cleanup(func() { _ = local.Close() })
		short := newFixture(t, local)
		short.engine.cfg.CodeTTL = 20 * time.Millisecond
		short.register(t, "bob")

		g, err := short.engine.Authorize(ctx, AuthorizeRequest{
			Username: "bob", Password: testPassword, CodeChallenge: challengeFor(verifier), State: "s",
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, ok, _ := local.Get(ctx, codeTopic(g.Code))
			return !ok
		}, time.Second, 10*time.Millisecond)

		_, err = short.engine.ExchangeToken(ctx, g.Code, verifier, "s")
		require.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rotates and revokes the presented token", func(t *testing.T) {
		f := newFixture(t, nil)
		user := f.register(t, "alice")
		first := f.login(t, "alice")

		second, err := f.engine.Refresh(ctx, first.RefreshToken, first.CSRFToken)
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)

		payload, err := f.codec.Decode(second.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, payload.Subject)

		old, ok, err := f.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(first.RefreshToken))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, old.Revoked)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.Refresh(ctx, "nope", "nope")
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("csrf mismatch", func(t *testing.T) {
		f := newFixture(t, nil)
		f.register(t, "alice")
		fam := f.login(t, "alice")

		_, err := f.engine.Refresh(ctx, fam.RefreshToken, "forged")
		require.ErrorIs(t, err, ErrCSRFFailed)

		// The token is still good with the right csrf.
		_, err = f.engine.Refresh(ctx, fam.RefreshToken, fam.CSRFToken)
		require.NoError(t, err)
	})

	t.Run("reuse revokes the whole user", func(t *testing.T) {
		f := newFixture(t, nil)
		user := f.register(t, "alice")
		first := f.login(t, "alice")
		other := f.login(t, "alice")

		second, err := f.engine.Refresh(ctx, first.RefreshToken, first.CSRFToken)
		require.NoError(t, err)

		_, err = f.engine.Refresh(ctx, first.RefreshToken, first.CSRFToken)
		require.ErrorIs(t, err, ErrRefreshFailed)

		tokens, err := f.store.RefreshTokens().ListTokensForUser(ctx, user.ID)
		require.NoError(t, err)
		for _, tok := range tokens {
			require.True(t, tok.Revoked)
		}

		_, err = f.engine.Refresh(ctx, second.RefreshToken, second.CSRFToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
		_, err = f.engine.Refresh(ctx, other.RefreshToken, other.CSRFToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, nil)
		f.register(t, "alice")
		fam := f.login(t, "alice")

		f.clock.Advance(2 * time.Hour)
		_, err := f.engine.Refresh(ctx, fam.RefreshToken, fam.CSRFToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("revoke one is idempotent", func(t *testing.T) {
		f := newFixture(t, nil)
		f.register(t, "alice")
		fam := f.login(t, "alice")
		keep := f.login(t, "alice")

		require.NoError(t, f.engine.RevokeOne(ctx, fam.RefreshToken))
		require.NoError(t, f.engine.RevokeOne(ctx, fam.RefreshToken))
		require.NoError(t, f.engine.RevokeOne(ctx, "unknown"))

		rec, ok, err := f.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(fam.RefreshToken))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, rec.Revoked)

		rec, _, err = f.store.RefreshTokens().FindToken(ctx, cryptox.FingerprintToken(keep.RefreshToken))
		require.NoError(t, err)
		require.False(t, rec.Revoked)
	})

	t.Run("revoke all is idempotent", func(t *testing.T) {
		f := newFixture(t, nil)
		alice := f.register(t, "alice")
		f.register(t, "bobby")
		fam := f.login(t, "alice")
		f.login(t, "alice")
		bob := f.login(t, "bobby")

		require.NoError(t, f.engine.RevokeAll(ctx, fam.RefreshToken))
		require.NoError(t, f.engine.RevokeAll(ctx, fam.RefreshToken))
		require.NoError(t, f.engine.RevokeAll(ctx, "unknown"))

		tokens, err := f.store.RefreshTokens().ListTokensForUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		for _, tok := range tokens {
			require.True(t, tok.Revoked)
		}

		_, err = f.engine.Refresh(ctx, bob.RefreshToken, bob.CSRFToken)
		require.NoError(t, err, "other users keep their tokens")
	})
}

func TestIdentify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	user := f.register(t, "alice")
	fam := f.login(t, "alice")

	got, err := f.engine.Identify(ctx, fam.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = f.engine.Identify(ctx, fam.AccessToken+"x")
	require.ErrorIs(t, err, ErrInvalidToken)

	ghost, err := f.codec.CreateAccessToken("01JGHOST0000000000000000000", nil)
	require.NoError(t, err)
	_, err = f.engine.Identify(ctx, ghost)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestEngineOverFacade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	facade := kv.NewFacade(kv.NewLocalStore(kv.LocalConfig{}), kv.NewRemoteStore(client), kv.FacadeConfig{
		HealthcheckInterval: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = facade.Close() })

	f := newFixture(t, facade)
	f.register(t, "alice")

	verifier := "facade-verifier-0123456789abcdef0123456789"
	g, err := f.engine.Authorize(ctx, AuthorizeRequest{
		Username: "alice", Password: testPassword, CodeChallenge: challengeFor(verifier), State: "s",
	})
	require.NoError(t, err)
	require.Equal(t, "0", mr.HGet(codeTopic(g.Code), fieldUsed))

	// Redis goes away between authorize and exchange; the code issued before
	// the outage is gone from the serving tier, so a new one is issued locally.
	mr.Close()

	g2, err := f.engine.Authorize(ctx, AuthorizeRequest{
		Username: "alice", Password: testPassword, CodeChallenge: challengeFor(verifier), State: "s",
	})
	require.NoError(t, err)
	require.Equal(t, kv.StateDown, facade.State())

	_, err = f.engine.ExchangeToken(ctx, g2.Code, verifier, "s")
	require.NoError(t, err)

	_, err = f.engine.ExchangeToken(ctx, g2.Code, verifier, "s")
	require.ErrorIs(t, err, ErrInvalidCode)
}
