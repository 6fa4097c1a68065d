package authsdk

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
)

// ErrNoRefreshCookie is returned by Refresh and Revoke when the client holds
// no refresh token cookie.
var ErrNoRefreshCookie = errors.New("authsdk: no refresh token cookie")

// Register creates a new user account.
func (c *SDKClient) Register(ctx context.Context, req RegistrationRequest) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, PathRegistration, req, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

// RequestCode exchanges credentials and a PKCE challenge for an authorization code.
func (c *SDKClient) RequestCode(ctx context.Context, req CodeRequest) (*CodeResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, PathCode, req, nil)
	if err != nil {
		return nil, err
	}

	var code CodeResponse
	if err := decodeJSON(resp, &code, http.StatusOK); err != nil {
		return nil, err
	}
	return &code, nil
}

// ExchangeCode redeems an authorization code. The refresh and csrf cookies
// set by the response are stored in the client's jar.
func (c *SDKClient) ExchangeCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, PathToken, req, nil)
	if err != nil {
		return nil, err
	}

	var token TokenResponse
	if err := decodeJSON(resp, &token, http.StatusOK); err != nil {
		return nil, err
	}
	return &token, nil
}

// Login runs the full code flow: it generates a PKCE pair and state,
// requests a code and exchanges it.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	pkce, err := GeneratePKCEChallenge()
	if err != nil {
		return nil, err
	}
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	code, err := c.RequestCode(ctx, CodeRequest{
		Username:      username,
		Password:      password,
		CodeChallenge: pkce.Challenge,
		State:         state,
	})
	if err != nil {
		return nil, err
	}

	return c.ExchangeCode(ctx, TokenRequest{
		Code:     code.Code,
		Verifier: pkce.Verifier,
		State:    code.State,
	})
}

// Refresh rotates the refresh token held in the jar and returns a new access token.
func (c *SDKClient) Refresh(ctx context.Context) (*TokenResponse, error) {
	csrf, ok := c.cookie(PathRefresh, CSRFTokenCookie)
	if !ok {
		return nil, ErrNoRefreshCookie
	}

	resp, err := c.doRequest(ctx, http.MethodPost, PathRefresh, nil, map[string]string{
		CSRFHeader: csrf,
	})
	if err != nil {
		return nil, err
	}

	var token TokenResponse
	if err := decodeJSON(resp, &token, http.StatusOK); err != nil {
		return nil, err
	}
	return &token, nil
}

// RefreshToken returns the refresh token currently held in the jar.
func (c *SDKClient) RefreshToken() (string, bool) {
	return c.cookie(PathRefresh, RefreshTokenCookie)
}

// Revoke revokes the jar's refresh token, or every token of its owner when
// all is set. The service clears both cookies.
func (c *SDKClient) Revoke(ctx context.Context, all bool) error {
	token, ok := c.RefreshToken()
	if !ok {
		return ErrNoRefreshCookie
	}
	return c.RevokeToken(ctx, token, all)
}

// RevokeToken revokes an explicit refresh token.
func (c *SDKClient) RevokeToken(ctx context.Context, token string, all bool) error {
	resp, err := c.doRequest(ctx, http.MethodPost, PathRevoke, RevokeRequest{Token: token, All: all}, nil)
	if err != nil {
		return err
	}

	var out RevokeResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// Me returns the user behind an access token.
func (c *SDKClient) Me(ctx context.Context, accessToken string) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, PathMe, nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}
