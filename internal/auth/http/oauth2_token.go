package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// TokenHandler serves POST /v1/auth/token. The access token is returned in
// the body; the refresh and csrf tokens are set as cookies.
type TokenHandler struct {
	Engine  *service.Engine
	cookies cookieJar
}

// ServeHTTP godoc
//
//	@Summary		Exchange an authorization code
//	@Description	Redeems a code with its PKCE verifier and state. Any failed check returns the same invalid_grant error.
//	@Description	Sets the refresh_token (HttpOnly) and csrf_token cookies on the refresh path.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.TokenRequest	true	"code, verifier, state"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_grant"
//	@Header			200		{string}	Cache-Control		"no-store"
//	@Router			/v1/auth/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	family, err := h.Engine.ExchangeToken(r.Context(), req.Code, req.Verifier, req.State)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.cookies.set(w, family)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(family))
}
