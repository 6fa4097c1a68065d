package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// RevokeHandler serves POST /v1/auth/revoke. The token is read from the body
// only: the refresh cookie is scoped to the refresh path and never reaches
// this endpoint. Unknown and already revoked tokens still return 200 so the
// endpoint cannot be used to probe tokens.
type RevokeHandler struct {
	Engine  *service.Engine
	cookies cookieJar
}

// ServeHTTP godoc
//
//	@Summary		Revoke refresh tokens
//	@Description	Revokes the given refresh token, or every refresh token of its owner when all is true.
//	@Description	Both cookies are cleared.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RevokeRequest	true	"token, all"
//	@Success		200		{object}	authsdk.RevokeResponse
//	@Failure		400		{object}	authsdk.APIError	"no token presented"
//	@Router			/v1/auth/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RevokeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	revoke := h.Engine.RevokeOne
	if req.All {
		revoke = h.Engine.RevokeAll
	}
	if err := revoke(r.Context(), req.Token); err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.cookies.clear(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokeResponse{Revoked: true})
}
