package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// RefreshHandler serves POST /v1/auth/refresh. It needs the refresh_token
// and csrf_token cookies plus the csrf value echoed in the X-CSRF-Token
// header.
type RefreshHandler struct {
	Engine  *service.Engine
	cookies cookieJar
}

// ServeHTTP godoc
//
//	@Summary		Rotate the refresh token
//	@Description	Revokes the presented refresh token and issues a new family. Presenting a revoked token revokes every token of its owner.
//	@Tags			Auth
//	@Produce		json
//	@Param			X-CSRF-Token	header		string	true	"value of the csrf_token cookie"
//	@Success		200				{object}	authsdk.TokenResponse
//	@Failure		401				{object}	authsdk.APIError	"refresh_failed"
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	refresh, err := r.Cookie(authsdk.RefreshTokenCookie)
	if err != nil || refresh.Value == "" {
		authsdk.ErrRefreshFailed.WriteError(w)
		return
	}
	csrf, err := r.Cookie(authsdk.CSRFTokenCookie)
	if err != nil {
		authsdk.ErrRefreshFailed.WriteError(w)
		return
	}
	header := r.Header.Get(authsdk.CSRFHeader)
	if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(csrf.Value)) != 1 {
		log.Info("csrf header does not match cookie")
		authsdk.ErrRefreshFailed.WriteError(w)
		return
	}

	family, err := h.Engine.Refresh(r.Context(), refresh.Value, header)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.cookies.set(w, family)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(family))
}
