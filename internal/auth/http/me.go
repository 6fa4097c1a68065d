package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// MeHandler serves GET /v1/auth/me. It sits behind the router's gate, so a
// bearer token is always present by the time it runs.
type MeHandler struct {
	Engine *service.Engine
}

// ServeHTTP godoc
//
//	@Summary		Current user
//	@Description	Returns the user behind the bearer access token.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.APIError	"missing or invalid bearer token"
//	@Security		BearerAuth
//	@Router			/v1/auth/me [get].
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	user, err := h.Engine.Identify(r.Context(), token)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}
