package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// ThrottleHandler serves GET and DELETE /v1/auth/throttle/{username} for
// support staff unlocking accounts. The router restricts it to admins.
type ThrottleHandler struct {
	Engine *service.Engine
}

// ServeHTTP godoc
//
//	@Summary		Login throttle
//	@Description	GET returns the failure count and lockout of a username. DELETE clears both and returns the cleared state.
//	@Tags			Admin
//	@Produce		json
//	@Param			username	path		string	true	"login"
//	@Success		200			{object}	authsdk.ThrottleResponse
//	@Failure		401			{object}	authsdk.APIError	"missing or invalid bearer token"
//	@Failure		403			{object}	authsdk.APIError	"admin privilege required"
//	@Security		BearerAuth
//	@Router			/v1/auth/throttle/{username} [get]
//	@Router			/v1/auth/throttle/{username} [delete].
func (h *ThrottleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if r.Method == http.MethodDelete {
		if err := h.Engine.ClearThrottle(r.Context(), username); err != nil {
			writeEngineError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, throttleResponse(username, domain.LoginThrottle{}))
		return
	}

	throttle, _, err := h.Engine.LoginThrottle(r.Context(), username)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, throttleResponse(username, throttle))
}

func throttleResponse(username string, t domain.LoginThrottle) authsdk.ThrottleResponse {
	return authsdk.ThrottleResponse{
		Username:     username,
		Attempts:     t.Attempts,
		BlockedUntil: t.BlockedUntil,
	}
}
