package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// RegistrationHandler serves POST /v1/auth/registration.
type RegistrationHandler struct {
	Engine *service.Engine
}

// ServeHTTP godoc
//
//	@Summary		Register a user
//	@Description	Creates a user with the "user" privilege. Logins are 4-63 characters without whitespace.
//	@Description	Passwords are 7-99 characters with at least one digit, one lowercase and one uppercase letter.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RegistrationRequest	true	"login, password, name, email"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.APIError	"malformed body"
//	@Failure		409		{object}	authsdk.APIError	"login already registered"
//	@Failure		422		{object}	authsdk.APIError	"per-field validation errors"
//	@Router			/v1/auth/registration [post].
func (h *RegistrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegistrationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		slogx.FromContext(r.Context()).Debug("registration body rejected", "err", err)
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.Engine.Register(r.Context(), service.RegistrationCandidate{
		Login:    req.Login,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}
