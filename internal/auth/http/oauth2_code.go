package http

import (
	"net/http"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// CodeHandler serves POST /v1/auth/code, the credential check of the
// authorization code flow.
type CodeHandler struct {
	Engine *service.Engine
}

// ServeHTTP godoc
//
//	@Summary		Request an authorization code
//	@Description	Checks the credentials and returns a single-use code bound to the PKCE challenge (S256).
//	@Description	Repeated failures for one username lock it out for a while; locked attempts return 429 with blocked_until.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.CodeRequest	true	"username, password, code_challenge, state"
//	@Success		200		{object}	authsdk.CodeResponse
//	@Failure		400		{object}	authsdk.APIError	"malformed body or missing code_challenge"
//	@Failure		401		{object}	authsdk.APIError	"invalid credentials"
//	@Failure		429		{object}	authsdk.APIError	"too many attempts"
//	@Header			429		{string}	Retry-After			"seconds until the lockout ends"
//	@Router			/v1/auth/code [post].
func (h *CodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	grant, err := h.Engine.Authorize(r.Context(), service.AuthorizeRequest{
		Username:      req.Username,
		Password:      req.Password,
		CodeChallenge: req.CodeChallenge,
		State:         req.State,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.CodeResponse{
		Code:  grant.Code,
		State: grant.State,
	})
}
