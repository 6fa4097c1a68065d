package http

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// writeEngineError maps an engine error onto its API response. Anything the
// engine does not tag is logged and reported as a server error.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var tooMany *service.TooManyAttemptsError

	switch {
	case errors.As(err, &tooMany):
		authsdk.TooManyAttempts(tooMany.Until).WriteError(w)
	case errors.Is(err, service.ErrInvalidRegistration):
		authsdk.InvalidRegistration(fieldErrors(err)).WriteError(w)
	case errors.Is(err, service.ErrLoginConflict):
		authsdk.ErrLoginConflict.WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrPKCEFailed):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrRefreshFailed),
		errors.Is(err, service.ErrCSRFFailed):
		authsdk.ErrRefreshFailed.WriteError(w)
	case errors.Is(err, service.ErrInvalidToken):
		authsdk.ErrUnauthorized.WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// fieldErrors flattens the validation errors wrapped in err.
func fieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for k, v := range verrs {
		fields[k] = v.Error()
	}
	return fields
}
