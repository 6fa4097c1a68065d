package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidRegistration = errors.New("invalid_registration")
	ErrLoginConflict       = errors.New("login_conflict")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrPKCEFailed          = errors.New("pkce_failed")
	ErrRefreshFailed       = errors.New("refresh_failed")
	ErrCSRFFailed          = errors.New("csrf_failed")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrUserNotFound        = errors.New("user_not_found")
)

// TooManyAttemptsError is returned by Authorize while a login is locked out.
type TooManyAttemptsError struct {
	Until time.Time
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too_many_attempts: blocked until %s", e.Until.UTC().Format(time.RFC3339))
}
