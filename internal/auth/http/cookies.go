package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
)

// cookieJar writes the refresh and csrf cookies. Both are scoped to the
// refresh path so browsers only send them where they are consumed.
type cookieJar struct {
	secure bool
	maxAge time.Duration
}

func (c cookieJar) set(w http.ResponseWriter, family domain.TokenFamily) {
	http.SetCookie(w, c.cookie(authsdk.RefreshTokenCookie, family.RefreshToken, true, int(c.maxAge.Seconds())))
	http.SetCookie(w, c.cookie(authsdk.CSRFTokenCookie, family.CSRFToken, false, int(c.maxAge.Seconds())))
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(authsdk.RefreshTokenCookie, "", true, -1))
	http.SetCookie(w, c.cookie(authsdk.CSRFTokenCookie, "", false, -1))
}

func (c cookieJar) cookie(name, value string, httpOnly bool, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     authsdk.PathRefresh,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func tokenResponse(family domain.TokenFamily) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		TokenType:   "bearer",
		AccessToken: family.AccessToken,
		ExpiresIn:   int(family.ExpiresIn.Seconds()),
	}
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:        u.ID,
		Login:     u.Login,
		Name:      u.Name,
		Email:     u.Email,
		Privilege: u.Privilege,
	}
}
