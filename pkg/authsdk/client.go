package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Cookie names used by the token and refresh endpoints.
const (
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"

	// CSRFHeader must echo the csrf cookie on refresh requests.
	CSRFHeader = "X-CSRF-Token"
)

// Endpoint paths served by the auth service.
const (
	PathRegistration = "/v1/auth/registration"
	PathCode         = "/v1/auth/code"
	PathToken        = "/v1/auth/token"
	PathRefresh      = "/v1/auth/refresh"
	PathRevoke       = "/v1/auth/revoke"
	PathMe           = "/v1/auth/me"

	// PathThrottle is followed by the username. Admin privilege only.
	PathThrottle = "/v1/auth/throttle/"
)

// SDKClient is a client for the keyhouse auth service.
// The refresh and csrf cookies issued by the service are kept in the
// client's cookie jar, so Refresh and Revoke work without the caller
// handling them.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client with its own cookie jar.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}
