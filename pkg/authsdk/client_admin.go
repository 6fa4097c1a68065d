package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// GetThrottle returns the login throttle of username. The access token must
// carry the admin privilege.
func (c *SDKClient) GetThrottle(ctx context.Context, accessToken, username string) (*ThrottleResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, PathThrottle+url.PathEscape(username), nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var out ThrottleResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearThrottle lifts any lockout of username and resets its failure count.
func (c *SDKClient) ClearThrottle(ctx context.Context, accessToken, username string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, PathThrottle+url.PathEscape(username), nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return err
	}

	var out ThrottleResponse
	return decodeJSON(resp, &out, http.StatusOK)
}
