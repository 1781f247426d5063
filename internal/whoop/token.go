package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// TokenResponse is the upstream token endpoint's reply for both grant types.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// refreshToken exchanges a refresh token for a new access/refresh pair using
// the "refresh_token" grant. Refresh tokens are single-use upstream: on
// success the returned refresh token supersedes the one passed in.
func (c *Client) refreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {c.scope},
	}
	return c.tokenRequest(ctx, form)
}

// exchangeCode exchanges an authorization code for the initial token pair
// using the "authorization_code" grant. The redirect URI must match the one
// embedded in the authorization URL.
func (c *Client) exchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURI},
	}
	return c.tokenRequest(ctx, form)
}

// tokenRequest posts a form-encoded grant request to the token endpoint. Any
// transport error, non-2xx response, or body without an access token is a
// failure; the caller decides what that means for the stored credential.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (TokenResponse, error) {
	var token TokenResponse

	endpoint := c.oauthBase + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return token, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return token, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Client.tokenRequest: token endpoint rejected grant", "status", resp.StatusCode, "grant_type", form.Get("grant_type"))
		return token, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return token, fmt.Errorf("malformed token response: %w", err)
	}
	if token.AccessToken == "" {
		return token, fmt.Errorf("token response missing access_token")
	}
	return token, nil
}
