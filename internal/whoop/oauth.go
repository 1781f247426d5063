package whoop

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"pulsecoach/internal/models"
)

// BeginLink starts the account-linking flow for a user. It mints a one-time
// opaque state bound to the user, persists it, and returns the upstream
// authorization URL the user must visit.
func (c *Client) BeginLink(userID string) (string, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	state := models.OAuthState{
		Value:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.SaveOAuthState(state); err != nil {
		return "", fmt.Errorf("failed to persist oauth state for %s: %w", userID, err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("scope", c.scope)
	params.Set("state", state.Value)

	authURL := c.oauthBase + "/auth?" + params.Encode()
	slog.Info("Client.BeginLink: link started", "userID", userID)
	return authURL, nil
}

// CompleteLink consumes the state from an authorization callback and
// exchanges the code for the initial credential pair. On success it persists
// the credential and returns the bound user ID so the caller can notify that
// user.
//
// The state is deleted before the exchange is attempted: even if the exchange
// fails, the same callback cannot be replayed.
func (c *Client) CompleteLink(ctx context.Context, code, state string) (string, error) {
	st, err := c.store.ConsumeOAuthState(state)
	if err != nil {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if st == nil {
		// Expired, invalid, or already used; indistinguishable here.
		slog.Warn("Client.CompleteLink: unknown oauth state")
		return "", &Error{Kind: KindInvalidState, Message: "unknown or already used state"}
	}

	token, err := c.exchangeCode(ctx, code)
	if err != nil {
		slog.Warn("Client.CompleteLink: code exchange failed", "userID", st.UserID, "error", err)
		return "", &Error{Kind: KindExchangeFailed, Message: "authorization code exchange failed", cause: err}
	}

	cred := models.Credential{
		UserID:       st.UserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		UpdatedAt:    time.Now().UTC(),
	}
	if cred.Scope == "" {
		cred.Scope = c.scope
	}
	if err := c.store.SaveCredential(cred); err != nil {
		return "", fmt.Errorf("failed to persist credential for %s: %w", st.UserID, err)
	}
	slog.Info("Client.CompleteLink: account linked", "userID", st.UserID)
	return st.UserID, nil
}
