package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"pulsecoach/internal/models"
)

// Default upstream endpoints and client configuration
const (
	// DefaultAPIBaseURL is the base URL for WHOOP resource endpoints.
	DefaultAPIBaseURL = "https://api.prod.whoop.com/developer/v1"
	// DefaultOAuthBaseURL is the base URL for WHOOP authorization endpoints.
	DefaultOAuthBaseURL = "https://api.prod.whoop.com/oauth/oauth2"
	// DefaultScope is the capability set requested during linking; "offline"
	// is required to receive a refresh token.
	DefaultScope = "offline read:profile read:recovery read:sleep read:workout"
	// DefaultTimeout bounds each upstream call so one user's hang cannot
	// stall a sweep over many users.
	DefaultTimeout = 10 * time.Second
)

// Category names an upstream resource type fetchable via the client.
type Category string

const (
	// CategorySleep is the sleep activity resource.
	CategorySleep Category = "sleep"
	// CategoryRecovery is the recovery resource.
	CategoryRecovery Category = "recovery"
	// CategoryWorkout is the workout activity resource.
	CategoryWorkout Category = "workout"
	// CategoryProfile is the basic user profile resource.
	CategoryProfile Category = "profile"
)

// IsValidCategory checks if the given category is supported.
func IsValidCategory(c Category) bool {
	switch c {
	case CategorySleep, CategoryRecovery, CategoryWorkout, CategoryProfile:
		return true
	default:
		return false
	}
}

// path returns the resource path relative to the API base URL.
func (c Category) path() string {
	switch c {
	case CategorySleep:
		return "/activity/sleep"
	case CategoryRecovery:
		return "/recovery"
	case CategoryWorkout:
		return "/activity/workout"
	case CategoryProfile:
		return "/user/profile/basic"
	default:
		return ""
	}
}

// Query carries optional date-range filters for resource fetches. The limit is
// advisory per-category; upstream may still return 0..N records.
type Query struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Limit     int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	return v
}

// Store is the persistence surface the client needs: credentials keyed by
// user, and one-time OAuth link states.
type Store interface {
	GetCredential(userID string) (*models.Credential, error)
	SaveCredential(cred models.Credential) error
	SaveOAuthState(state models.OAuthState) error
	ConsumeOAuthState(value string) (*models.OAuthState, error)
}

// Opts holds configuration options for the WHOOP client.
type Opts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string // must match the URI registered upstream
	Scope        string
	APIBaseURL   string
	OAuthBaseURL string
	HTTPClient   *http.Client
}

// Option defines a configuration option for the WHOOP client.
type Option func(*Opts)

// WithClientCredentials sets the OAuth client identity.
func WithClientCredentials(id, secret string) Option {
	return func(o *Opts) {
		o.ClientID = id
		o.ClientSecret = secret
	}
}

// WithRedirectURI sets the OAuth callback URI embedded in authorization URLs
// and code-exchange requests.
func WithRedirectURI(uri string) Option {
	return func(o *Opts) {
		o.RedirectURI = uri
	}
}

// WithScope overrides the requested scope set.
func WithScope(scope string) Option {
	return func(o *Opts) {
		o.Scope = scope
	}
}

// WithAPIBaseURL overrides the resource endpoint base URL (used by tests).
func WithAPIBaseURL(base string) Option {
	return func(o *Opts) {
		o.APIBaseURL = base
	}
}

// WithOAuthBaseURL overrides the authorization endpoint base URL (used by tests).
func WithOAuthBaseURL(base string) Option {
	return func(o *Opts) {
		o.OAuthBaseURL = base
	}
}

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = hc
	}
}

// Client performs authenticated calls against the WHOOP API with transparent
// access-token refresh on authorization failure.
type Client struct {
	store        Store
	http         *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	scope        string
	apiBase      string
	oauthBase    string

	// refreshLocks serializes the detect-401 -> refresh -> persist window per
	// user, so concurrent fetches do not burn each other's refresh tokens.
	refreshMu    sync.Mutex
	refreshLocks map[string]*sync.Mutex
}

// NewClient creates a WHOOP client backed by the given store, applying any
// provided options. Client credentials are required.
func NewClient(store Store, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if store == nil {
		return nil, fmt.Errorf("whoop store is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		slog.Error("Client.NewClient: missing client credentials")
		return nil, fmt.Errorf("whoop client credentials not set")
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = DefaultOAuthBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("Client.NewClient: WHOOP client configured", "api_base", cfg.APIBaseURL, "redirect_uri", cfg.RedirectURI)
	return &Client{
		store:        store,
		http:         cfg.HTTPClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scope:        cfg.Scope,
		apiBase:      cfg.APIBaseURL,
		oauthBase:    cfg.OAuthBaseURL,
		refreshLocks: make(map[string]*sync.Mutex),
	}, nil
}

// userLock returns the per-user refresh mutex, creating it on first use.
func (c *Client) userLock(userID string) *sync.Mutex {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	mu, ok := c.refreshLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		c.refreshLocks[userID] = mu
	}
	return mu
}

// sleepCollection is the upstream envelope for sleep records.
type sleepCollection struct {
	Records   []models.SleepRecord `json:"records"`
	NextToken string               `json:"next_token,omitempty"`
}

// recoveryCollection is the upstream envelope for recovery records.
type recoveryCollection struct {
	Records   []models.RecoveryRecord `json:"records"`
	NextToken string                  `json:"next_token,omitempty"`
}

// workoutCollection is the upstream envelope for workout records.
type workoutCollection struct {
	Records   []models.WorkoutRecord `json:"records"`
	NextToken string                 `json:"next_token,omitempty"`
}

// FetchSleep fetches sleep records for the user, most recent first.
func (c *Client) FetchSleep(ctx context.Context, userID string, q Query) ([]models.SleepRecord, error) {
	var col sleepCollection
	if err := c.fetch(ctx, userID, CategorySleep, q, &col); err != nil {
		return nil, err
	}
	return col.Records, nil
}

// FetchRecovery fetches recovery records for the user, most recent first.
func (c *Client) FetchRecovery(ctx context.Context, userID string, q Query) ([]models.RecoveryRecord, error) {
	var col recoveryCollection
	if err := c.fetch(ctx, userID, CategoryRecovery, q, &col); err != nil {
		return nil, err
	}
	return col.Records, nil
}

// FetchWorkouts fetches workout records for the user, most recent first.
func (c *Client) FetchWorkouts(ctx context.Context, userID string, q Query) ([]models.WorkoutRecord, error) {
	var col workoutCollection
	if err := c.fetch(ctx, userID, CategoryWorkout, q, &col); err != nil {
		return nil, err
	}
	return col.Records, nil
}

// FetchProfile fetches the user's basic WHOOP profile.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.fetch(ctx, userID, CategoryProfile, Query{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// fetch performs an authenticated GET against the category endpoint and
// decodes the response into dst.
//
// An absent credential fails immediately with KindNotLinked, without any
// upstream call. On a 401/403 the stored refresh token is exchanged for a new
// pair, both tokens are persisted, and the request is retried exactly once
// with the new access token; a failed refresh is KindAuthExpired and terminal
// for this call. Any other non-2xx response is KindUpstreamError. At most two
// upstream calls are made per invocation.
func (c *Client) fetch(ctx context.Context, userID string, cat Category, q Query, dst interface{}) error {
	if !IsValidCategory(cat) {
		return fmt.Errorf("invalid category %q", cat)
	}
	cred, err := c.store.GetCredential(userID)
	if err != nil {
		return fmt.Errorf("failed to load credential for %s: %w", userID, err)
	}
	if cred == nil {
		slog.Debug("Client.fetch: no credential on file", "userID", userID, "category", cat)
		return &Error{Kind: KindNotLinked, Message: "no WHOOP credential on file"}
	}

	status, body, err := c.resourceGet(ctx, cred.AccessToken, cat, q)
	if err != nil {
		return &Error{Kind: KindUpstreamError, Message: "resource request failed", cause: err}
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		slog.Info("Client.fetch: access token rejected, attempting refresh", "userID", userID, "category", cat, "status", status)
		token, refreshErr := c.refreshCredential(ctx, userID)
		if refreshErr != nil {
			return refreshErr
		}
		status, body, err = c.resourceGet(ctx, token, cat, q)
		if err != nil {
			return &Error{Kind: KindUpstreamError, Message: "retry after refresh failed", cause: err}
		}
	}

	if status < 200 || status >= 300 {
		slog.Warn("Client.fetch: upstream returned non-success", "userID", userID, "category", cat, "status", status)
		return &Error{Kind: KindUpstreamError, Status: status, Message: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &Error{Kind: KindUpstreamError, Status: status, Message: "malformed resource payload", cause: err}
	}
	slog.Debug("Client.fetch: resource fetched", "userID", userID, "category", cat)
	return nil
}

// refreshCredential exchanges the user's stored refresh token for a new pair
// and persists it, serialized per user. It returns the fresh access token.
func (c *Client) refreshCredential(ctx context.Context, userID string) (string, error) {
	mu := c.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read inside the lock: a concurrent fetch may have refreshed already,
	// in which case the stored access token is already fresh.
	cred, err := c.store.GetCredential(userID)
	if err != nil {
		return "", fmt.Errorf("failed to reload credential for %s: %w", userID, err)
	}
	if cred == nil {
		return "", &Error{Kind: KindNotLinked, Message: "credential disappeared during refresh"}
	}
	if cred.RefreshToken == "" {
		return "", &Error{Kind: KindAuthExpired, Message: "no refresh token on file"}
	}

	token, err := c.refreshToken(ctx, cred.RefreshToken)
	if err != nil {
		slog.Warn("Client.refreshCredential: refresh rejected", "userID", userID, "error", err)
		return "", &Error{Kind: KindAuthExpired, Message: "token refresh failed", cause: err}
	}

	// The new refresh token replaces the old one; both values are persisted
	// together before any further use.
	cred.AccessToken = token.AccessToken
	cred.RefreshToken = token.RefreshToken
	cred.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveCredential(*cred); err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential for %s: %w", userID, err)
	}
	slog.Info("Client.refreshCredential: credential refreshed", "userID", userID)
	return token.AccessToken, nil
}

// resourceGet issues one authenticated GET and returns the raw status/body.
func (c *Client) resourceGet(ctx context.Context, accessToken string, cat Category, q Query) (int, []byte, error) {
	endpoint := c.apiBase + cat.path()
	if params := q.values().Encode(); params != "" {
		endpoint += "?" + params
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// truncate shortens s to at most n bytes for log/error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
