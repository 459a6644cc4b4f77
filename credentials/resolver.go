// Package credentials resolves which credential source applies to a
// connection and performs the actual token exchanges: a direct Google
// OAuth refresh for the env-configured manager account, or a retrieval
// call against the OAuth broker for per-client connections.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/config"
	"github.com/Vector/gbp-ops-sync/gbp/token"
	"github.com/Vector/gbp-ops-sync/models"
)

const defaultGoogleTokenEndpoint = "https://oauth2.googleapis.com/token" //nolint:gosec // endpoint URL, not a credential

// ErrMissingCredentials is returned when the env-credential flow is
// requested but not configured. Not retryable.
var ErrMissingCredentials = errors.New("missing credentials")

// ConnectionStore looks up persisted connection records.
type ConnectionStore interface {
	Get(ctx context.Context, id string) (*models.Connection, error)
}

// Broker retrieves credentials for broker-managed accounts.
type Broker interface {
	RetrieveAccountCredentials(ctx context.Context, accountID, externalUserID string) (*AccountCredentials, error)
}

// Resolver implements token.Refresher by dispatching to the credential
// source recorded on the connection.
type Resolver struct {
	store         ConnectionStore
	broker        Broker
	cfg           *config.AppConfig
	httpClient    *http.Client
	tokenEndpoint string
	log           *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithGoogleTokenEndpoint overrides the OAuth token endpoint. Used in tests.
func WithGoogleTokenEndpoint(endpoint string) ResolverOption {
	return func(r *Resolver) {
		r.tokenEndpoint = endpoint
	}
}

// NewResolver creates a resolver over the given connection store and broker.
func NewResolver(store ConnectionStore, broker Broker, cfg *config.AppConfig, log *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		broker: broker,
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: cfg.UpstreamTimeout,
		},
		tokenEndpoint: defaultGoogleTokenEndpoint,
		log:           log,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = zap.NewNop()
	}

	return r
}

var _ token.Refresher = (*Resolver)(nil)

// Refresh obtains a fresh token for the connection.
func (r *Resolver) Refresh(ctx context.Context, connectionID string) (token.Token, error) {
	if connectionID == token.DefaultConnectionID {
		return r.RefreshDefault(ctx)
	}

	conn, err := r.store.Get(ctx, connectionID)
	if err != nil {
		return token.Token{}, err
	}

	switch conn.Source {
	case models.SourceEnv:
		return r.RefreshDefault(ctx)
	case models.SourceBroker:
		return r.refreshFromBroker(ctx, conn)
	default:
		return token.Token{}, fmt.Errorf("connection %s has unknown credential source %q", connectionID, conn.Source)
	}
}

func (r *Resolver) refreshFromBroker(ctx context.Context, conn *models.Connection) (token.Token, error) {
	if r.broker == nil {
		return token.Token{}, fmt.Errorf("connection %s requires the OAuth broker but none is configured: %w", conn.ID, ErrMissingCredentials)
	}

	creds, err := r.broker.RetrieveAccountCredentials(ctx, conn.BrokerAccountID, conn.ExternalUserID)
	if err != nil {
		return token.Token{}, fmt.Errorf("broker refresh for connection %s: %w", conn.ID, err)
	}

	return token.Token{
		AccessToken: creds.OAuthAccessToken,
		ExpiresAt:   creds.ExpiresAt,
	}, nil
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RefreshDefault performs a refresh-token grant against the Google
// token endpoint using the env-configured client credentials.
func (r *Resolver) RefreshDefault(ctx context.Context) (token.Token, error) {
	if !r.cfg.HasGoogleEnvCredentials() {
		return token.Token{}, fmt.Errorf("env credential refresh: %w", ErrMissingCredentials)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", r.cfg.GoogleClientID)
	form.Set("client_secret", r.cfg.GoogleClientSecret)
	form.Set("refresh_token", r.cfg.GoogleRefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return token.Token{}, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return token.Token{}, fmt.Errorf("token endpoint timed out: %w", err)
		}

		return token.Token{}, fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token.Token{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return token.Token{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, excerpt(body))
	}

	var parsed googleTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return token.Token{}, fmt.Errorf("failed to parse token response: %w", err)
	}

	if parsed.AccessToken == "" {
		return token.Token{}, errors.New("token response contains no access_token")
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = r.cfg.GoogleRefreshToken
	}

	r.log.Debug("refreshed default connection token",
		zap.Int("expires_in", parsed.ExpiresIn))

	return token.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}
