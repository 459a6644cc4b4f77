package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/models"
)

const defaultPipedreamBaseURL = "https://api.pipedream.com/v1"

// brokerTokenLifetime is assumed for broker-issued access tokens when
// the broker response carries no expiry. The broker rotates tokens
// hourly; 50 minutes keeps us comfortably inside that window.
const brokerTokenLifetime = 50 * time.Minute

// AccountCredentials is the credentials object returned by the broker
// for a connected account.
type AccountCredentials struct {
	OAuthAccessToken  string `json:"oauth_access_token"`
	OAuthRefreshToken string `json:"oauth_refresh_token,omitempty"`
	ExpiresAt         time.Time
}

// PipedreamClient calls the OAuth broker's account-retrieval API. The
// broker stores the refresh tokens and returns short-lived access
// tokens on demand.
type PipedreamClient struct {
	httpClient  *http.Client
	baseURL     string
	apiToken    string
	projectID   string
	environment string
	log         *zap.Logger
}

// PipedreamOption configures a PipedreamClient.
type PipedreamOption func(*PipedreamClient)

// WithPipedreamBaseURL overrides the broker base URL. Used in tests.
func WithPipedreamBaseURL(baseURL string) PipedreamOption {
	return func(c *PipedreamClient) {
		c.baseURL = baseURL
	}
}

// WithPipedreamTimeout bounds each broker call.
func WithPipedreamTimeout(timeout time.Duration) PipedreamOption {
	return func(c *PipedreamClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewPipedreamClient creates a broker client.
func NewPipedreamClient(apiToken, projectID, environment string, log *zap.Logger, opts ...PipedreamOption) *PipedreamClient {
	c := &PipedreamClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:     defaultPipedreamBaseURL,
		apiToken:    apiToken,
		projectID:   projectID,
		environment: environment,
		log:         log,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = zap.NewNop()
	}

	return c
}

type pipedreamAccountResponse struct {
	Data struct {
		ID          string          `json:"id"`
		ExpiresAt   *time.Time      `json:"expires_at"`
		Credentials json.RawMessage `json:"credentials"`
	} `json:"data"`
}

// RetrieveAccountCredentials fetches the current credentials for a
// connected account. The optional externalUserID hint lets the broker
// cross-check the account against the identity it was connected for.
func (c *PipedreamClient) RetrieveAccountCredentials(ctx context.Context, accountID, externalUserID string) (*AccountCredentials, error) {
	endpoint := fmt.Sprintf("%s/connect/%s/accounts/%s", c.baseURL, url.PathEscape(c.projectID), url.PathEscape(accountID))

	q := url.Values{}
	q.Set("include_credentials", "true")

	if externalUserID != "" {
		q.Set("external_user_id", externalUserID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("x-pd-environment", c.environment)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("broker request timed out: %w", err)
		}

		return nil, fmt.Errorf("failed to reach broker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("broker account %s: %w", accountID, models.ErrConnectionNotFound)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("broker request failed with status %d: %s", resp.StatusCode, excerpt(body))
	}

	var parsed pipedreamAccountResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse broker response: %w", err)
	}

	var creds AccountCredentials
	if err := json.Unmarshal(parsed.Data.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse broker credentials: %w", err)
	}

	if creds.OAuthAccessToken == "" {
		return nil, fmt.Errorf("broker credentials for account %s contain no oauth_access_token", accountID)
	}

	if parsed.Data.ExpiresAt != nil {
		creds.ExpiresAt = *parsed.Data.ExpiresAt
	} else {
		creds.ExpiresAt = time.Now().Add(brokerTokenLifetime)
	}

	c.log.Debug("retrieved broker credentials", zap.String("account_id", accountID))

	return &creds, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}

func excerpt(body []byte) string {
	const maxLen = 200

	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}

	return string(body)
}
