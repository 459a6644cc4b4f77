// Package gbp is a typed client over the Google Business Profile REST
// surfaces. Every request runs through a single execution path that
// transparently recovers from auth failures by refreshing the access
// token and retrying, so individual API methods stay thin.
package gbp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BaseURLs are the six GBP REST surfaces plus the legacy v4 API.
type BaseURLs struct {
	AccountManagement   string
	BusinessInformation string
	LegacyV4            string
	Performance         string
	Verifications       string
	Notifications       string
	PlaceActions        string
}

// DefaultBaseURLs returns the production GBP endpoints.
func DefaultBaseURLs() BaseURLs {
	return BaseURLs{
		AccountManagement:   "https://mybusinessaccountmanagement.googleapis.com/v1",
		BusinessInformation: "https://mybusinessbusinessinformation.googleapis.com/v1",
		LegacyV4:            "https://mybusiness.googleapis.com/v4",
		Performance:         "https://businessprofileperformance.googleapis.com/v1",
		Verifications:       "https://mybusinessverifications.googleapis.com/v1",
		Notifications:       "https://mybusinessnotifications.googleapis.com/v1",
		PlaceActions:        "https://mybusinessplaceactions.googleapis.com/v1",
	}
}

const (
	defaultMaxRetries = 3
	defaultPageSize   = 50
	// maxListPages caps full-listing helpers against an upstream that
	// keeps returning page tokens.
	maxListPages = 10

	// defaultLocationReadMask limits location payloads to the fields the
	// dashboard uses.
	defaultLocationReadMask = "name,title,storeCode,languageCode,websiteUri,phoneNumbers,categories,storefrontAddress,metadata"
)

// TokenProvider supplies and refreshes access tokens.
type TokenProvider interface {
	Token(ctx context.Context, connectionID string) (string, error)
	DefaultToken(ctx context.Context) (string, error)
}

// Client calls the GBP REST surfaces with bearer auth.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider

	mu          sync.RWMutex
	accessToken string

	accountID    string
	locationID   string
	connectionID string
	maxRetries   int

	urls BaseURLs
	log  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAccountID sets the default account for methods that accept an
// empty account id.
func WithAccountID(accountID string) ClientOption {
	return func(c *Client) {
		c.accountID = accountID
	}
}

// WithLocationID sets the default location.
func WithLocationID(locationID string) ClientOption {
	return func(c *Client) {
		c.locationID = locationID
	}
}

// WithConnectionID selects which token-manager connection refreshes go
// through. When unset, the default env connection is used.
func WithConnectionID(connectionID string) ClientOption {
	return func(c *Client) {
		c.connectionID = connectionID
	}
}

// WithMaxRetries bounds the refresh-and-retry cycles per request.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURLs overrides the API endpoints. Used in tests.
func WithBaseURLs(urls BaseURLs) ClientOption {
	return func(c *Client) {
		c.urls = urls
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a GBP client holding the given access token. The
// token provider is consulted whenever a request fails with an
// auth-flavored response.
func NewClient(accessToken string, tokens TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens:      tokens,
		accessToken: accessToken,
		maxRetries:  defaultMaxRetries,
		urls:        DefaultBaseURLs(),
		log:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.accessToken
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = tok
}

// refreshToken obtains a fresh token through the token manager and
// installs it on the client.
func (c *Client) refreshToken(ctx context.Context) error {
	var (
		tok string
		err error
	)

	if c.connectionID != "" {
		tok, err = c.tokens.Token(ctx, c.connectionID)
	} else {
		tok, err = c.tokens.DefaultToken(ctx)
	}

	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	c.setToken(tok)

	return nil
}

// looksLikeHTML detects the gateway failure mode where a rejected token
// yields an HTML error page instead of JSON, sometimes with status 200.
func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))

	lower := strings.ToLower(trimmed)

	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// doRequest executes one API call with the shared retry-on-auth-failure
// algorithm. The body is read as text first so an HTML error page can be
// detected before JSON parsing; HTML bodies and 401 responses trigger a
// token refresh and a retry, bounded by maxRetries.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body, out any) error {
	for attempt := 0; ; attempt++ {
		respBody, statusCode, err := c.issue(ctx, method, rawURL, body)
		if err != nil {
			return err
		}

		if looksLikeHTML(respBody) || statusCode == http.StatusUnauthorized {
			if attempt >= c.maxRetries {
				return fmt.Errorf("%s %s after %d attempts: %w", method, rawURL, attempt+1, ErrRetriesExhausted)
			}

			c.log.Debug("auth-flavored response, refreshing token",
				zap.Int("status", statusCode),
				zap.Int("attempt", attempt),
				zap.Bool("html_body", looksLikeHTML(respBody)))

			if err := c.refreshToken(ctx); err != nil {
				return err
			}

			continue
		}

		if statusCode < 200 || statusCode >= 300 {
			apiErr := &APIError{StatusCode: statusCode}

			var parsed apiErrorBody
			if json.Unmarshal(respBody, &parsed) == nil {
				apiErr.Status = parsed.Error.Status
				apiErr.Message = parsed.Error.Message
			}

			if apiErr.Message == "" {
				apiErr.Message = excerpt(respBody)
			}

			return apiErr
		}

		if out == nil {
			return nil
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return &ParseError{Excerpt: excerpt(respBody), Err: err}
		}

		return nil
	}
}

func (c *Client) issue(ctx context.Context, method, rawURL string, body any) ([]byte, int, error) {
	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			return nil, 0, fmt.Errorf("gbp request timed out: %w", err)
		}

		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func isTimeoutErr(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}

func excerpt(body []byte) string {
	const maxLen = 200

	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}

	return s
}

// account returns the explicit account id or the configured default.
func (c *Client) account(accountID string) string {
	if accountID != "" {
		return accountID
	}

	return c.accountID
}

func (c *Client) location(locationID string) string {
	if locationID != "" {
		return locationID
	}

	return c.locationID
}

// ListAccounts lists every account visible to the authorized user.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		endpoint := fmt.Sprintf("%s/accounts?pageSize=%d", c.urls.AccountManagement, defaultPageSize)
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var resp listAccountsResponse
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}

		accounts = append(accounts, resp.Accounts...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return accounts, nil
}

// GetLocation fetches one location with the given field mask. An empty
// readMask uses the default dashboard mask.
func (c *Client) GetLocation(ctx context.Context, locationID, readMask string) (*Location, error) {
	if readMask == "" {
		readMask = defaultLocationReadMask
	}

	endpoint := fmt.Sprintf("%s/locations/%s?readMask=%s",
		c.urls.BusinessInformation, url.PathEscape(c.location(locationID)), url.QueryEscape(readMask))

	var loc Location
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &loc); err != nil {
		return nil, err
	}

	return &loc, nil
}

// ListLocations lists one page of locations under an account.
func (c *Client) ListLocations(ctx context.Context, accountID, readMask, pageToken string) (*LocationsPage, error) {
	if readMask == "" {
		readMask = defaultLocationReadMask
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/locations?readMask=%s&pageSize=%d",
		c.urls.BusinessInformation, url.PathEscape(c.account(accountID)), url.QueryEscape(readMask), defaultPageSize)
	if pageToken != "" {
		endpoint += "&pageToken=" + url.QueryEscape(pageToken)
	}

	var page LocationsPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// ListReviews lists one page of reviews for a location.
func (c *Client) ListReviews(ctx context.Context, accountID, locationID, pageToken string) (*ReviewsPage, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews?pageSize=%d",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)), defaultPageSize)
	if pageToken != "" {
		endpoint += "&pageToken=" + url.QueryEscape(pageToken)
	}

	var page ReviewsPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// ReplyToReview creates or updates the owner's reply to a review.
func (c *Client) ReplyToReview(ctx context.Context, accountID, locationID, reviewID, comment string) (*ReviewReply, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews/%s/reply",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)), url.PathEscape(reviewID))

	var reply ReviewReply
	if err := c.doRequest(ctx, http.MethodPut, endpoint, map[string]string{"comment": comment}, &reply); err != nil {
		return nil, err
	}

	return &reply, nil
}

// DeleteReviewReply removes the owner's reply to a review.
func (c *Client) DeleteReviewReply(ctx context.Context, accountID, locationID, reviewID string) error {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews/%s/reply",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)), url.PathEscape(reviewID))

	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ListMedia lists one page of media items for a location.
func (c *Client) ListMedia(ctx context.Context, accountID, locationID, pageToken string) (*MediaPage, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/media?pageSize=%d",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)), defaultPageSize)
	if pageToken != "" {
		endpoint += "&pageToken=" + url.QueryEscape(pageToken)
	}

	var page MediaPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// CreateMedia attaches a photo to a location from a public source URL.
func (c *Client) CreateMedia(ctx context.Context, accountID, locationID, sourceURL, category string) (*MediaItem, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/media",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)))

	body := MediaItem{
		MediaFormat: "PHOTO",
		SourceURL:   sourceURL,
		Association: &LocationAssociation{Category: category},
	}

	var item MediaItem
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// DeleteMedia removes a media item. mediaName is the full resource name
// as returned by ListMedia.
func (c *Client) DeleteMedia(ctx context.Context, mediaName string) error {
	endpoint := fmt.Sprintf("%s/%s", c.urls.LegacyV4, mediaName)

	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ListLocalPosts lists one page of local posts for a location.
func (c *Client) ListLocalPosts(ctx context.Context, accountID, locationID, pageToken string) (*LocalPostsPage, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/localPosts?pageSize=%d",
		c.urls.LegacyV4, url.PathEscape(c.account(accountID)), url.PathEscape(c.location(locationID)), defaultPageSize)
	if pageToken != "" {
		endpoint += "&pageToken=" + url.QueryEscape(pageToken)
	}

	var page LocalPostsPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// SearchKeywordImpressions fetches the monthly search-keyword impression
// counts for a location. Zero from/to default to the last full calendar
// month.
func (c *Client) SearchKeywordImpressions(ctx context.Context, locationID string, from, to time.Time) ([]SearchKeywordCount, error) {
	if from.IsZero() || to.IsZero() {
		from, to = lastMonthRange(time.Now().UTC())
	}

	var counts []SearchKeywordCount

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		endpoint := fmt.Sprintf(
			"%s/locations/%s/searchkeywords/impressions/monthly"+
				"?monthlyRange.startMonth.year=%d&monthlyRange.startMonth.month=%d"+
				"&monthlyRange.endMonth.year=%d&monthlyRange.endMonth.month=%d",
			c.urls.Performance, url.PathEscape(c.location(locationID)),
			from.Year(), int(from.Month()), to.Year(), int(to.Month()))
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var resp searchKeywordsResponse
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}

		counts = append(counts, resp.SearchKeywordsCounts...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return counts, nil
}

// lastMonthRange returns the first day of the previous calendar month
// twice; the performance API addresses ranges by (year, month) only.
func lastMonthRange(now time.Time) (time.Time, time.Time) {
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstOfLastMonth := firstOfThisMonth.AddDate(0, -1, 0)

	return firstOfLastMonth, firstOfLastMonth
}

// ListPlaceActionLinks lists the place-action links of a location.
func (c *Client) ListPlaceActionLinks(ctx context.Context, locationID string) ([]PlaceActionLink, error) {
	var links []PlaceActionLink

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		endpoint := fmt.Sprintf("%s/locations/%s/placeActionLinks",
			c.urls.PlaceActions, url.PathEscape(c.location(locationID)))
		if pageToken != "" {
			endpoint += "?pageToken=" + url.QueryEscape(pageToken)
		}

		var resp listPlaceActionLinksResponse
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}

		links = append(links, resp.PlaceActionLinks...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return links, nil
}

// CreatePlaceActionLink adds a place-action link to a location.
func (c *Client) CreatePlaceActionLink(ctx context.Context, locationID string, link PlaceActionLink) (*PlaceActionLink, error) {
	endpoint := fmt.Sprintf("%s/locations/%s/placeActionLinks",
		c.urls.PlaceActions, url.PathEscape(c.location(locationID)))

	var created PlaceActionLink
	if err := c.doRequest(ctx, http.MethodPost, endpoint, link, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// DeletePlaceActionLink removes a place-action link by full resource name.
func (c *Client) DeletePlaceActionLink(ctx context.Context, linkName string) error {
	endpoint := fmt.Sprintf("%s/%s", c.urls.PlaceActions, linkName)

	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetNotificationSetting fetches the Pub/Sub notification settings of an
// account.
func (c *Client) GetNotificationSetting(ctx context.Context, accountID string) (*NotificationSetting, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/notificationSetting",
		c.urls.Notifications, url.PathEscape(c.account(accountID)))

	var setting NotificationSetting
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &setting); err != nil {
		return nil, err
	}

	return &setting, nil
}

// UpdateNotificationSetting replaces the notification settings of an
// account.
func (c *Client) UpdateNotificationSetting(ctx context.Context, accountID string, setting NotificationSetting) (*NotificationSetting, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/notificationSetting?updateMask=notificationTypes,pubsubTopic",
		c.urls.Notifications, url.PathEscape(c.account(accountID)))

	var updated NotificationSetting
	if err := c.doRequest(ctx, http.MethodPatch, endpoint, setting, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// GetVoiceOfMerchantState fetches the verification standing of a location.
func (c *Client) GetVoiceOfMerchantState(ctx context.Context, locationID string) (*VoiceOfMerchantState, error) {
	endpoint := fmt.Sprintf("%s/locations/%s/VoiceOfMerchantState",
		c.urls.Verifications, url.PathEscape(c.location(locationID)))

	var state VoiceOfMerchantState
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// listAllReviews follows page tokens up to the listing cap.
func (c *Client) listAllReviews(ctx context.Context, accountID, locationID string) ([]Review, error) {
	var reviews []Review

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		resp, err := c.ListReviews(ctx, accountID, locationID, pageToken)
		if err != nil {
			return nil, err
		}

		reviews = append(reviews, resp.Reviews...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return reviews, nil
}

func (c *Client) listAllMedia(ctx context.Context, accountID, locationID string) ([]MediaItem, error) {
	var items []MediaItem

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		resp, err := c.ListMedia(ctx, accountID, locationID, pageToken)
		if err != nil {
			return nil, err
		}

		items = append(items, resp.MediaItems...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return items, nil
}

func (c *Client) listAllLocalPosts(ctx context.Context, accountID, locationID string) ([]LocalPost, error) {
	var posts []LocalPost

	pageToken := ""

	for page := 0; page < maxListPages; page++ {
		resp, err := c.ListLocalPosts(ctx, accountID, locationID, pageToken)
		if err != nil {
			return nil, err
		}

		posts = append(posts, resp.LocalPosts...)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return posts, nil
}

// FullLocation bundles everything the dashboard shows for one location.
type FullLocation struct {
	Location *Location          `json:"location"`
	Reviews  []Review           `json:"reviews"`
	Media    []MediaItem        `json:"media"`
	Posts    []LocalPost        `json:"posts"`
	Features FeatureEligibility `json:"features"`
}

// FullLocationData fans out the location, review, media and post fetches
// in parallel and merges them with the feature-eligibility derivation.
func (c *Client) FullLocationData(ctx context.Context, accountID, locationID string) (*FullLocation, error) {
	full := &FullLocation{}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loc, err := c.GetLocation(ctx, locationID, "")
		if err != nil {
			return fmt.Errorf("location fetch: %w", err)
		}

		full.Location = loc

		return nil
	})

	g.Go(func() error {
		reviews, err := c.listAllReviews(ctx, accountID, locationID)
		if err != nil {
			return fmt.Errorf("reviews fetch: %w", err)
		}

		full.Reviews = reviews

		return nil
	})

	g.Go(func() error {
		media, err := c.listAllMedia(ctx, accountID, locationID)
		if err != nil {
			return fmt.Errorf("media fetch: %w", err)
		}

		full.Media = media

		return nil
	})

	g.Go(func() error {
		posts, err := c.listAllLocalPosts(ctx, accountID, locationID)
		if err != nil {
			return fmt.Errorf("posts fetch: %w", err)
		}

		full.Posts = posts

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	full.Features = deriveFeatureEligibility(full.Location)

	return full, nil
}
