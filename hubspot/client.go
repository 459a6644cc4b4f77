// Package hubspot is a minimal client for the HubSpot CRM v3 contacts
// API, covering the listing and modified-since search calls the contact
// sync needs.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.hubapi.com"

const defaultPageLimit = 100

// DefaultProperties are the contact properties fetched when the caller
// does not specify its own list.
var DefaultProperties = []string{
	"email", "firstname", "lastname", "phone", "company",
	"website", "city", "state", "lifecyclestage", "hs_lead_status",
}

// Contact is one CRM contact record.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Archived   bool              `json:"archived"`
}

// ContactsPage is one page of a contact listing.
type ContactsPage struct {
	Results []Contact `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging,omitempty"`
}

// NextAfter returns the continuation cursor, or empty when the listing
// is exhausted.
func (p *ContactsPage) NextAfter() string {
	if p.Paging == nil {
		return ""
	}

	return p.Paging.Next.After
}

// APIError is a structured non-2xx response from HubSpot.
type APIError struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot api error (status %d %s): %s", e.StatusCode, e.Category, e.Message)
}

// Client calls the HubSpot CRM API with a private-app access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds each API call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a HubSpot client.
func NewClient(token string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: defaultBaseURL,
		token:   token,
		log:     log,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = zap.NewNop()
	}

	return c
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("hubspot request timed out: %w", err)
		}

		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}

		var parsed struct {
			Category string `json:"category"`
			Message  string `json:"message"`
		}

		if json.Unmarshal(respBody, &parsed) == nil {
			apiErr.Category = parsed.Category
			apiErr.Message = parsed.Message
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// ListContacts fetches one page of contacts. An empty properties slice
// uses DefaultProperties; after is the continuation cursor from the
// previous page.
func (c *Client) ListContacts(ctx context.Context, after string, properties []string) (*ContactsPage, error) {
	if len(properties) == 0 {
		properties = DefaultProperties
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(defaultPageLimit))
	q.Set("properties", strings.Join(properties, ","))

	if after != "" {
		q.Set("after", after)
	}

	var page ContactsPage
	if err := c.doRequest(ctx, http.MethodGet, "/crm/v3/objects/contacts?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
	Sorts        []string      `json:"sorts,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// SearchContactsModifiedSince fetches one page of contacts whose last
// modification is at or after the given time. Used by incremental sync.
func (c *Client) SearchContactsModifiedSince(ctx context.Context, since time.Time, after string, properties []string) (*ContactsPage, error) {
	if len(properties) == 0 {
		properties = DefaultProperties
	}

	body := searchRequest{
		FilterGroups: []filterGroup{{
			Filters: []filter{{
				PropertyName: "lastmodifieddate",
				Operator:     "GTE",
				Value:        strconv.FormatInt(since.UnixMilli(), 10),
			}},
		}},
		Properties: properties,
		Limit:      defaultPageLimit,
		After:      after,
	}

	var page ContactsPage
	if err := c.doRequest(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", body, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}
