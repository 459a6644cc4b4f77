package gbp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	tokenCalls        atomic.Int64
	defaultTokenCalls atomic.Int64
	err               error
}

func (f *fakeTokens) Token(_ context.Context, connectionID string) (string, error) {
	n := f.tokenCalls.Add(1)

	if f.err != nil {
		return "", f.err
	}

	return fmt.Sprintf("refreshed-%s-%d", connectionID, n), nil
}

func (f *fakeTokens) DefaultToken(_ context.Context) (string, error) {
	n := f.defaultTokenCalls.Add(1)

	if f.err != nil {
		return "", f.err
	}

	return fmt.Sprintf("refreshed-default-%d", n), nil
}

func testURLs(serverURL string) BaseURLs {
	return BaseURLs{
		AccountManagement:   serverURL,
		BusinessInformation: serverURL,
		LegacyV4:            serverURL,
		Performance:         serverURL,
		Verifications:       serverURL,
		Notifications:       serverURL,
		PlaceActions:        serverURL,
	}
}

func TestDoRequest_RetryBudgetEnforced(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials","status":"UNAUTHENTICATED"}}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	client := NewClient("initial", tokens, WithBaseURLs(testURLs(srv.URL)), WithMaxRetries(2))

	_, err := client.ListAccounts(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)

	assert.Equal(t, int64(2), tokens.defaultTokenCalls.Load(), "exactly maxRetries refresh attempts")
	assert.Equal(t, int64(3), requests.Load(), "initial request plus one per refresh")
}

func TestDoRequest_RecoversAfterSingle401(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		assert.Equal(t, "Bearer refreshed-conn-7-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(listAccountsResponse{Accounts: []Account{{Name: "accounts/123"}}})
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	client := NewClient("initial", tokens, WithBaseURLs(testURLs(srv.URL)), WithConnectionID("conn-7"))

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)

	assert.Len(t, accounts, 1)
	assert.Equal(t, int64(1), tokens.tokenCalls.Load())
}

func TestDoRequest_HTMLBodyTreatedAsAuthFailure(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			// Status 200 but an HTML error page: the gateway rejected
			// the token below normal status-code handling.
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Error</body></html>"))
			return
		}

		_ = json.NewEncoder(w).Encode(listAccountsResponse{Accounts: []Account{{Name: "accounts/1"}}})
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	client := NewClient("initial", tokens, WithBaseURLs(testURLs(srv.URL)))

	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)

	assert.Len(t, accounts, 1)
	assert.Equal(t, int64(1), tokens.defaultTokenCalls.Load())
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"<!DOCTYPE html><html></html>", true},
		{"<html><head></head></html>", true},
		{"  \n<HTML>", true},
		{`{"ok":true}`, false},
		{"", false},
		{"plain text", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, looksLikeHTML([]byte(tt.body)), "body: %q", tt.body)
	}
}

func TestDoRequest_ParseErrorNotRetried(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	client := NewClient("initial", tokens, WithBaseURLs(testURLs(srv.URL)))

	_, err := client.ListAccounts(context.Background())
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Excerpt, "not json")

	assert.Equal(t, int64(1), requests.Load(), "parse errors must not be retried")
	assert.Equal(t, int64(0), tokens.defaultTokenCalls.Load())
}

func TestDoRequest_APIErrorCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid field mask","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	client := NewClient("token", &fakeTokens{}, WithBaseURLs(testURLs(srv.URL)))

	_, err := client.GetLocation(context.Background(), "loc-1", "bogus")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	assert.Equal(t, "Invalid field mask", apiErr.Message)
}

func TestListReviews_Pagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageToken") {
		case "":
			_ = json.NewEncoder(w).Encode(ReviewsPage{
				Reviews:       []Review{{ReviewID: "r1"}, {ReviewID: "r2"}},
				NextPageToken: "page-2",
			})
		case "page-2":
			_ = json.NewEncoder(w).Encode(ReviewsPage{
				Reviews: []Review{{ReviewID: "r3"}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer srv.Close()

	client := NewClient("token", &fakeTokens{}, WithBaseURLs(testURLs(srv.URL)))

	reviews, err := client.listAllReviews(context.Background(), "acc-1", "loc-1")
	require.NoError(t, err)

	assert.Len(t, reviews, 3)
	assert.Equal(t, "r3", reviews[2].ReviewID)
}

func TestListAllReviews_PaginationCap(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		// Always hand back a token: a remote pagination bug.
		_ = json.NewEncoder(w).Encode(ReviewsPage{
			Reviews:       []Review{{ReviewID: "r"}},
			NextPageToken: "again",
		})
	}))
	defer srv.Close()

	client := NewClient("token", &fakeTokens{}, WithBaseURLs(testURLs(srv.URL)))

	reviews, err := client.listAllReviews(context.Background(), "acc-1", "loc-1")
	require.NoError(t, err)

	assert.Equal(t, int64(maxListPages), requests.Load())
	assert.Len(t, reviews, maxListPages)
}

func TestFullLocationData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/locations/loc-1":
			_ = json.NewEncoder(w).Encode(Location{
				Name:  "locations/loc-1",
				Title: "Joe's Plumbing",
				Metadata: &LocationMetadata{
					HasVoiceOfMerchant:  true,
					CanOperateLocalPost: true,
				},
			})
		case r.URL.Path == "/accounts/acc-1/locations/loc-1/reviews":
			_ = json.NewEncoder(w).Encode(ReviewsPage{Reviews: []Review{{ReviewID: "r1"}}})
		case r.URL.Path == "/accounts/acc-1/locations/loc-1/media":
			_ = json.NewEncoder(w).Encode(MediaPage{MediaItems: []MediaItem{{Name: "media/m1"}}})
		case r.URL.Path == "/accounts/acc-1/locations/loc-1/localPosts":
			_ = json.NewEncoder(w).Encode(LocalPostsPage{LocalPosts: []LocalPost{{Name: "posts/p1"}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient("token", &fakeTokens{}, WithBaseURLs(testURLs(srv.URL)))

	full, err := client.FullLocationData(context.Background(), "acc-1", "loc-1")
	require.NoError(t, err)

	assert.Equal(t, "Joe's Plumbing", full.Location.Title)
	assert.Len(t, full.Reviews, 1)
	assert.Len(t, full.Media, 1)
	assert.Len(t, full.Posts, 1)
	assert.True(t, full.Features.CanReplyToReviews)
	assert.True(t, full.Features.CanCreatePosts)
	assert.False(t, full.Features.CanManageFoodMenus)
}

func TestDeriveFeatureEligibility_NoVoiceOfMerchant(t *testing.T) {
	loc := &Location{Metadata: &LocationMetadata{
		HasVoiceOfMerchant:  false,
		CanOperateLocalPost: true,
	}}

	assert.Equal(t, FeatureEligibility{}, deriveFeatureEligibility(loc))
	assert.Equal(t, FeatureEligibility{}, deriveFeatureEligibility(nil))
}

func TestSearchKeywordImpressions_DefaultRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.NotEmpty(t, q.Get("monthlyRange.startMonth.year"))
		assert.Equal(t, q.Get("monthlyRange.startMonth.month"), q.Get("monthlyRange.endMonth.month"))

		_ = json.NewEncoder(w).Encode(searchKeywordsResponse{
			SearchKeywordsCounts: []SearchKeywordCount{
				{SearchKeyword: "plumber near me", InsightsValue: InsightsValue{Value: "120"}},
				{SearchKeyword: "emergency plumber", InsightsValue: InsightsValue{Threshold: "15"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("token", &fakeTokens{}, WithBaseURLs(testURLs(srv.URL)))

	counts, err := client.SearchKeywordImpressions(context.Background(), "loc-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, counts, 2)
	assert.Equal(t, "plumber near me", counts[0].SearchKeyword)
}
