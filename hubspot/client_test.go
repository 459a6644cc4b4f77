package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListContacts_CursorAndProperties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/contacts", r.URL.Path)
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("properties"), "email")

		switch r.URL.Query().Get("after") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "1", "properties": map[string]string{"email": "a@example.com"}},
				},
				"paging": map[string]any{"next": map[string]string{"after": "cursor-2"}},
			})
		case "cursor-2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "2", "properties": map[string]string{"email": "b@example.com"}},
				},
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
	}))
	defer srv.Close()

	client := NewClient("pat-test", nil, WithBaseURL(srv.URL))

	page, err := client.ListContacts(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "cursor-2", page.NextAfter())

	page, err = client.ListContacts(context.Background(), page.NextAfter(), nil)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "2", page.Results[0].ID)
	assert.Empty(t, page.NextAfter())
}

func TestSearchContactsModifiedSince(t *testing.T) {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)

		var body searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		require.Len(t, body.FilterGroups, 1)
		require.Len(t, body.FilterGroups[0].Filters, 1)

		f := body.FilterGroups[0].Filters[0]
		assert.Equal(t, "lastmodifieddate", f.PropertyName)
		assert.Equal(t, "GTE", f.Operator)
		assert.Equal(t, strconv.FormatInt(since.UnixMilli(), 10), f.Value)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "42", "properties": map[string]string{"email": "c@example.com"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("pat-test", nil, WithBaseURL(srv.URL))

	page, err := client.SearchContactsModifiedSince(context.Background(), since, "", nil)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "42", page.Results[0].ID)
}

func TestDoRequest_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"category":"MISSING_SCOPES","message":"token lacks crm.objects.contacts.read"}`))
	}))
	defer srv.Close()

	client := NewClient("pat-test", nil, WithBaseURL(srv.URL))

	_, err := client.ListContacts(context.Background(), "", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "MISSING_SCOPES", apiErr.Category)
}

func TestDoRequest_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	client := NewClient("pat-test", nil, WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))

	_, err := client.ListContacts(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
