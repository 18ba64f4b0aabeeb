package vendista

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves the Vendista wire format over a fixed item set.
type fakeSource struct {
	items        []map[string]interface{}
	itemsPerPage int // server-side page size; overrides the requested one when > 0
	requests     []url2
	failAfter    int // fail with 500 once this many requests were served (0 = never)
	emptyPage    int // serve this page empty even though items remain (0 = never)
}

type url2 struct {
	page    int
	perPage int
	from    string
	to      string
	order   string
	token   string
}

func (f *fakeSource) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("PageNumber"))
		perPage, _ := strconv.Atoi(q.Get("ItemsPerPage"))
		f.requests = append(f.requests, url2{
			page:    page,
			perPage: perPage,
			from:    q.Get("DateFrom"),
			to:      q.Get("DateTo"),
			order:   q.Get("OrderDesc"),
			token:   q.Get("token"),
		})

		if f.failAfter > 0 && len(f.requests) > f.failAfter {
			http.Error(w, "upstream broke", http.StatusInternalServerError)
			return
		}

		if f.itemsPerPage > 0 {
			perPage = f.itemsPerPage
		}

		var pageItems []map[string]interface{}
		if f.emptyPage != page {
			start := (page - 1) * perPage
			if start < len(f.items) {
				end := start + perPage
				if end > len(f.items) {
					end = len(f.items)
				}
				pageItems = f.items[start:end]
			}
		}

		resp := map[string]interface{}{
			"items":          pageItems,
			"items_count":    len(f.items),
			"items_per_page": perPage,
			"page_number":    page,
			"success":        true,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}
}

func makeItems(n int) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]interface{}{
			"id":      int64(1000 + i),
			"term_id": int64(5),
			"time":    "2024-03-10T12:00:00",
			"sum":     1500,
		})
	}
	return items
}

func newTestClient(t *testing.T, src *fakeSource) *Client {
	srv := httptest.NewServer(src.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "test-token", Timeout: 5 * time.Second}, nil)
}

func TestFetchPage_QueryEncoding(t *testing.T) {
	src := &fakeSource{items: makeItems(1)}
	client := newTestClient(t, src)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)

	page, err := client.FetchPage(context.Background(), PageQuery{
		DateFrom:     from,
		DateTo:       to,
		ItemsPerPage: 50,
		PageNumber:   1,
		OrderDesc:    true,
	})
	require.NoError(t, err)
	require.Len(t, src.requests, 1)

	req := src.requests[0]
	assert.Equal(t, "test-token", req.token)
	assert.Equal(t, "2024-03-01 00:00:00", req.from)
	assert.Equal(t, "2024-03-15 23:59:59", req.to)
	assert.Equal(t, 50, req.perPage)
	assert.Equal(t, 1, req.page)
	assert.Equal(t, "true", req.order)

	assert.True(t, page.Success)
	assert.Equal(t, 1, page.ItemsCount)
}

func TestFetchPage_PayloadRetained(t *testing.T) {
	src := &fakeSource{items: []map[string]interface{}{{
		"id":          int64(42),
		"term_id":     int64(5),
		"time":        "2024-03-10T12:00:00",
		"sum":         2500,
		"card_number": "****1234",
	}}}
	client := newTestClient(t, src)

	page, err := client.FetchPage(context.Background(), PageQuery{
		DateFrom: time.Now(), DateTo: time.Now(), ItemsPerPage: 50, PageNumber: 1,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	tx := page.Items[0]
	assert.Equal(t, int64(42), tx.ID)
	assert.Equal(t, int64(5), tx.TermID)
	assert.Equal(t, "2024-03-10T12:00:00", tx.Time)

	// Opaque payload fields survive verbatim in Raw.
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(tx.Raw, &payload))
	assert.Equal(t, "****1234", payload["card_number"])
	assert.Equal(t, float64(2500), payload["sum"])
}

func TestFetchAll_PaginationTermination(t *testing.T) {
	// 125 items at 50 per page => exactly ceil(125/50) = 3 requests.
	src := &fakeSource{items: makeItems(125)}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.NoError(t, err)

	assert.Len(t, src.requests, 3)
	assert.Len(t, result.Items, 125)
	assert.Equal(t, 125, result.ExpectedTotal)
	assert.Equal(t, 3, result.PagesFetched)
	assert.Equal(t, 3, result.LastPage)
	assert.False(t, result.TruncatedEarly)
}

func TestFetchAll_ServerOverridesPageSize(t *testing.T) {
	// Client asks for 100 per page; server caps at 50. Total pages must be
	// derived from the returned page size, or pagination undershoots.
	src := &fakeSource{items: makeItems(120), itemsPerPage: 50}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 100, true)
	require.NoError(t, err)

	assert.Len(t, src.requests, 3)
	assert.Len(t, result.Items, 120)
	assert.Equal(t, 50, result.ItemsPerPage)
}

func TestFetchAll_SinglePage(t *testing.T) {
	src := &fakeSource{items: makeItems(3)}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.NoError(t, err)

	assert.Len(t, src.requests, 1)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 3, result.ExpectedTotal)
	assert.Equal(t, 1, result.LastPage)
	assert.False(t, result.TruncatedEarly)
}

func TestFetchAll_EmptyPeriod(t *testing.T) {
	src := &fakeSource{}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.NoError(t, err)

	assert.Len(t, src.requests, 1)
	assert.Empty(t, result.Items)
	assert.False(t, result.TruncatedEarly)
}

func TestFetchAll_EmptyPageBeforeEndFlagsAnomaly(t *testing.T) {
	src := &fakeSource{items: makeItems(125), emptyPage: 2}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.NoError(t, err)

	// Page 2 came back empty before the expected 3 pages: fetch stops,
	// anomaly is flagged, page 1 items are still returned.
	assert.Len(t, src.requests, 2)
	assert.Len(t, result.Items, 50)
	assert.True(t, result.TruncatedEarly)
	assert.Equal(t, 2, result.LastPage)
}

func TestFetchAll_TransportErrorAborts(t *testing.T) {
	src := &fakeSource{items: makeItems(125), failAfter: 1}
	client := newTestClient(t, src)

	result, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "fetch page 2")
}

func TestFetchAll_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "bad"}, nil)
	_, err := client.FetchAll(context.Background(), time.Now(), time.Now(), 50, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("status %d", http.StatusForbidden))
}

func TestTestConnection(t *testing.T) {
	src := &fakeSource{items: makeItems(1)}
	client := newTestClient(t, src)
	assert.True(t, client.TestConnection(context.Background()))
	require.Len(t, src.requests, 1)
	assert.Equal(t, 1, src.requests[0].page)
}

func TestTestConnection_FailureReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil)
	assert.False(t, client.TestConnection(context.Background()))
}

func TestTestConnection_UnreachableHost(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	assert.False(t, client.TestConnection(context.Background()))
}

func TestFetchAll_ContextCancellation(t *testing.T) {
	src := &fakeSource{items: makeItems(10)}
	client := newTestClient(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchAll(ctx, time.Now(), time.Now(), 50, true)
	require.Error(t, err)
}
