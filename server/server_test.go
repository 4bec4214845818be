package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	items    []core.Item
	err      error
	lastK    int
	lastOn   bool
	recorded []string
}

func newFakeService() *fakeService {
	return &fakeService{items: []core.Item{
		{Position: 0, ID: "a", Title: "Inception", Rating: core.Float(8.8)},
		{Position: 1, ID: "b", Title: "Interstellar", Rating: core.Float(8.6)},
		{Position: 2, ID: "c", Title: "Heat"},
	}}
}

func (f *fakeService) recs(k int) []core.Recommendation {
	out := make([]core.Recommendation, 0, k)
	for i := 0; i < len(f.items) && i < k; i++ {
		out = append(out, core.Recommendation{Item: f.items[i], Score: 1 - float32(i)/10})
	}
	return out
}

func (f *fakeService) RecommendByTitle(ctx context.Context, kind core.Kind, query string, k int) ([]core.Recommendation, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.recs(k), nil
}

func (f *fakeService) RecommendForItem(ctx context.Context, kind core.Kind, position, k int) ([]core.Recommendation, error) {
	if position < 0 || position >= len(f.items) {
		return nil, fmt.Errorf("%w: %d", core.ErrOutOfRange, position)
	}
	return f.recs(k), nil
}

func (f *fakeService) Popular(ctx context.Context, kind core.Kind, k int, online bool) ([]core.Item, error) {
	f.lastK, f.lastOn = k, online
	return f.items[:min(k, len(f.items))], f.err
}

func (f *fakeService) SearchOnline(ctx context.Context, kind core.Kind, query string, k int) ([]core.Item, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Item
	for _, it := range f.items {
		if strings.Contains(strings.ToLower(it.Title), strings.ToLower(query)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeService) AllTime(ctx context.Context, kind core.Kind, k int) ([]core.Item, error) {
	f.lastK = k
	return f.items[:min(k, len(f.items))], f.err
}

func (f *fakeService) Preview(ctx context.Context, kind core.Kind, n int) ([]core.Item, error) {
	f.lastK = n
	return f.items[:min(n, len(f.items))], f.err
}

func (f *fakeService) RecordItems(ctx context.Context, kind core.Kind, query string, ids []string) ([]*core.HistoryEntry, error) {
	var out []*core.HistoryEntry
	for i, id := range ids {
		if id == "missing" {
			return nil, fmt.Errorf("%w: unknown item id %q", core.ErrOutOfRange, id)
		}
		f.recorded = append(f.recorded, id)
		out = append(out, &core.HistoryEntry{ID: int64(i + 1), Kind: kind, Query: query, ItemID: id, Timestamp: time.Now().UTC()})
	}
	return out, nil
}

func (f *fakeService) History(ctx context.Context, kind core.Kind, limit int) ([]*core.HistoryEntry, error) {
	f.lastK = limit
	return []*core.HistoryEntry{{ID: 1, Kind: kind, Query: "heat", ItemID: "c", ItemTitle: "Heat"}}, f.err
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	h := New(newFakeService()).Handler()

	rec, body := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRecommend(t *testing.T) {
	svc := newFakeService()
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/Movies/recommend?q=inception&k=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "movies", body["kind"])
	assert.Equal(t, "inception", body["query"])
	recs := body["recommendations"].([]any)
	require.Len(t, recs, 2)
	first := recs[0].(map[string]any)
	assert.Equal(t, "Inception", first["title"])
	assert.InDelta(t, 1.0, first["score"], 1e-6)
	assert.InDelta(t, 8.8, first["rating"], 1e-9)

	_, _ = do(t, h, http.MethodGet, "/api/movies/recommend?q=x", "")
	assert.Equal(t, defaultK, svc.lastK)

	_, _ = do(t, h, http.MethodGet, "/api/movies/recommend?q=x&k=100000", "")
	assert.Equal(t, maxK, svc.lastK)
}

func TestSimilar(t *testing.T) {
	h := New(newFakeService()).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/series/items/1/similar?k=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["position"])
	assert.Len(t, body["recommendations"], 1)

	rec, body = do(t, h, http.MethodGet, "/api/series/items/9/similar", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "out of range")

	rec, _ = do(t, h, http.MethodGet, "/api/series/items/abc/similar", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListings(t *testing.T) {
	svc := newFakeService()
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/anime/popular?k=2&online=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 2)
	assert.True(t, svc.lastOn)

	_, _ = do(t, h, http.MethodGet, "/api/anime/popular", "")
	assert.False(t, svc.lastOn)

	rec, body = do(t, h, http.MethodGet, "/api/movies/alltime?k=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Inception", items[0].(map[string]any)["title"])

	rec, _ = do(t, h, http.MethodGet, "/api/movies/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPreview, svc.lastK)
}

func TestSearch(t *testing.T) {
	svc := newFakeService()
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/movies/search?q=inter&k=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inter", body["query"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Interstellar", items[0].(map[string]any)["title"])
	assert.Equal(t, 5, svc.lastK)

	rec, _ = do(t, h, http.MethodGet, "/api/movies/search?q=%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	svc := newFakeService()
	h := New(svc).Handler()

	rec, body := do(t, h, http.MethodPost, "/api/movies/history", `{"query":"heat","item_ids":["a","c"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, body["history"], 2)
	assert.Equal(t, []string{"a", "c"}, svc.recorded)

	rec, _ = do(t, h, http.MethodPost, "/api/movies/history", `{"query":"heat","item_ids":["missing"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/movies/history", `{"query":"heat"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/movies/history", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/movies/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.lastK)
	entry := body["history"].([]any)[0].(map[string]any)
	assert.Equal(t, "Heat", entry["item_title"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"unknown kind", "/api/books/popular", nil, http.StatusBadRequest},
		{"negative k", "/api/movies/popular?k=-1", nil, http.StatusBadRequest},
		{"non-numeric k", "/api/movies/alltime?k=ten", nil, http.StatusBadRequest},
		{"missing catalog", "/api/movies/popular", fmt.Errorf("load: %w", core.ErrCatalogUnavailable), http.StatusServiceUnavailable},
		{"embedding failure", "/api/movies/recommend?q=x", fmt.Errorf("%w: boom", core.ErrEmbeddingFailure), http.StatusInternalServerError},
		{"no tmdb key", "/api/movies/search?q=x", metadata.ErrNoAPIKey, http.StatusServiceUnavailable},
		{"tmdb rejected key", "/api/series/search?q=x", fmt.Errorf("tmdb search/tv: %w", metadata.ErrUnauthorized), http.StatusBadGateway},
		{"other", "/api/movies/alltime", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.err = tt.err
			rec, body := do(t, New(svc).Handler(), http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "plexrec_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := New(newFakeService(), WithGatherer(reg)).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plexrec_test_total 1")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(newFakeService()).ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
