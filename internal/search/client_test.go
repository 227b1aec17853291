package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bioreel/internal/quota"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

func newTracker(t *testing.T, limit int) (*quota.Tracker, quota.StateStore) {
	t.Helper()
	store := quota.NewFileStore(filepath.Join(t.TempDir(), ".google_api_usage.json"))
	return quota.NewTracker(store, limit, quota.WithClock(fixedNow)), store
}

func newClient(t *testing.T, endpoint string, q Quota) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{
		APIKey:   "test-key",
		EngineID: "test-cx",
		Endpoint: endpoint,
	}, q)
	require.NoError(t, err)
	return c
}

func TestClient_Search_WithMockServer(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-cx", q.Get("cx"))
		assert.Equal(t, "Tom Hanks 1994 Forrest Gump", q.Get("q"))
		assert.Equal(t, "image", q.Get("searchType"))
		assert.Equal(t, "10", q.Get("num"))
		assert.Equal(t, "11", q.Get("start"))
		assert.Equal(t, "active", q.Get("safe"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"title":       "Forrest Gump still",
					"link":        "https://upload.wikimedia.org/a.jpg",
					"displayLink": "commons.wikimedia.org",
					"snippet":     "Tom Hanks as Forrest Gump",
					"mime":        "image/jpeg",
					"fileFormat":  "image/jpeg",
					"image": map[string]any{
						"contextLink":   "https://commons.wikimedia.org/wiki/File:a.jpg",
						"thumbnailLink": "https://encrypted-tbn0.gstatic.com/a",
						"width":         1280,
						"height":        720,
					},
				},
				{"title": "no link"},
			},
		})
	}))
	defer server.Close()

	tracker, _ := newTracker(t, 100)
	c := newClient(t, server.URL, tracker)

	results, err := c.Search(context.Background(), "Tom Hanks", "Tom Hanks 1994 Forrest Gump", 11)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(1), hits.Load())

	r := results[0]
	assert.Equal(t, "https://upload.wikimedia.org/a.jpg", r.URL)
	assert.Equal(t, "commons.wikimedia.org", r.DisplayDomain)
	assert.Equal(t, "upload.wikimedia.org", r.Domain())
	assert.Equal(t, "https://commons.wikimedia.org/wiki/File:a.jpg", r.ContextURL)
	assert.Equal(t, 1280, r.Width)

	usage, err := tracker.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.SearchesToday)
	assert.Equal(t, []string{"Tom Hanks"}, usage.ActorsSearched)
}

func TestClient_Search_QuotaGateMakesNoCall(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	tracker, store := newTracker(t, 100)
	require.NoError(t, store.Save(context.Background(), quota.State{
		Date:         "2025-06-01",
		SearchesUsed: 100,
		Actors:       map[string]int{"Tom Hanks": 100},
	}))
	c := newClient(t, server.URL, tracker)

	_, err := c.Search(context.Background(), "Tom Hanks", "Tom Hanks", 1)
	require.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Zero(t, hits.Load())

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, st.SearchesUsed)
}

func TestClient_Search_RateLimited(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Quota exceeded"}}`))
	}))
	defer server.Close()

	tracker, _ := newTracker(t, 100)
	c := newClient(t, server.URL, tracker)

	_, err := c.Search(context.Background(), "Tom Hanks", "Tom Hanks", 1)
	require.ErrorIs(t, err, ErrRateLimited)

	usage, err := tracker.Usage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, usage.SearchesToday)
}

func TestClient_Search_APIError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "API key not valid"}}`))
	}))
	defer server.Close()

	tracker, _ := newTracker(t, 100)
	c := newClient(t, server.URL, tracker)

	_, err := c.Search(context.Background(), "Tom Hanks", "Tom Hanks", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "image search failed")
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Parallel()
	tracker, _ := newTracker(t, 100)
	_, err := NewClient(context.Background(), Config{EngineID: "cx"}, tracker)
	assert.Error(t, err)
	_, err = NewClient(context.Background(), Config{APIKey: "k", EngineID: "cx"}, nil)
	assert.Error(t, err)
}
