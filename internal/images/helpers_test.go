package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bioreel/internal/search"
)

// noiseImage is deterministic for a seed, so equal seeds give equal bytes.
func noiseImage(seed int64, w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func makeJPEG(t *testing.T, seed int64, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, noiseImage(seed, w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func makePNG(t *testing.T, seed int64, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(seed, w, h)))
	return buf.Bytes()
}

type asset struct {
	contentType string
	body        []byte
}

// imageHost serves fixed assets and counts GET requests per path.
type imageHost struct {
	*httptest.Server
	mu     sync.Mutex
	assets map[string]asset
	gets   map[string]int
}

func newImageHost(t *testing.T) *imageHost {
	t.Helper()
	h := &imageHost{assets: make(map[string]asset), gets: make(map[string]int)}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		a, ok := h.assets[r.URL.Path]
		if r.Method == http.MethodGet {
			h.gets[r.URL.Path]++
		}
		h.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", a.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(a.body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(a.body)
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *imageHost) add(path, contentType string, body []byte) search.Result {
	h.mu.Lock()
	h.assets[path] = asset{contentType: contentType, body: body}
	h.mu.Unlock()
	return search.Result{Title: path, URL: h.URL + path, Mime: contentType}
}

func (h *imageHost) getCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gets[path]
}

func (h *imageHost) totalGets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.gets {
		n += c
	}
	return n
}

type searchCall struct {
	query string
	start int
}

// fakeSearch plays scripted result pages and doubles as the quota.
type fakeSearch struct {
	mu       sync.Mutex
	pages    map[string][][]search.Result
	calls    []searchCall
	served   map[string]int
	limit    int
	failures map[string]int
	// onSearch, when set, runs before the n-th call returns.
	onSearch func(n int)
}

func newFakeSearch(limit int) *fakeSearch {
	return &fakeSearch{
		pages:    make(map[string][][]search.Result),
		served:   make(map[string]int),
		limit:    limit,
		failures: make(map[string]int),
	}
}

func (f *fakeSearch) Search(_ context.Context, _ string, query string, start int) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) >= f.limit {
		return nil, search.ErrQuotaExhausted
	}
	f.calls = append(f.calls, searchCall{query: query, start: start})
	if f.onSearch != nil {
		f.onSearch(len(f.calls))
	}
	i := f.served[query]
	f.served[query]++
	if i >= len(f.pages[query]) {
		return nil, nil
	}
	return f.pages[query][i], nil
}

func (f *fakeSearch) Remaining(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit - len(f.calls), nil
}

func (f *fakeSearch) AddFailures(_ context.Context, deltas map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d, n := range deltas {
		f.failures[d] += n
	}
	return nil
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testOptions() Options {
	return Options{
		Target:         10,
		Minimum:        3,
		MaxSearches:    5,
		Concurrency:    3,
		Timeout:        5 * time.Second,
		AttemptTimeout: 2 * time.Second,
		MaxBytes:       1 << 20,
		ThumbWidth:     320,
		ThumbHeight:    180,
		SkipExisting:   true,
	}
}

// flakyQuota fails the first failures write.
type flakyQuota struct {
	*fakeSearch
	writes int
}

func (q *flakyQuota) AddFailures(ctx context.Context, deltas map[string]int) error {
	q.writes++
	if q.writes == 1 {
		return errors.New("database is locked")
	}
	return q.fakeSearch.AddFailures(ctx, deltas)
}
