package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/MimeLyc/bioreel/pkg/log"
)

// MaxResultsPerCall is the Custom Search page size ceiling.
const MaxResultsPerCall = 10

var (
	ErrQuotaExhausted = errors.New("daily image search limit reached")
	ErrRateLimited    = errors.New("image search rate limit exceeded, try again later")
)

// Quota is the daily gate consulted before every call.
type Quota interface {
	Remaining(ctx context.Context) (int, error)
	Consume(ctx context.Context, actor string) (int, error)
}

// Result is one image hit.
type Result struct {
	Title         string `json:"title"`
	URL           string `json:"link"`
	DisplayDomain string `json:"display_link"`
	Snippet       string `json:"snippet"`
	Mime          string `json:"mime"`
	FileFormat    string `json:"file_format,omitempty"`
	ContextURL    string `json:"context_link,omitempty"`
	ThumbnailURL  string `json:"thumbnail_link,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

// Domain is the host the image is served from.
func (r Result) Domain() string {
	if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return r.DisplayDomain
}

// Config configures a Client.
type Config struct {
	APIKey   string
	EngineID string
	// Endpoint overrides the Custom Search base URL.
	Endpoint string
	// Pacing is the minimum gap between two calls. Zero disables pacing.
	Pacing time.Duration
}

// Client issues image searches through the Custom Search JSON API.
type Client struct {
	svc      *customsearch.Service
	engineID string
	quota    Quota
	limiter  *rate.Limiter
}

// NewClient creates a new image search client
func NewClient(ctx context.Context, cfg Config, quota Quota) (*Client, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("search api key and engine id are required")
	}
	if quota == nil {
		return nil, fmt.Errorf("search quota is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}

	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}

	return &Client{
		svc:      svc,
		engineID: cfg.EngineID,
		quota:    quota,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// Search fetches one page of image results. start is the 1-based offset of
// the first result. Each successful call consumes one unit of quota for actor.
func (c *Client) Search(ctx context.Context, actor, query string, start int) ([]Result, error) {
	remaining, err := c.quota.Remaining(ctx)
	if err != nil {
		return nil, fmt.Errorf("check search quota: %w", err)
	}
	if remaining <= 0 {
		return nil, ErrQuotaExhausted
	}
	if start < 1 {
		start = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	log.Info("Searching images for: %s (start: %d, remaining quota: %d)", query, start, remaining)
	resp, err := c.svc.Cse.List().
		Cx(c.engineID).
		Q(query).
		SearchType("image").
		Num(MaxResultsPerCall).
		Start(int64(start)).
		Safe("active").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			log.Error("Image search rate limit exceeded")
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("image search failed: %w", err)
	}

	if _, err := c.quota.Consume(ctx, actor); err != nil {
		log.Warn("Failed to persist search quota: %v", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, toResult(item))
	}
	log.Info("Found %d images for query: %s", len(results), query)
	return results, nil
}

func toResult(item *customsearch.Result) Result {
	r := Result{
		Title:         item.Title,
		URL:           item.Link,
		DisplayDomain: item.DisplayLink,
		Snippet:       item.Snippet,
		Mime:          item.Mime,
		FileFormat:    item.FileFormat,
	}
	if item.Image != nil {
		r.ContextURL = item.Image.ContextLink
		r.ThumbnailURL = item.Image.ThumbnailLink
		r.Width = int(item.Image.Width)
		r.Height = int(item.Image.Height)
	}
	return r
}
