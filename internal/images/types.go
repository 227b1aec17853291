package images

import (
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/bioreel/internal/config"
)

// ShotState tracks one shot through the search-then-download loop.
type ShotState int

const (
	ShotPending ShotState = iota
	ShotSearching
	ShotDownloading
	ShotSatisfied
	ShotPartial
	ShotExhausted
	ShotSkipped
)

var shotStateNames = map[ShotState]string{
	ShotPending:     "pending",
	ShotSearching:   "searching",
	ShotDownloading: "downloading",
	ShotSatisfied:   "satisfied",
	ShotPartial:     "partial",
	ShotExhausted:   "exhausted",
	ShotSkipped:     "skipped",
}

func (s ShotState) String() string {
	if name, ok := shotStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ShotState(%d)", int(s))
}

func (s ShotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ShotState) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for state, n := range shotStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown shot state %q", string(text))
}

// Shot is the part of a storyboard row the engine needs.
type Shot struct {
	Number int
	Query  string
}

// ImageRecord describes one download attempt that got as far as a decision.
type ImageRecord struct {
	Filename          string    `json:"filename,omitempty"`
	Thumbnail         string    `json:"thumbnail,omitempty"`
	Shot              int       `json:"shot"`
	SourceURL         string    `json:"url"`
	ContextURL        string    `json:"context_url,omitempty"`
	Title             string    `json:"title,omitempty"`
	ContentHash       string    `json:"hash,omitempty"`
	Width             int       `json:"width,omitempty"`
	Height            int       `json:"height,omitempty"`
	Format            string    `json:"format,omitempty"`
	SizeBytes         int64     `json:"size_bytes,omitempty"`
	Domain            string    `json:"domain"`
	DomainScore       int       `json:"domain_score"`
	DownloadSucceeded bool      `json:"download_succeeded"`
	Error             string    `json:"error,omitempty"`
	DownloadedAt      time.Time `json:"downloaded_at"`
}

// ShotMetadata is the per-shot outcome kept in the metadata file and the
// run summary.
type ShotMetadata struct {
	SearchQuery         string    `json:"search_query"`
	APICalls            int       `json:"api_calls"`
	TotalResults        int       `json:"total_results"`
	DownloadAttempts    int       `json:"download_attempts"`
	SuccessfulDownloads int       `json:"successful_downloads"`
	FailedDownloads     int       `json:"failed_downloads"`
	ExistingCount       int       `json:"existing_count,omitempty"`
	State               ShotState `json:"state"`
	LimitSkipped        bool      `json:"limit_skipped,omitempty"`
	Error               string    `json:"error,omitempty"`
	Files               []string  `json:"files,omitempty"`
}

// Summary is the result of one engine run.
type Summary struct {
	ActorName           string               `json:"actor_name"`
	TotalShots          int                  `json:"total_shots"`
	ProcessedShots      int                  `json:"processed_shots"`
	SkippedShots        int                  `json:"skipped_shots"`
	LimitSkippedShots   int                  `json:"limit_skipped_shots"`
	TotalAPICalls       int                  `json:"total_api_calls"`
	TotalDownloads      int                  `json:"total_downloads"`
	SuccessfulDownloads int                  `json:"successful_downloads"`
	FailedDownloads     int                  `json:"failed_downloads"`
	SearchErrors        int                  `json:"search_errors"`
	Shots               map[int]ShotMetadata `json:"shot_metadata"`
	FailedDomains       map[string]int       `json:"failed_domains"`
	LimitReached        bool                 `json:"limit_reached"`
	PersistErrors       []string             `json:"persist_errors,omitempty"`
	Timestamp           time.Time            `json:"timestamp"`
}

// Status counts how many shots already have images on disk.
type Status struct {
	Total      int `json:"total"`
	WithImages int `json:"with_images"`
	Missing    int `json:"missing"`
	Complete   int `json:"complete"`
}

// Options tunes the engine and the downloader.
type Options struct {
	Target      int
	Minimum     int
	MaxSearches int
	Concurrency int

	// Timeout bounds one download: the HEAD probe plus every GET attempt.
	Timeout time.Duration
	// HeadTimeout bounds the size probe, at most a quarter of Timeout.
	HeadTimeout time.Duration
	// AttemptTimeout bounds one GET. Longer values are cut so that all
	// attempts fit in what the probe leaves of Timeout.
	AttemptTimeout time.Duration

	MaxBytes     int64
	ThumbWidth   int
	ThumbHeight  int
	MinWidth     int
	MinHeight    int
	SkipExisting bool
	UserAgent    string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func DefaultOptions() Options {
	return Options{
		Target:       10,
		Minimum:      3,
		MaxSearches:  5,
		Concurrency:  5,
		Timeout:      30 * time.Second,
		HeadTimeout:  5 * time.Second,
		MaxBytes:     20 * 1024 * 1024,
		ThumbWidth:   320,
		ThumbHeight:  180,
		SkipExisting: true,
		UserAgent:    defaultUserAgent,
	}
}

// OptionsFromConfig maps the image settings onto engine options.
func OptionsFromConfig(c config.ImagesConfig) Options {
	o := DefaultOptions()
	o.Target = c.PerShot
	o.Minimum = c.MinPerShot
	o.MaxSearches = c.MaxSearches
	o.Concurrency = c.Concurrency
	o.Timeout = c.DownloadTimeout
	o.MaxBytes = c.MaxBytes()
	o.ThumbWidth = c.ThumbWidth
	o.ThumbHeight = c.ThumbHeight
	o.MinWidth = c.MinWidth
	o.MinHeight = c.MinHeight
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Target <= 0 {
		o.Target = d.Target
	}
	if o.Minimum <= 0 {
		o.Minimum = d.Minimum
	}
	if o.Minimum > o.Target {
		o.Minimum = o.Target
	}
	if o.MaxSearches <= 0 {
		o.MaxSearches = d.MaxSearches
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.HeadTimeout <= 0 {
		o.HeadTimeout = d.HeadTimeout
	}
	if o.HeadTimeout > o.Timeout/4 {
		o.HeadTimeout = o.Timeout / 4
	}
	if budget := (o.Timeout - o.HeadTimeout) / getAttempts; o.AttemptTimeout <= 0 || o.AttemptTimeout > budget {
		o.AttemptTimeout = budget
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.ThumbWidth <= 0 || o.ThumbHeight <= 0 {
		o.ThumbWidth, o.ThumbHeight = d.ThumbWidth, d.ThumbHeight
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}
