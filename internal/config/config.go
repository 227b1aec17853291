package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/bioreel/pkg/icron"
)

// Config holds all application configuration.
// Values come from environment variables (a .env file is loaded by the
// CLI before NewFromEnv runs), optionally overridden by a YAML file.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the completion provider (required)
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MAX_TOKENS: Maximum completion tokens (default: 16000)
// - LLM_TEMPERATURE: Sampling temperature (default: 1.0)
// - LLM_TIMEOUT: Request timeout in seconds (default: 600)
// - LLM_SITE_URL / LLM_APP_NAME: optional attribution headers
//
// Models:
// - SCRIPT_MODEL (default: o3-2025-04-16), SCRIPT_FALLBACK_MODEL (default: o3-mini-2025-01-31)
// - PHONETIC_MODELS: comma separated ladder (default: o4-mini,gpt-4o,o3-mini-2025-01-31,gpt-4-turbo)
// - STORYBOARD_MODEL, MUSIC_MODEL (default: o3-2025-04-16)
// - USE_FALLBACK (default: true), REASONING_EFFORT (default: high)
//
// Generation:
// - MAX_RETRIES (default: 3), RETRY_DELAY (default: 2s), STRICT_COVERAGE (default: false)
//
// Image search:
// - GOOGLE_API_KEY, GOOGLE_CSE_ID: required for the image stage
// - GOOGLE_SEARCH_URL: endpoint override
// - DAILY_SEARCH_LIMIT (default: 100), SEARCH_PACING (default: 500ms)
// - IMAGES_PER_SHOT (10), MIN_IMAGES_PER_SHOT (3), MAX_SEARCHES_PER_SHOT (5)
// - DOWNLOAD_CONCURRENCY (5), DOWNLOAD_TIMEOUT (30s), MAX_IMAGE_SIZE_MB (20)
// - THUMBNAIL_SIZE (320x180), MIN_IMAGE_WIDTH / MIN_IMAGE_HEIGHT (0 disables)
//
// Storage:
// - OUTPUT_DIR (default: output)
// - STATE_BACKEND: json or sqlite (default: json)
// - STATE_FILE (default: $OUTPUT_DIR/.google_api_usage.json)
// - STATE_DB (default: $OUTPUT_DIR/.bioreel_state.db)
//
// Batch:
// - BATCH_CRON: cron expression, empty runs once
// - BATCH_PAUSE (default: 1s)
//
// Mirror (disabled unless endpoint and bucket are set):
// - MIRROR_ENDPOINT, MIRROR_BUCKET, MIRROR_ACCESS_KEY, MIRROR_SECRET_KEY,
//   MIRROR_USE_SSL (default: true), MIRROR_REGION
//
// Logging:
// - LOG_LEVEL (default: info), LOG_FILE (optional)
type Config struct {
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Models     ModelsConfig     `json:"models" yaml:"models"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Search     SearchConfig     `json:"search" yaml:"search"`
	Images     ImagesConfig     `json:"images" yaml:"images"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	State      StateConfig      `json:"state" yaml:"state"`
	Batch      BatchConfig      `json:"batch" yaml:"batch"`
	Mirror     MirrorConfig     `json:"mirror" yaml:"mirror"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// LLMConfig holds the connection settings for the completion provider
type LLMConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	APIURL      string  `json:"api_url" yaml:"api_url"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Timeout     int     `json:"timeout" yaml:"timeout"`
	SiteURL     string  `json:"site_url" yaml:"site_url"`
	AppName     string  `json:"app_name" yaml:"app_name"`
}

type ModelsConfig struct {
	Script          string   `json:"script" yaml:"script"`
	ScriptFallback  string   `json:"script_fallback" yaml:"script_fallback"`
	Phonetic        []string `json:"phonetic" yaml:"phonetic"`
	Storyboard      string   `json:"storyboard" yaml:"storyboard"`
	Music           string   `json:"music" yaml:"music"`
	UseFallback     bool     `json:"use_fallback" yaml:"use_fallback"`
	ReasoningEffort string   `json:"reasoning_effort" yaml:"reasoning_effort"`
}

type GenerationConfig struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay"`
	StrictCoverage bool          `json:"strict_coverage" yaml:"strict_coverage"`
}

// SearchConfig holds the Custom Search credentials and the daily quota
type SearchConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	EngineID   string        `json:"engine_id" yaml:"engine_id"`
	Endpoint   string        `json:"endpoint" yaml:"endpoint"`
	DailyLimit int           `json:"daily_limit" yaml:"daily_limit"`
	Pacing     time.Duration `json:"pacing" yaml:"pacing"`
}

type ImagesConfig struct {
	PerShot         int           `json:"per_shot" yaml:"per_shot"`
	MinPerShot      int           `json:"min_per_shot" yaml:"min_per_shot"`
	MaxSearches     int           `json:"max_searches" yaml:"max_searches"`
	Concurrency     int           `json:"concurrency" yaml:"concurrency"`
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout"`
	MaxSizeMB       int           `json:"max_size_mb" yaml:"max_size_mb"`
	ThumbWidth      int           `json:"thumb_width" yaml:"thumb_width"`
	ThumbHeight     int           `json:"thumb_height" yaml:"thumb_height"`
	MinWidth        int           `json:"min_width" yaml:"min_width"`
	MinHeight       int           `json:"min_height" yaml:"min_height"`
}

// MaxBytes is the per-image size ceiling in bytes
func (c ImagesConfig) MaxBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}

type OutputConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type StateConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	File    string `json:"file" yaml:"file"`
	DB      string `json:"db" yaml:"db"`
}

type BatchConfig struct {
	CronExpr string        `json:"cron_expr" yaml:"cron_expr"`
	Pause    time.Duration `json:"pause" yaml:"pause"`
}

type MirrorConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	AccessKey string `json:"-" yaml:"access_key"`
	SecretKey string `json:"-" yaml:"secret_key"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	Region    string `json:"region" yaml:"region"`
}

// Enabled reports whether both an endpoint and a bucket are configured
func (c MirrorConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

const (
	StateBackendJSON   = "json"
	StateBackendSQLite = "sqlite"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	outputDir := getEnvString("OUTPUT_DIR", "output")
	thumbW, thumbH := parseSize(getEnvString("THUMBNAIL_SIZE", "320x180"), 320, 180)

	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 16000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 1.0),
			Timeout:     getEnvInt("LLM_TIMEOUT", 600),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Models: ModelsConfig{
			Script:          getEnvString("SCRIPT_MODEL", "o3-2025-04-16"),
			ScriptFallback:  getEnvString("SCRIPT_FALLBACK_MODEL", "o3-mini-2025-01-31"),
			Phonetic:        getEnvList("PHONETIC_MODELS", []string{"o4-mini", "gpt-4o", "o3-mini-2025-01-31", "gpt-4-turbo"}),
			Storyboard:      getEnvString("STORYBOARD_MODEL", "o3-2025-04-16"),
			Music:           getEnvString("MUSIC_MODEL", "o3-2025-04-16"),
			UseFallback:     getEnvBool("USE_FALLBACK", true),
			ReasoningEffort: getEnvString("REASONING_EFFORT", "high"),
		},
		Generation: GenerationConfig{
			MaxRetries:     getEnvInt("MAX_RETRIES", 3),
			RetryDelay:     getEnvDuration("RETRY_DELAY", 2*time.Second),
			StrictCoverage: getEnvBool("STRICT_COVERAGE", false),
		},
		Search: SearchConfig{
			APIKey:     getEnvString("GOOGLE_API_KEY", ""),
			EngineID:   getEnvString("GOOGLE_CSE_ID", ""),
			Endpoint:   getEnvString("GOOGLE_SEARCH_URL", ""),
			DailyLimit: getEnvInt("DAILY_SEARCH_LIMIT", 100),
			Pacing:     getEnvDuration("SEARCH_PACING", 500*time.Millisecond),
		},
		Images: ImagesConfig{
			PerShot:         getEnvInt("IMAGES_PER_SHOT", 10),
			MinPerShot:      getEnvInt("MIN_IMAGES_PER_SHOT", 3),
			MaxSearches:     getEnvInt("MAX_SEARCHES_PER_SHOT", 5),
			Concurrency:     getEnvInt("DOWNLOAD_CONCURRENCY", 5),
			DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxSizeMB:       getEnvInt("MAX_IMAGE_SIZE_MB", 20),
			ThumbWidth:      thumbW,
			ThumbHeight:     thumbH,
			MinWidth:        getEnvInt("MIN_IMAGE_WIDTH", 0),
			MinHeight:       getEnvInt("MIN_IMAGE_HEIGHT", 0),
		},
		Output: OutputConfig{
			Dir: outputDir,
		},
		State: StateConfig{
			Backend: strings.ToLower(getEnvString("STATE_BACKEND", StateBackendJSON)),
			File:    getEnvString("STATE_FILE", filepath.Join(outputDir, ".google_api_usage.json")),
			DB:      getEnvString("STATE_DB", filepath.Join(outputDir, ".bioreel_state.db")),
		},
		Batch: BatchConfig{
			CronExpr: getEnvString("BATCH_CRON", ""),
			Pause:    getEnvDuration("BATCH_PAUSE", time.Second),
		},
		Mirror: MirrorConfig{
			Endpoint:  getEnvString("MIRROR_ENDPOINT", ""),
			Bucket:    getEnvString("MIRROR_BUCKET", ""),
			AccessKey: getEnvString("MIRROR_ACCESS_KEY", ""),
			SecretKey: getEnvString("MIRROR_SECRET_KEY", ""),
			UseSSL:    getEnvBool("MIRROR_USE_SSL", true),
			Region:    getEnvString("MIRROR_REGION", ""),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// WithOutputDir moves the output tree and the default state locations with it.
func WithOutputDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		if c.State.File == filepath.Join(c.Output.Dir, ".google_api_usage.json") {
			c.State.File = filepath.Join(dir, ".google_api_usage.json")
		}
		if c.State.DB == filepath.Join(c.Output.Dir, ".bioreel_state.db") {
			c.State.DB = filepath.Join(dir, ".bioreel_state.db")
		}
		c.Output.Dir = dir
	}
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.Search.DailyLimit < 0 {
		return fmt.Errorf("DAILY_SEARCH_LIMIT must not be negative")
	}
	if c.Images.MinPerShot < 1 || c.Images.PerShot < c.Images.MinPerShot {
		return fmt.Errorf("MIN_IMAGES_PER_SHOT must be between 1 and IMAGES_PER_SHOT")
	}
	if c.Images.PerShot > 25 {
		return fmt.Errorf("IMAGES_PER_SHOT must not exceed 25 (letters B-Z)")
	}
	if c.Images.Concurrency < 1 {
		return fmt.Errorf("DOWNLOAD_CONCURRENCY must be at least 1")
	}
	if c.Images.MaxSizeMB < 1 {
		return fmt.Errorf("MAX_IMAGE_SIZE_MB must be at least 1")
	}
	switch c.State.Backend {
	case StateBackendJSON, StateBackendSQLite:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendJSON, StateBackendSQLite, c.State.Backend)
	}
	if c.Batch.CronExpr != "" {
		if _, err := icron.Parse(c.Batch.CronExpr); err != nil {
			return fmt.Errorf("BATCH_CRON: %w", err)
		}
	}
	return nil
}

// ValidateSearch checks the credentials needed by the image stage only.
func (c *Config) ValidateSearch() error {
	if c.Search.APIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required for image search")
	}
	if c.Search.EngineID == "" {
		return fmt.Errorf("GOOGLE_CSE_ID is required for image search")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or plain seconds ("2").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}

// parseSize reads "WxH".
func parseSize(value string, defW, defH int) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(value), "x")
	if !ok {
		return defW, defH
	}
	wi, errW := strconv.Atoi(strings.TrimSpace(w))
	hi, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || wi <= 0 || hi <= 0 {
		return defW, defH
	}
	return wi, hi
}
