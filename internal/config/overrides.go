package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/icron"
)

const DefaultOverridesFile = "bioreel.yaml"

// Overrides is the optional YAML settings file. Zero values leave the
// environment-derived setting untouched.
type Overrides struct {
	LLMAPIURL        string   `yaml:"llm_api_url,omitempty"`
	ScriptModel      string   `yaml:"script_model,omitempty"`
	ScriptFallback   string   `yaml:"script_fallback_model,omitempty"`
	PhoneticModels   []string `yaml:"phonetic_models,omitempty"`
	StoryboardModel  string   `yaml:"storyboard_model,omitempty"`
	MusicModel       string   `yaml:"music_model,omitempty"`
	DailySearchLimit int      `yaml:"daily_search_limit,omitempty"`
	ImagesPerShot    int      `yaml:"images_per_shot,omitempty"`
	MinImagesPerShot int      `yaml:"min_images_per_shot,omitempty"`
	OutputDir        string   `yaml:"output_dir,omitempty"`
	StateBackend     string   `yaml:"state_backend,omitempty"`
	BatchCron        string   `yaml:"batch_cron,omitempty"`
	LogLevel         string   `yaml:"log_level,omitempty"`
}

func OverridesFilePath() string {
	return getEnvString("BIOREEL_CONFIG", DefaultOverridesFile)
}

func (o Overrides) Validate() error {
	if o.DailySearchLimit < 0 {
		return fmt.Errorf("daily_search_limit must not be negative")
	}
	if o.ImagesPerShot < 0 || o.MinImagesPerShot < 0 {
		return fmt.Errorf("image counts must not be negative")
	}
	if b := strings.ToLower(strings.TrimSpace(o.StateBackend)); b != "" && b != StateBackendJSON && b != StateBackendSQLite {
		return fmt.Errorf("invalid state_backend %q", o.StateBackend)
	}
	if strings.TrimSpace(o.BatchCron) != "" {
		if _, err := icron.Parse(o.BatchCron); err != nil {
			return fmt.Errorf("invalid batch_cron: %w", err)
		}
	}
	return nil
}

func WithOverrides(o Overrides) Option {
	return func(c *Config) {
		if strings.TrimSpace(o.LLMAPIURL) != "" {
			c.LLM.APIURL = o.LLMAPIURL
		}
		if strings.TrimSpace(o.ScriptModel) != "" {
			c.Models.Script = o.ScriptModel
		}
		if strings.TrimSpace(o.ScriptFallback) != "" {
			c.Models.ScriptFallback = o.ScriptFallback
		}
		if len(o.PhoneticModels) > 0 {
			c.Models.Phonetic = append([]string(nil), o.PhoneticModels...)
		}
		if strings.TrimSpace(o.StoryboardModel) != "" {
			c.Models.Storyboard = o.StoryboardModel
		}
		if strings.TrimSpace(o.MusicModel) != "" {
			c.Models.Music = o.MusicModel
		}
		if o.DailySearchLimit > 0 {
			c.Search.DailyLimit = o.DailySearchLimit
		}
		if o.ImagesPerShot > 0 {
			c.Images.PerShot = o.ImagesPerShot
		}
		if o.MinImagesPerShot > 0 {
			c.Images.MinPerShot = o.MinImagesPerShot
		}
		if strings.TrimSpace(o.OutputDir) != "" {
			WithOutputDir(o.OutputDir)(c)
		}
		if strings.TrimSpace(o.StateBackend) != "" {
			c.State.Backend = strings.ToLower(strings.TrimSpace(o.StateBackend))
		}
		if strings.TrimSpace(o.BatchCron) != "" {
			c.Batch.CronExpr = o.BatchCron
		}
		if strings.TrimSpace(o.LogLevel) != "" {
			c.Log.Level = o.LogLevel
		}
	}
}

// LoadOverridesFile reads the YAML overrides. A missing file returns an
// error satisfying errors.Is(err, os.ErrNotExist).
func LoadOverridesFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, err
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, fmt.Errorf("invalid overrides file: %w", err)
	}
	if err := o.Validate(); err != nil {
		return Overrides{}, err
	}
	return o, nil
}

func WriteOverridesFile(path string, o Overrides) error {
	if err := o.Validate(); err != nil {
		return err
	}
	content, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return file.WriteAtomic(path, content, 0o600)
}
