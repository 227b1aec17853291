package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/bioreel/internal/config"
	"github.com/MimeLyc/bioreel/internal/generation"
	"github.com/MimeLyc/bioreel/internal/images"
	"github.com/MimeLyc/bioreel/internal/llm"
	"github.com/MimeLyc/bioreel/internal/mirror"
	"github.com/MimeLyc/bioreel/internal/pipeline"
	"github.com/MimeLyc/bioreel/internal/project"
	"github.com/MimeLyc/bioreel/internal/quota"
	"github.com/MimeLyc/bioreel/internal/search"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// newCompleter builds the completion client. Tests replace it.
var newCompleter = func(cfg *config.Config) (generation.Completer, error) {
	return llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.Models.Script,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
}

// loadConfig loads .env into the environment, then builds the configuration
// with the YAML overrides file applied on top.
func loadConfig(outputDir string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env: %v", err)
	}

	var opts []config.Option
	overrides, err := config.LoadOverridesFile(config.OverridesFilePath())
	switch {
	case err == nil:
		opts = append(opts, config.WithOverrides(overrides))
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	opts = append(opts, config.WithOutputDir(outputDir))

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the global logger. The returned closer releases the
// log file, if any.
func setupLogging(cfg *config.Config) io.Closer {
	level := log.ParseLevel(cfg.Log.Level)
	if cfg.Log.File == "" {
		log.InitLogger(level)
		return nopCloser{}
	}
	fl, err := log.NewFileLogger(cfg.Log.File, level, true)
	if err != nil {
		log.InitLogger(level)
		log.Warn("Logging to stdout only: %v", err)
		return nopCloser{}
	}
	log.SetGlobal(fl.Logger)
	return fl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openState(cfg *config.Config) (quota.StateStore, error) {
	if cfg.State.Backend == config.StateBackendSQLite {
		s, err := quota.NewSQLiteStore(cfg.State.DB)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return quota.NewFileStore(cfg.State.File), nil
}

// app is everything a command needs, built from one configuration.
type app struct {
	cfg     *config.Config
	store   *project.Store
	state   quota.StateStore
	tracker *quota.Tracker
	logs    io.Closer
}

func newApp(outputDir string) (*app, error) {
	cfg, err := loadConfig(outputDir)
	if err != nil {
		return nil, err
	}
	logs := setupLogging(cfg)
	state, err := openState(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open quota state: %w", err)
	}
	return &app{
		cfg:     cfg,
		store:   project.NewStore(cfg.Output.Dir),
		state:   state,
		tracker: quota.NewTracker(state, cfg.Search.DailyLimit),
		logs:    logs,
	}, nil
}

func (a *app) Close() error {
	err := a.state.Close()
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}

// orchestrator wires the completion client, the image engine when search
// credentials are present, and the mirror when configured.
func (a *app) orchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	completer, err := newCompleter(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}

	var opts []pipeline.Option
	if engine, err := a.imageEngine(ctx); err != nil {
		log.Warn("Image search disabled: %v", err)
	} else {
		opts = append(opts, pipeline.WithImageEngine(engine))
	}

	m, err := mirror.New(a.cfg.Mirror)
	if err != nil {
		log.Warn("Mirror disabled: %v", err)
	} else if m.Enabled() {
		opts = append(opts, pipeline.WithMirror(m))
	}
	return pipeline.NewOrchestrator(a.cfg, a.store, completer, opts...), nil
}

func (a *app) imageEngine(ctx context.Context) (*images.Engine, error) {
	if err := a.cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	client, err := search.NewClient(ctx, search.Config{
		APIKey:   a.cfg.Search.APIKey,
		EngineID: a.cfg.Search.EngineID,
		Endpoint: a.cfg.Search.Endpoint,
		Pacing:   a.cfg.Search.Pacing,
	}, a.tracker)
	if err != nil {
		return nil, err
	}
	failed, err := a.tracker.FailedDomains(ctx)
	if err != nil {
		log.Warn("Could not load domain failure counts: %v", err)
	}
	scorer := quota.NewScorer(failed)
	return images.NewEngine(client, a.tracker, scorer, images.OptionsFromConfig(a.cfg.Images)), nil
}
