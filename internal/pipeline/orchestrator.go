package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/bioreel/internal/config"
	"github.com/MimeLyc/bioreel/internal/cost"
	"github.com/MimeLyc/bioreel/internal/generation"
	"github.com/MimeLyc/bioreel/internal/images"
	"github.com/MimeLyc/bioreel/internal/mirror"
	"github.com/MimeLyc/bioreel/internal/project"
	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Orchestrator runs the stages of one actor in order: script, phonetic
// variant, storyboard, music plan and reference images.
type Orchestrator struct {
	cfg       *config.Config
	store     *project.Store
	completer generation.Completer
	engine    ImageEngine
	mirror    *mirror.Mirror
	sleep     generation.Sleeper
	now       func() time.Time
	newID     func() string
}

type Option func(*Orchestrator)

// WithImageEngine enables the image stage.
func WithImageEngine(e ImageEngine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

func WithMirror(m *mirror.Mirror) Option {
	return func(o *Orchestrator) { o.mirror = m }
}

func WithSleeper(s generation.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(cfg *config.Config, store *project.Store, completer generation.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		completer: completer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Store() *project.Store {
	return o.store
}

// policy builds the retry policy for a stage whose ladder starts at models.
func (o *Orchestrator) policy(fallbackOnError bool, models ...string) generation.Policy {
	var ladder []string
	seen := make(map[string]bool)
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" && !seen[m] {
			seen[m] = true
			ladder = append(ladder, m)
		}
	}
	return generation.Policy{
		Models:          ladder,
		MaxRetries:      o.cfg.Generation.MaxRetries,
		RetryDelay:      o.cfg.Generation.RetryDelay,
		FallbackOnError: fallbackOnError,
		ReasoningEffort: o.cfg.Models.ReasoningEffort,
	}
}

func (o *Orchestrator) withFallback(primary string) []string {
	if o.cfg.Models.UseFallback {
		return []string{primary, o.cfg.Models.ScriptFallback}
	}
	return []string{primary}
}

// actorRun carries the state of one Run call.
type actorRun struct {
	*Orchestrator
	ctx     context.Context
	logger  *log.Logger
	decider Decider
	proj    *project.Project
	runner  *generation.Runner
	report  *Report
}

// Run executes every stage for actor. A failing stage is reported and the
// run continues with the stages that do not depend on it; Run itself never
// fails.
func (o *Orchestrator) Run(ctx context.Context, actor string, d Decider) *Report {
	report := &Report{
		RunID:     o.newID(),
		Actor:     actor,
		StartedAt: o.now(),
		Stages:    []StageReport{},
	}
	logger := log.GetLogger().With(shortID(report.RunID))
	defer func() {
		report.FinishedAt = o.now()
	}()

	name, err := generation.ValidateActorName(actor)
	if err != nil {
		report.Stages = append(report.Stages, errorReport(StageScript, Generate, err))
		logger.Error("Invalid actor name %q: %v", actor, err)
		logger.Info("💡 Tip: %s", generation.TypeOf(err).Advice())
		return report
	}
	report.Actor = name

	proj, err := o.store.Open(name)
	if err != nil {
		wrapped := generation.WrapError(err, generation.ErrPersistence, "open project folder")
		report.Stages = append(report.Stages, errorReport(StageScript, Generate, wrapped))
		logger.Error("%v", wrapped)
		logger.Info("💡 Tip: %s", generation.ErrPersistence.Advice())
		return report
	}
	report.ProjectKey = proj.Key
	logger.Info("Starting run for %s in %s", name, proj.Dir)

	runnerOpts := []generation.RunnerOption{generation.WithLogger(logger)}
	if o.sleep != nil {
		runnerOpts = append(runnerOpts, generation.WithSleeper(o.sleep))
	}
	ledger, err := cost.Open(proj.CostPath(), name)
	if err != nil {
		report.warn("cost tracking disabled: %v", err)
		logger.Warn("Cost tracking disabled for this run: %v", err)
	} else {
		runnerOpts = append(runnerOpts, generation.WithCostRecorder(ledger))
	}

	r := &actorRun{
		Orchestrator: o,
		ctx:          ctx,
		logger:       logger,
		decider:      d,
		proj:         proj,
		runner:       generation.NewRunner(o.completer, runnerOpts...),
		report:       report,
	}

	var shots []generation.Shot
	if script := r.script(); script != "" {
		r.phonetic(script)
		shots = r.storyboard(script)
		r.musicPlan(script)
	} else {
		for _, stage := range []StageName{StagePhonetic, StageStoryboard, StageMusicPlan} {
			r.skipped(stage, "no script available")
		}
	}
	r.images(shots)
	r.upload()

	for _, s := range report.Stages {
		report.TotalCost += s.CostUSD
	}
	if ledger != nil {
		logger.Info("Run cost $%.4f, project total $%.4f", report.TotalCost, ledger.Total())
	}
	return report
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func errorReport(stage StageName, action Action, err error) StageReport {
	t := generation.TypeOf(err)
	return StageReport{
		Stage:     stage,
		Action:    action.String(),
		Error:     err.Error(),
		ErrorType: t.String(),
		Advice:    t.Advice(),
	}
}

func (r *actorRun) add(rep StageReport) {
	r.report.Stages = append(r.report.Stages, rep)
}

func (r *actorRun) skipped(stage StageName, reason string) {
	r.logger.Info("Skipping %s: %s", stage, reason)
	r.add(StageReport{Stage: stage, Action: Skip.String(), Reason: reason})
}

func (r *actorRun) reused(stage StageName, path string) {
	r.logger.Info("Using existing %s: %s", stage, path)
	r.add(StageReport{Stage: stage, Action: Reuse.String(), Success: true, Valid: true, Path: path})
}

func (r *actorRun) fail(stage StageName, action Action, err error) {
	rep := errorReport(stage, action, err)
	r.logger.Error("%s failed: %v", stage, err)
	r.logger.Info("💡 Tip: %s", rep.Advice)
	r.add(rep)
}

// execute runs stage and turns the artifact into a stage report.
func execute[In, Out any](r *actorRun, name StageName, stage generation.Stage[In, Out], policy generation.Policy, in In) (generation.Artifact[Out], StageReport) {
	r.logger.Info("Generating %s for %s", name, r.proj.Actor)
	a := generation.Run(r.ctx, r.runner, stage, policy, in)
	rep := StageReport{
		Stage:    name,
		Action:   Generate.String(),
		Success:  a.Success,
		Valid:    a.Valid,
		Model:    a.ModelUsed,
		Attempts: a.Attempts,
		CostUSD:  a.CostUSD,
		Issues:   a.ValidationIssues,
	}
	for _, w := range a.Warnings {
		r.report.warn("%s: %s", name, w)
	}
	switch {
	case !a.Success:
		rep.Error = a.Error
		rep.ErrorType = a.ErrorType.String()
		rep.Advice = a.ErrorType.Advice()
		r.logger.Error("%s failed after %d attempt(s): %s", name, a.Attempts, a.Error)
		r.logger.Info("💡 Tip: %s", rep.Advice)
	case !a.Valid:
		r.logger.Warn("%s saved with validation issues: %s", name, strings.Join(a.ValidationIssues, "; "))
	default:
		r.logger.Info("%s done with %s ($%.4f)", name, a.ModelUsed, a.CostUSD)
	}
	return a, rep
}

// persist archives the current file of kind and writes the new one. A
// failure becomes a report warning.
func (r *actorRun) persist(stage StageName, kind project.Kind, write func(path string) error) string {
	if _, err := r.proj.Archive(kind, r.now()); err != nil {
		r.report.warn("%s: %v", stage, err)
		r.logger.Warn("Could not archive previous %s: %v", stage, err)
	}
	path := r.proj.Path(kind)
	if err := write(path); err != nil {
		r.report.warn("%s: save %s: %v", stage, path, err)
		r.logger.Error("Failed to save %s: %v", path, err)
		return ""
	}
	r.logger.Info("Saved %s", path)
	return path
}

// script returns the narration body for the later stages, or "".
func (r *actorRun) script() string {
	existing := r.proj.Has(project.KindScript)
	switch r.decider.Decide(StageScript, existing) {
	case Skip:
		r.skipped(StageScript, "skipped by operator")
		text, _ := r.proj.ReadScript()
		return text
	case Reuse:
		path, _ := r.proj.LatestScript()
		text, err := r.proj.ReadScript()
		if err != nil {
			r.fail(StageScript, Reuse, generation.WrapError(err, generation.ErrPersistence, "read existing script"))
			return ""
		}
		r.reused(StageScript, path)
		return text
	}

	policy := r.policy(false, r.withFallback(r.cfg.Models.Script)...)
	a, rep := execute(r, StageScript, generation.ScriptStage{}, policy, r.proj.Actor)
	if !a.Success {
		r.add(rep)
		return ""
	}
	script := a.Value()
	rep.Path = r.persist(StageScript, project.KindScript, func(path string) error {
		return file.WriteAtomic(path, []byte(script.Full), 0o644)
	})
	r.persist(StageScript, project.KindScriptData, func(path string) error {
		return generation.SaveArtifact(path, a)
	})
	r.add(rep)
	return project.NarrationBody(script.Full)
}

func (r *actorRun) phonetic(script string) {
	switch r.decider.Decide(StagePhonetic, r.proj.Has(project.KindPhonetic)) {
	case Skip:
		r.skipped(StagePhonetic, "skipped by operator")
		return
	case Reuse:
		r.reused(StagePhonetic, r.proj.PhoneticPath())
		return
	}
	a, rep := execute(r, StagePhonetic, generation.PhoneticStage{}, r.policy(true, r.cfg.Models.Phonetic...), script)
	if a.Success {
		text := a.Value()
		rep.Path = r.persist(StagePhonetic, project.KindPhonetic, func(path string) error {
			return file.WriteAtomic(path, []byte(text), 0o644)
		})
	}
	r.add(rep)
}

// storyboard returns the shot list for the image stage.
func (r *actorRun) storyboard(script string) []generation.Shot {
	switch r.decider.Decide(StageStoryboard, r.proj.Has(project.KindStoryboard)) {
	case Skip:
		r.skipped(StageStoryboard, "skipped by operator")
		return r.loadShots()
	case Reuse:
		a, err := generation.LoadArtifact[[]generation.Shot](r.proj.StoryboardPath())
		if err != nil {
			r.fail(StageStoryboard, Reuse, generation.WrapError(err, generation.ErrPersistence, "read existing storyboard"))
			return nil
		}
		r.reused(StageStoryboard, r.proj.StoryboardPath())
		return a.Value()
	}

	stage := generation.StoryboardStage{StrictCoverage: r.cfg.Generation.StrictCoverage}
	a, rep := execute(r, StageStoryboard, stage, r.policy(false, r.withFallback(r.cfg.Models.Storyboard)...), script)
	if a.Success {
		rep.Path = r.persist(StageStoryboard, project.KindStoryboard, func(path string) error {
			return generation.SaveArtifact(path, a)
		})
	}
	r.add(rep)
	return a.Value()
}

func (r *actorRun) loadShots() []generation.Shot {
	a, err := generation.LoadArtifact[[]generation.Shot](r.proj.StoryboardPath())
	if err != nil {
		return nil
	}
	return a.Value()
}

func (r *actorRun) musicPlan(script string) {
	switch r.decider.Decide(StageMusicPlan, r.proj.Has(project.KindMusicPlan)) {
	case Skip:
		r.skipped(StageMusicPlan, "skipped by operator")
		return
	case Reuse:
		r.reused(StageMusicPlan, r.proj.MusicPlanPath())
		return
	}
	a, rep := execute(r, StageMusicPlan, generation.MusicPlanStage{}, r.policy(false, r.withFallback(r.cfg.Models.Music)...), script)
	if a.Success {
		rep.Path = r.persist(StageMusicPlan, project.KindMusicPlan, func(path string) error {
			return generation.SaveArtifact(path, a)
		})
	}
	r.add(rep)
}

// ImageShots converts storyboard shots into image search requests.
func ImageShots(shots []generation.Shot) []images.Shot {
	ret := make([]images.Shot, 0, len(shots))
	for _, s := range shots {
		ret = append(ret, images.Shot{Number: s.Number, Query: strings.TrimSpace(s.ImageSearch)})
	}
	return ret
}

func (r *actorRun) images(shots []generation.Shot) {
	if r.engine == nil {
		r.skipped(StageImages, "image search not configured")
		return
	}
	if len(shots) == 0 {
		r.skipped(StageImages, "no storyboard available")
		return
	}
	list := ImageShots(shots)
	status, err := r.engine.Status(r.proj, list)
	if err != nil {
		r.logger.Warn("Could not inspect images folder: %v", err)
	}
	r.logger.Info("Images: %d of %d shots have images, %d complete", status.WithImages, status.Total, status.Complete)

	action := r.decider.DecideImages(status)
	switch action {
	case SkipImages:
		r.skipped(StageImages, "skipped by operator")
		return
	case UseExisting:
		r.reused(StageImages, r.proj.ImagesDir())
		return
	case DownloadAll:
		r.engine.SetSkipExisting(false)
	default:
		r.engine.SetSkipExisting(true)
	}

	rep := StageReport{Stage: StageImages, Action: action.String(), Path: r.proj.ImagesDir()}
	sum, err := r.engine.Run(r.ctx, r.proj, list)
	if err != nil {
		r.fail(StageImages, Generate, generation.WrapError(err, generation.ErrPersistence, "image acquisition"))
		return
	}
	r.report.Images = sum
	for _, pe := range sum.PersistErrors {
		r.report.warn("images: %s", pe)
	}
	rep.Success = true
	rep.Valid = !sum.LimitReached
	if sum.LimitReached {
		rep.Issues = []string{"daily search limit reached before every shot was processed"}
		r.logger.Warn("Daily search limit reached; %d shots deferred to a later run", sum.LimitSkippedShots)
	}
	r.logger.Info("Images: %d downloaded, %d failed, %d API calls", sum.SuccessfulDownloads, sum.FailedDownloads, sum.TotalAPICalls)
	r.add(rep)
}

func (r *actorRun) upload() {
	if !r.mirror.Enabled() {
		return
	}
	if _, err := r.mirror.Upload(r.ctx, r.proj); err != nil {
		r.report.warn("mirror: %v", err)
	}
}
