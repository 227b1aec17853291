package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/bioreel/internal/images"
	"github.com/MimeLyc/bioreel/internal/project"
)

// StageName identifies one step of an actor run.
type StageName string

const (
	StageScript     StageName = "script"
	StagePhonetic   StageName = "phonetic"
	StageStoryboard StageName = "storyboard"
	StageMusicPlan  StageName = "music_plan"
	StageImages     StageName = "images"
)

// Action is the decision taken for a generation stage.
type Action int

const (
	Generate Action = iota
	Reuse
	Skip
)

func (a Action) String() string {
	switch a {
	case Generate:
		return "generate"
	case Reuse:
		return "reuse"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// ImageAction is the decision taken for the image stage.
type ImageAction int

const (
	DownloadMissing ImageAction = iota
	DownloadAll
	UseExisting
	SkipImages
)

func (a ImageAction) String() string {
	switch a {
	case DownloadMissing:
		return "missing"
	case DownloadAll:
		return "all"
	case UseExisting:
		return "existing"
	case SkipImages:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseImageAction accepts the names printed by String.
func ParseImageAction(s string) (ImageAction, bool) {
	for _, a := range []ImageAction{DownloadMissing, DownloadAll, UseExisting, SkipImages} {
		if a.String() == s {
			return a, true
		}
	}
	return DownloadMissing, false
}

// Decider chooses what to do with each stage of a run. existing reports
// whether the project already holds the stage's artifact.
type Decider interface {
	Decide(stage StageName, existing bool) Action
	DecideImages(status images.Status) ImageAction
}

// PolicyDecider answers without asking anybody. Existing artifacts are
// reused unless Regenerate is set.
type PolicyDecider struct {
	Regenerate bool
	Images     ImageAction
}

func (d PolicyDecider) Decide(_ StageName, existing bool) Action {
	if existing && !d.Regenerate {
		return Reuse
	}
	return Generate
}

func (d PolicyDecider) DecideImages(images.Status) ImageAction {
	return d.Images
}

// ImageEngine is the image acquisition step. *images.Engine implements it.
type ImageEngine interface {
	Run(ctx context.Context, proj *project.Project, shots []images.Shot) (*images.Summary, error)
	Status(proj *project.Project, shots []images.Shot) (images.Status, error)
	SetSkipExisting(skip bool)
}

// StageReport is the outcome of one stage.
type StageReport struct {
	Stage     StageName `json:"stage"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Valid     bool      `json:"valid"`
	Model     string    `json:"model,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	CostUSD   float64   `json:"cost_usd"`
	Path      string    `json:"path,omitempty"`
	Issues    []string  `json:"validation_issues,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
	Advice    string    `json:"advice,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Failed reports a stage that was attempted and produced nothing usable.
func (s StageReport) Failed() bool {
	return s.Error != ""
}

// Report is the outcome of one actor run.
type Report struct {
	RunID      string          `json:"run_id"`
	Actor      string          `json:"actor"`
	ProjectKey string          `json:"project_key,omitempty"`
	Stages     []StageReport   `json:"stages"`
	Images     *images.Summary `json:"images,omitempty"`
	TotalCost  float64         `json:"total_cost"`
	Warnings   []string        `json:"warnings,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// OK reports a run in which no stage failed.
func (r *Report) OK() bool {
	if len(r.Stages) == 0 {
		return false
	}
	for _, s := range r.Stages {
		if s.Failed() {
			return false
		}
	}
	return true
}

// Stage returns the report of name, if the run reached it.
func (r *Report) Stage(name StageName) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageReport{}, false
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
