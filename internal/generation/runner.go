package generation

import (
	"context"
	"time"

	"github.com/MimeLyc/bioreel/internal/llm"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Completer is the completion service. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
}

// CostRecorder receives the cost of every successful stage run.
// *cost.Ledger implements it.
type CostRecorder interface {
	Record(stage, model string, costUSD float64, usage llm.TokenUsage, extra map[string]any) error
}

// Stage is one prompt-to-artifact generation step.
type Stage[In, Out any] interface {
	Name() string
	ValidateInput(in In) error
	Prompt(in In) (system, prompt string)
	Parse(text string) (Out, error)
	Validate(in In, out Out) []string
	EstimateTokens(in In, text string) llm.TokenUsage
}

// extrasProvider is implemented by stages that attach extra fields to their
// cost entry.
type extrasProvider[In, Out any] interface {
	Extras(in In, out Out) map[string]any
}

// Policy controls retries and model selection for one stage.
type Policy struct {
	// Models is the ladder: primary first, then fallbacks.
	Models          []string
	MaxRetries      int
	RetryDelay      time.Duration
	FallbackOnError bool
	ReasoningEffort string
}

type Sleeper func(ctx context.Context, d time.Duration) error

type Runner struct {
	completer Completer
	recorder  CostRecorder
	sleep     Sleeper
	logger    *log.Logger
}

type RunnerOption func(*Runner)

func WithCostRecorder(rec CostRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

func WithSleeper(s Sleeper) RunnerOption {
	return func(r *Runner) { r.sleep = s }
}

func WithLogger(l *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(c Completer, opts ...RunnerOption) *Runner {
	r := &Runner{
		completer: c,
		sleep:     sleepContext,
		logger:    log.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes stage with retries. It returns the first valid result, or
// the last attempt's result once the retry budget is spent. Invalid input
// fails immediately without calling the completer.
func Run[In, Out any](ctx context.Context, r *Runner, stage Stage[In, Out], policy Policy, in In) Artifact[Out] {
	name := stage.Name()
	if err := stage.ValidateInput(in); err != nil {
		r.logger.Warn("%s: invalid input: %v", name, err)
		return Failed[Out](ErrValidation, err)
	}

	maxAttempts := policy.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	models := policy.Models
	if len(models) == 0 {
		models = []string{""}
	}
	system, prompt := stage.Prompt(in)

	var (
		last     Artifact[Out]
		lastText string
		modelIdx int
		attempts int
	)
	for attempts < maxAttempts {
		attempts++
		model := models[modelIdx]
		r.logger.Info("%s: attempt %d/%d with model %s", name, attempts, maxAttempts, displayModel(model))

		start := time.Now()
		completion, err := r.completer.Complete(ctx, llm.CompletionRequest{
			Model:           model,
			System:          system,
			Prompt:          prompt,
			ReasoningEffort: policy.ReasoningEffort,
		})
		elapsed := time.Since(start).Seconds()

		failed := false
		if err != nil {
			errType := TypeOf(err)
			last = Failed[Out](errType, err)
			last.ModelUsed = model
			last.GenerationTime = elapsed
			failed = true
			r.logger.Warn("%s: attempt %d failed (%s): %v", name, attempts, errType, err)

			if errType == ErrAuthentication {
				break
			}
			if errType == ErrModelAccess && modelIdx+1 < len(models) {
				modelIdx++
				r.logger.Info("%s: model %s unavailable, falling back to %s", name, displayModel(model), models[modelIdx])
				failed = false
			}
		} else {
			used := completion.Model
			if used == "" {
				used = model
			}
			payload, perr := stage.Parse(completion.Text)
			if perr != nil {
				last = Failed[Out](ErrParse, perr)
				failed = true
				r.logger.Warn("%s: attempt %d returned unparseable output: %v", name, attempts, perr)
			} else {
				last = Succeeded(payload, stage.Validate(in, payload))
				if !last.Valid {
					r.logger.Warn("%s: attempt %d invalid: %v", name, attempts, last.ValidationIssues)
				}
			}
			last.ModelUsed = used
			last.Usage = completion.Usage
			last.GenerationTime = elapsed
			lastText = completion.Text
			if last.OK() {
				break
			}
		}

		if failed && policy.FallbackOnError && modelIdx+1 < len(models) {
			modelIdx++
		}
		if ctx.Err() != nil || attempts >= maxAttempts {
			break
		}
		if err := r.sleep(ctx, policy.RetryDelay*time.Duration(attempts)); err != nil {
			break
		}
	}
	last.Attempts = attempts

	if last.Success {
		usage := last.Usage
		if usage.InputTokens == 0 && usage.OutputTokens == 0 {
			usage = stage.EstimateTokens(in, lastText)
		}
		last.CostUSD = Cost(last.ModelUsed, usage)
		if r.recorder != nil {
			var extra map[string]any
			if p, ok := any(stage).(extrasProvider[In, Out]); ok && last.Payload != nil {
				extra = p.Extras(in, *last.Payload)
			}
			if err := r.recorder.Record(name, last.ModelUsed, last.CostUSD, usage, extra); err != nil {
				last.Warnings = append(last.Warnings, err.Error())
			}
		}
	}
	return last
}

func displayModel(model string) string {
	if model == "" {
		return "(default)"
	}
	return model
}
