package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/icron"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// BatchSummary is written to batch_summary_<timestamp>.json after a batch.
type BatchSummary struct {
	Total        int       `json:"total"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
	SuccessRate  float64   `json:"success_rate"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	Results      []*Report `json:"results"`
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"-"`
}

// ReadActors reads one actor name per line. Blank lines and lines starting
// with # are ignored.
func ReadActors(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open actor list: %w", err)
	}
	defer f.Close()

	var actors []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		actors = append(actors, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read actor list: %w", err)
	}
	return actors, nil
}

// Batch runs the orchestrator over a list of actors without prompting.
type Batch struct {
	orch    *Orchestrator
	decider Decider
	pause   time.Duration
	outDir  string
	sleep   func(ctx context.Context, d time.Duration) error
	group   singleflight.Group
}

func NewBatch(orch *Orchestrator, decider Decider, pause time.Duration, outDir string) *Batch {
	return &Batch{
		orch:    orch,
		decider: decider,
		pause:   pause,
		outDir:  outDir,
		sleep:   pauseContext,
	}
}

func pauseContext(ctx context.Context, d time.Duration) error {
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

// Run processes actors in order and writes the batch summary. A canceled
// context stops the batch between actors; the summary covers the actors
// already processed.
func (b *Batch) Run(ctx context.Context, actors []string) (*BatchSummary, error) {
	summary := &BatchSummary{Total: len(actors), Results: []*Report{}}
	log.Info("Starting batch of %d actors", len(actors))

	for i, actor := range actors {
		log.Info("[%d/%d] %s", i+1, len(actors), actor)
		report := b.orch.Run(ctx, actor, b.decider)
		summary.Results = append(summary.Results, report)
		summary.TotalCostUSD += report.TotalCost
		if report.OK() {
			summary.Successful++
		} else {
			summary.Failed++
		}
		if i < len(actors)-1 {
			if err := b.sleep(ctx, b.pause); err != nil {
				log.Warn("Batch interrupted after %d of %d actors: %v", i+1, len(actors), err)
				break
			}
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(summary.Total) * 100
	}
	summary.Timestamp = b.orch.now()
	summary.Path = filepath.Join(b.outDir, "batch_summary_"+summary.Timestamp.Format("20060102_150405")+".json")
	if err := file.WriteJSON(summary.Path, summary); err != nil {
		return summary, fmt.Errorf("save batch summary: %w", err)
	}
	log.Info("Batch done: %d/%d successful, $%.4f, summary saved to %s",
		summary.Successful, summary.Total, summary.TotalCostUSD, summary.Path)
	return summary, nil
}

// RunFile reads the actor list at path and runs it.
func (b *Batch) RunFile(ctx context.Context, path string) (*BatchSummary, error) {
	actors, err := ReadActors(path)
	if err != nil {
		return nil, err
	}
	return b.Run(ctx, actors)
}

// Schedule registers a batch over the actor list at path on c. A trigger
// that fires while the previous batch is still running joins it instead of
// starting another one.
func (b *Batch) Schedule(ctx context.Context, c *cron.Cron, expr, path string) error {
	schedule, err := icron.Parse(expr)
	if err != nil {
		return err
	}
	info, err := icron.GetTriggerInfo(expr, b.orch.now())
	if err != nil {
		return err
	}

	runFunc := func() {
		_, _, _ = b.group.Do("batch", func() (any, error) {
			summary, err := b.RunFile(ctx, path)
			if err != nil {
				log.Error("Scheduled batch failed: %v", err)
				return nil, err
			}
			if next, err := icron.GetTriggerInfo(expr, b.orch.now()); err == nil {
				log.Info("Next batch at %s", next.Next.Format(time.RFC3339))
			}
			return summary, nil
		})
	}
	c.Schedule(schedule, cron.FuncJob(runFunc))
	log.Info("Batch scheduled with %q, next run at %s (in %s)", expr, info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
	return nil
}
