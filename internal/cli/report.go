package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/MimeLyc/bioreel/internal/cost"
	"github.com/MimeLyc/bioreel/internal/pipeline"
)

func printReport(out io.Writer, r *pipeline.Report) {
	fmt.Fprintf(out, "\n📋 %s (run %s)\n", r.Actor, r.RunID)
	for _, s := range r.Stages {
		switch {
		case s.Failed():
			fmt.Fprintf(out, "  ❌ %-11s %s\n", s.Stage, s.Error)
			if s.Advice != "" {
				fmt.Fprintf(out, "     💡 Tip: %s\n", s.Advice)
			}
		case s.Action == pipeline.Skip.String():
			fmt.Fprintf(out, "  ⏭  %-11s %s\n", s.Stage, s.Reason)
		case s.Action == pipeline.Reuse.String():
			fmt.Fprintf(out, "  ♻️  %-11s %s\n", s.Stage, s.Path)
		case !s.Valid:
			fmt.Fprintf(out, "  ⚠️  %-11s saved with issues: %s\n", s.Stage, strings.Join(s.Issues, "; "))
		default:
			fmt.Fprintf(out, "  ✅ %-11s %s\n", s.Stage, s.Path)
		}
	}
	if img := r.Images; img != nil {
		fmt.Fprintf(out, "  🖼  %d images downloaded, %d failed, %d searches\n",
			img.SuccessfulDownloads, img.FailedDownloads, img.TotalAPICalls)
		if img.LimitReached {
			fmt.Fprintf(out, "     %d shots wait for tomorrow's search quota\n", img.LimitSkippedShots)
		}
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  ⚠️  %s\n", w)
	}
	fmt.Fprintf(out, "  💰 This run: $%.4f\n", r.TotalCost)
}

func printProjectCosts(out io.Writer, a *app, r *pipeline.Report) {
	if r.ProjectKey == "" {
		return
	}
	proj, ok, err := a.store.Lookup(r.Actor)
	if err != nil || !ok {
		return
	}
	ledger, err := cost.Open(proj.CostPath(), proj.Actor)
	if err != nil || ledger.Len() == 0 {
		return
	}
	fmt.Fprintln(out, "\n💰 Project costs")
	fmt.Fprint(out, cost.FormatSummary(ledger))
}
