package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/bioreel/internal/cost"
	"github.com/MimeLyc/bioreel/internal/pipeline"
	"github.com/MimeLyc/bioreel/pkg/log"
)

func imagesFlagHelp() string {
	names := make([]string, 0, 4)
	for _, a := range []pipeline.ImageAction{pipeline.DownloadAll, pipeline.DownloadMissing, pipeline.UseExisting, pipeline.SkipImages} {
		names = append(names, a.String())
	}
	return "Image stage: " + strings.Join(names, ", ")
}

func parseDecider(regenerate bool, imagesFlag string) (pipeline.PolicyDecider, error) {
	action, ok := pipeline.ParseImageAction(strings.ToLower(strings.TrimSpace(imagesFlag)))
	if !ok {
		return pipeline.PolicyDecider{}, fmt.Errorf("invalid --images value %q", imagesFlag)
	}
	return pipeline.PolicyDecider{Regenerate: regenerate, Images: action}, nil
}

func newRunCmd(outputDir *string) *cobra.Command {
	var (
		regenerate bool
		imagesFlag string
	)

	cmd := &cobra.Command{
		Use:   "run <actor>...",
		Short: "Run the pipeline for the given actors without prompting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decider, err := parseDecider(regenerate, imagesFlag)
			if err != nil {
				return err
			}
			a, err := newApp(*outputDir)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			failed := 0
			for _, actor := range args {
				report := orch.Run(ctx, actor, decider)
				printReport(cmd.OutOrStdout(), report)
				if !report.OK() {
					failed++
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Regenerate artifacts that already exist")
	cmd.Flags().StringVar(&imagesFlag, "images", pipeline.DownloadMissing.String(), imagesFlagHelp())

	return cmd
}

func newBatchCmd(outputDir *string) *cobra.Command {
	var (
		listFile   string
		cronExpr   string
		regenerate bool
		imagesFlag string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the pipeline for every actor in a file",
		Long: "Run the pipeline for every actor listed in a file, one name per line. " +
			"With a cron expression the batch repeats on schedule until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			decider, err := parseDecider(regenerate, imagesFlag)
			if err != nil {
				return err
			}
			a, err := newApp(*outputDir)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			b := pipeline.NewBatch(orch, decider, a.cfg.Batch.Pause, a.cfg.Output.Dir)

			if cronExpr == "" {
				cronExpr = a.cfg.Batch.CronExpr
			}
			if cronExpr == "" {
				summary, err := b.RunFile(ctx, listFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n📊 %d/%d successful (%.1f%%), total $%.4f\n   Summary: %s\n",
					summary.Successful, summary.Total, summary.SuccessRate, summary.TotalCostUSD, summary.Path)
				return nil
			}

			c := cron.New()
			if err := b.Schedule(ctx, c, cronExpr, listFile); err != nil {
				return err
			}
			c.Start()
			<-ctx.Done()
			log.Info("Stopping scheduler")
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&listFile, "file", "f", "", "File with one actor name per line")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (overrides BATCH_CRON)")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Regenerate artifacts that already exist")
	cmd.Flags().StringVar(&imagesFlag, "images", pipeline.DownloadMissing.String(), imagesFlagHelp())
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newQuotaCmd(outputDir *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show today's image search usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*outputDir)
			if err != nil {
				return err
			}
			defer a.Close()

			usage, err := a.tracker.Usage(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(usage)
			}
			fmt.Fprintf(out, "📊 Searches on %s: %d/%d (%d remaining)\n", usage.Date, usage.SearchesToday, usage.Limit, usage.Remaining)
			if len(usage.ActorsSearched) > 0 {
				fmt.Fprintf(out, "   Actors: %s\n", strings.Join(usage.ActorsSearched, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func newCostsCmd(outputDir *string) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "costs <actor>",
		Short: "Show the generation costs of an actor project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*outputDir)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			proj, ok, err := a.store.Lookup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "No project found for %s\n", args[0])
				return nil
			}
			ledger, err := cost.Open(proj.CostPath(), proj.Actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "💰 Costs for %s\n", ledger.ActorName())
			fmt.Fprint(out, cost.FormatSummary(ledger))
			if recent > 0 {
				fmt.Fprintln(out, "\nRecent operations:")
				for _, e := range ledger.Latest(recent) {
					fmt.Fprintf(out, "  %s  %-22s %-20s $%.4f\n", e.Timestamp.Format("2006-01-02 15:04"), e.Stage, e.Model, e.CostUSD)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 5, "Number of recent operations to list")

	return cmd
}
