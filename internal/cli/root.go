package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	var outputDir string

	root := &cobra.Command{
		Use:   "bioreel",
		Short: "Actor biography video pre-production pipeline",
		Long: "Bioreel turns an actor's name into a production package: a narration script, " +
			"a phonetic variant for text-to-speech, a storyboard, a music plan and reference images.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, outputDir)
		},
	}
	root.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides OUTPUT_DIR)")

	root.AddCommand(
		newInteractiveCmd(&outputDir),
		newRunCmd(&outputDir),
		newBatchCmd(&outputDir),
		newQuotaCmd(&outputDir),
		newCostsCmd(&outputDir),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("bioreel %s\n", Version))

	return root
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
