package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/bioreel/internal/images"
	"github.com/MimeLyc/bioreel/internal/pipeline"
)

func newInteractiveCmd(outputDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Prompt for actor names and run the pipeline for each",
		Long:  "Prompt for actor names until 'quit'. Existing artifacts are offered for reuse stage by stage.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, *outputDir)
		},
	}
}

func runInteractive(cmd *cobra.Command, outputDir string) error {
	a, err := newApp(outputDir)
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

	out := cmd.OutOrStdout()
	p := newPrompter(cmd.InOrStdin(), out)
	fmt.Fprintln(out, "🎬 Bioreel: actor biography pre-production")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	for {
		name, err := p.ask("\nEnter actor name (or 'quit' to exit): ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		switch strings.ToLower(name) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(out, "👋 Goodbye!")
			return nil
		}

		report := orch.Run(ctx, name, &promptDecider{p: p})
		printReport(out, report)
		printProjectCosts(out, a, report)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// prompter reads answers line by line.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and returns the trimmed answer. io.EOF is returned
// only when the input ends before any text was read.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// choose asks until the answer is one of options, returning def on an empty
// answer or end of input.
func (p *prompter) choose(question string, def string, options ...string) string {
	for {
		answer, err := p.ask(question)
		if err != nil {
			return def
		}
		answer = strings.ToLower(answer)
		if answer == "" {
			return def
		}
		for _, o := range options {
			if answer == o {
				return o
			}
		}
		fmt.Fprintf(p.out, "Please answer one of: %s\n", strings.Join(options, ", "))
	}
}

func (p *prompter) confirm(question string) bool {
	return p.choose(question+" (y/n): ", "n", "y", "n", "yes", "no")[0] == 'y'
}

var stageLabels = map[pipeline.StageName]string{
	pipeline.StageScript:     "script",
	pipeline.StagePhonetic:   "phonetic script",
	pipeline.StageStoryboard: "storyboard",
	pipeline.StageMusicPlan:  "music plan",
}

// promptDecider asks the operator about every stage.
type promptDecider struct {
	p *prompter
}

func (d *promptDecider) Decide(stage pipeline.StageName, existing bool) pipeline.Action {
	label := stageLabels[stage]
	if !existing {
		if stage == pipeline.StageScript {
			return pipeline.Generate
		}
		switch d.p.choose(fmt.Sprintf("Generate %s? (Y/n): ", label), "y", "y", "n") {
		case "n":
			return pipeline.Skip
		default:
			return pipeline.Generate
		}
	}
	answer := d.p.choose(fmt.Sprintf("Found existing %s. [u]se it, [r]egenerate or [s]kip? (U/r/s): ", label), "u", "u", "r", "s")
	switch answer {
	case "r":
		return pipeline.Generate
	case "s":
		return pipeline.Skip
	default:
		return pipeline.Reuse
	}
}

func (d *promptDecider) DecideImages(st images.Status) pipeline.ImageAction {
	out := d.p.out
	fmt.Fprintf(out, "\n🖼  Images: %d of %d shots have images (%d complete)\n", st.WithImages, st.Total, st.Complete)

	switch {
	case st.WithImages == 0:
		fmt.Fprintln(out, "  1. Download images for all shots")
		fmt.Fprintln(out, "  2. Skip image search")
		if d.p.choose("Choose (1-2): ", "1", "1", "2") == "2" {
			return pipeline.SkipImages
		}
		return pipeline.DownloadMissing
	case st.Missing == 0:
		fmt.Fprintln(out, "  1. Use existing images")
		fmt.Fprintln(out, "  2. Search again for every shot")
		fmt.Fprintln(out, "  3. Skip image search")
		switch d.p.choose("Choose (1-3): ", "1", "1", "2", "3") {
		case "2":
			if d.p.confirm("This spends search quota on every shot. Continue?") {
				return pipeline.DownloadAll
			}
			return pipeline.UseExisting
		case "3":
			return pipeline.SkipImages
		default:
			return pipeline.UseExisting
		}
	default:
		fmt.Fprintf(out, "  1. Download images for the %d missing shots\n", st.Missing)
		fmt.Fprintln(out, "  2. Search again for every shot")
		fmt.Fprintln(out, "  3. Use existing images")
		fmt.Fprintln(out, "  4. Skip image search")
		switch d.p.choose("Choose (1-4): ", "1", "1", "2", "3", "4") {
		case "2":
			return pipeline.DownloadAll
		case "3":
			return pipeline.UseExisting
		case "4":
			return pipeline.SkipImages
		default:
			return pipeline.DownloadMissing
		}
	}
}
