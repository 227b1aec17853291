package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bioreel/internal/config"
	"github.com/MimeLyc/bioreel/internal/cost"
	"github.com/MimeLyc/bioreel/internal/generation"
	"github.com/MimeLyc/bioreel/internal/images"
	"github.com/MimeLyc/bioreel/internal/llm"
	"github.com/MimeLyc/bioreel/internal/pipeline"
	"github.com/MimeLyc/bioreel/internal/project"
)

// testEnv points the configuration at a temporary output directory. Tests
// using it cannot run in parallel.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("BIOREEL_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_CSE_ID", "")
	t.Setenv("MIRROR_ENDPOINT", "")
	t.Setenv("STATE_BACKEND", "json")
	t.Setenv("LOG_FILE", "")
	return dir
}

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

type failingCompleter struct {
	calls int
}

func (f *failingCompleter) Complete(context.Context, llm.CompletionRequest) (*llm.Completion, error) {
	f.calls++
	return nil, generation.NewError(generation.ErrAuthentication, "invalid API key")
}

func stubCompleter(t *testing.T, c generation.Completer) {
	t.Helper()
	orig := newCompleter
	newCompleter = func(*config.Config) (generation.Completer, error) { return c, nil }
	t.Cleanup(func() { newCompleter = orig })
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	cmd := NewRootCmd()
	assert.Equal(t, "bioreel", cmd.Use)

	subCmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subCmds[sub.Name()] = true
	}
	for _, name := range []string{"interactive", "run", "batch", "quota", "costs"} {
		assert.True(t, subCmds[name], "root should have subcommand %q", name)
	}
}

func TestRunCmd_RejectsUnknownImagesMode(t *testing.T) {
	t.Parallel()
	_, err := execute(t, "", "run", "Tom Hanks", "--images", "everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --images value")
}

func TestBatchCmd_RequiresFile(t *testing.T) {
	t.Parallel()
	_, err := execute(t, "", "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}

func TestPromptDecider_Stages(t *testing.T) {
	t.Parallel()
	out := new(bytes.Buffer)
	d := &promptDecider{p: newPrompter(strings.NewReader("r\n\nn\nmaybe\ny\ns\n"), out)}

	assert.Equal(t, pipeline.Generate, d.Decide(pipeline.StageScript, false))
	assert.Equal(t, pipeline.Generate, d.Decide(pipeline.StagePhonetic, true))
	assert.Equal(t, pipeline.Reuse, d.Decide(pipeline.StageStoryboard, true))
	assert.Equal(t, pipeline.Skip, d.Decide(pipeline.StageMusicPlan, false))
	assert.Equal(t, pipeline.Generate, d.Decide(pipeline.StagePhonetic, false))
	assert.Equal(t, pipeline.Skip, d.Decide(pipeline.StageScript, true))
	assert.Contains(t, out.String(), "Please answer one of")
	assert.Contains(t, out.String(), "Found existing storyboard")

	// End of input falls back to the default.
	assert.Equal(t, pipeline.Reuse, d.Decide(pipeline.StageMusicPlan, true))
}

func TestPromptDecider_ImageMenus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status images.Status
		input  string
		want   pipeline.ImageAction
	}{
		{"none present, download", images.Status{Total: 3, Missing: 3}, "\n", pipeline.DownloadMissing},
		{"none present, skip", images.Status{Total: 3, Missing: 3}, "2\n", pipeline.SkipImages},
		{"all present, default", images.Status{Total: 3, WithImages: 3, Complete: 3}, "\n", pipeline.UseExisting},
		{"all present, redo confirmed", images.Status{Total: 3, WithImages: 3}, "2\ny\n", pipeline.DownloadAll},
		{"all present, redo declined", images.Status{Total: 3, WithImages: 3}, "2\nn\n", pipeline.UseExisting},
		{"partial, default", images.Status{Total: 3, WithImages: 1, Missing: 2}, "\n", pipeline.DownloadMissing},
		{"partial, existing", images.Status{Total: 3, WithImages: 1, Missing: 2}, "3\n", pipeline.UseExisting},
		{"partial, skip", images.Status{Total: 3, WithImages: 1, Missing: 2}, "4\n", pipeline.SkipImages},
	}
	for _, tt := range tests {
		d := &promptDecider{p: newPrompter(strings.NewReader(tt.input), new(bytes.Buffer))}
		assert.Equal(t, tt.want, d.DecideImages(tt.status), tt.name)
	}
}

func TestInteractive_ReportsFailureAndQuits(t *testing.T) {
	testEnv(t)
	fc := &failingCompleter{}
	stubCompleter(t, fc)

	out, err := execute(t, "\nTom Hanks\nquit\n")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
	assert.Contains(t, out, "💡 Tip: "+generation.ErrAuthentication.Advice())
	assert.Contains(t, out, "no script available")
	assert.Contains(t, out, "Goodbye")
}

func TestInteractive_EndOfInput(t *testing.T) {
	testEnv(t)
	stubCompleter(t, &failingCompleter{})

	_, err := execute(t, "", "interactive")
	require.NoError(t, err)
}

func TestQuotaCmd_JSON(t *testing.T) {
	testEnv(t)
	t.Setenv("DAILY_SEARCH_LIMIT", "40")

	out, err := execute(t, "", "quota", "--json")
	require.NoError(t, err)

	var usage struct {
		Limit     int `json:"limit"`
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &usage))
	assert.Equal(t, 40, usage.Limit)
	assert.Equal(t, 40, usage.Remaining)
}

func TestCostsCmd(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "", "costs", "Meryl Streep")
	require.NoError(t, err)
	assert.Contains(t, out, "No project found for Meryl Streep")

	proj, err := project.NewStore(dir).Open("Tom Hanks")
	require.NoError(t, err)
	ledger, err := cost.Open(proj.CostPath(), proj.Actor)
	require.NoError(t, err)
	require.NoError(t, ledger.Record("script_generation", "o3-2025-04-16", 0.125, llm.TokenUsage{InputTokens: 285, OutputTokens: 1200}, nil))
	require.NoError(t, ledger.Record("phonetic_conversion", "o4-mini", 0.0025, llm.TokenUsage{InputTokens: 1300, OutputTokens: 1100}, nil))

	out, err = execute(t, "", "costs", "tom hanks", "--recent", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Costs for Tom Hanks")
	assert.Contains(t, out, "Total Cost: $0.1275")
	assert.Contains(t, out, "script_generation: $0.1250")
	assert.Contains(t, out, "Recent operations:")
	assert.Contains(t, out, "phonetic_conversion")
}
