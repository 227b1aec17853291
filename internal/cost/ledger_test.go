package cost

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bioreel/internal/llm"
)

func TestLedger_RecordPersistsEveryEntry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tom_hanks_cost_tracking.json")

	l, err := Open(path, "Tom Hanks")
	require.NoError(t, err)
	require.NoError(t, l.Record("script_generation", "o3-2025-04-16", 0.0118, llm.TokenUsage{InputTokens: 285, OutputTokens: 1400}, nil))
	require.NoError(t, l.Record("phonetic_conversion", "o4-mini", 0.002, llm.TokenUsage{InputTokens: 1000, OutputTokens: 1100}, map[string]any{"conversions": 4}))

	reloaded, err := Open(path, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Tom Hanks", reloaded.ActorName())
	assert.Equal(t, 2, reloaded.Len())
	assert.InDelta(t, 0.0138, reloaded.Total(), 1e-9)

	latest := reloaded.Latest(1)
	require.Len(t, latest, 1)
	assert.Equal(t, "phonetic_conversion", latest[0].Stage)
	assert.EqualValues(t, 4, latest[0].Extra["conversions"])
}

func TestLedger_Summarize(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "c.json"), "Tom Hanks")
	require.NoError(t, err)

	require.NoError(t, l.Record("script_generation", "o3", 0.01, llm.TokenUsage{}, nil))
	require.NoError(t, l.Record("script_generation", "o3-mini", 0.02, llm.TokenUsage{}, nil))
	require.NoError(t, l.Record("script_generation", "o3", 0.03, llm.TokenUsage{}, nil))
	require.NoError(t, l.Record("music_plan", "o3", 0.5, llm.TokenUsage{}, nil))

	summary := l.Summarize()
	require.Len(t, summary, 2)
	assert.Equal(t, 3, summary["script_generation"].Count)
	assert.InDelta(t, 0.06, summary["script_generation"].Cost, 1e-9)
	assert.Equal(t, []string{"o3", "o3-mini"}, summary["script_generation"].Models)
	assert.Equal(t, 1, summary["music_plan"].Count)

	var sum float64
	for _, s := range summary {
		sum += s.Cost
	}
	assert.InDelta(t, l.Total(), sum, 1e-9)

	text := FormatSummary(l)
	assert.Contains(t, text, "Total Cost: $0.5600")
	assert.Contains(t, text, "Operations: 4")
	assert.Contains(t, text, "  - script_generation: $0.0600 (3 times, o3, o3-mini)")
}

func TestLedger_Latest(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "c.json"), "A")
	require.NoError(t, err)

	assert.Empty(t, l.Latest(5))
	for _, stage := range []string{"a", "b", "c"} {
		require.NoError(t, l.Record(stage, "m", 1, llm.TokenUsage{}, nil))
	}
	got := l.Latest(5)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Stage)
	assert.Equal(t, "c", l.Latest(1)[0].Stage)
	assert.Nil(t, l.Latest(0))
}

func TestLedger_PersistFailureKeepsEntry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l, err := Open(filepath.Join(blocker, "cost.json"), "Tom Hanks")
	require.NoError(t, err)

	err = l.Record("script_generation", "o3", 0.25, llm.TokenUsage{}, nil)
	require.Error(t, err)

	var persistErr *PersistError
	require.True(t, errors.As(err, &persistErr))
	assert.Contains(t, persistErr.Path, "cost.json")
	assert.Equal(t, 1, l.Len())
	assert.InDelta(t, 0.25, l.Total(), 1e-9)
}

func TestLedger_OpenInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cost.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, "Tom Hanks")
	assert.Error(t, err)
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "c.json"), "A")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Record("image_search", "google_cse", 0.005, llm.TokenUsage{}, nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, l.Len())
	assert.InDelta(t, 0.1, l.Total(), 1e-9)
}
