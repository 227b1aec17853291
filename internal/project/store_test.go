package project

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold_CaseAndSpacingInsensitive(t *testing.T) {
	want := "tom_hanks"
	for _, in := range []string{"Tom Hanks", "tom hanks", "TOM HANKS", "  Tom   Hanks ", "Tom Hanks.", "Tom\tHanks"} {
		assert.Equal(t, want, Fold(in), in)
	}
}

func TestFold_DiacriticsAndPunctuation(t *testing.T) {
	assert.Equal(t, "penelope_cruz", Fold("Penélope Cruz"))
	assert.Equal(t, "zoe_saldana", Fold("Zoë Saldaña"))
	assert.Equal(t, "lupita_nyongo", Fold("Lupita Nyong'o"))
	assert.Equal(t, "robert_downey_jr", Fold("Robert Downey Jr."))
	assert.Equal(t, "jean-claude_van_damme", Fold("Jean-Claude Van Damme"))
}

func TestFold_Idempotent(t *testing.T) {
	for _, in := range []string{"Tom Hanks", "Penélope Cruz", "Lupita Nyong'o", "İbrahim Çelikkol", "Mary-Kate  O'Neil", "ßtraße"} {
		once := Fold(in)
		assert.Equal(t, once, Fold(once), in)
	}
}

func TestStore_OpenCreatesLayout(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store := NewStore(root)

	p, err := store.Open("Tom  Hanks")
	require.NoError(t, err)

	assert.Equal(t, "Tom Hanks", p.Actor)
	assert.Equal(t, "tom_hanks", p.Key)
	assert.Equal(t, filepath.Join(root, "actors", "tom_hanks"), p.Dir)
	assert.DirExists(t, p.ThumbnailsDir())
	assert.Equal(t, filepath.Join(p.Dir, "tom_hanks_script.txt"), p.ScriptPath())
	assert.Equal(t, filepath.Join(p.Dir, "tom_hanks_PHONETIC_script.txt"), p.PhoneticPath())
	assert.Equal(t, filepath.Join(p.Dir, "tom_hanks_cost_tracking.json"), p.CostPath())
	assert.Equal(t, filepath.Join(p.Dir, "images", "image_metadata.json"), p.ImageMetadataPath())

	again, err := store.Open("TOM HANKS")
	require.NoError(t, err)
	assert.Equal(t, p.Dir, again.Dir)

	keys, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"tom_hanks"}, keys)
}

func TestStore_OpenRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	_, err := NewStore(t.TempDir()).Open("'' ..")
	assert.Error(t, err)
}

func TestProject_LatestScriptIgnoresPhonetic(t *testing.T) {
	t.Parallel()
	p, err := NewStore(t.TempDir()).Open("Tom Hanks")
	require.NoError(t, err)

	assert.False(t, p.Has(KindScript))

	old := filepath.Join(p.Dir, "draft_script.txt")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(p.ScriptPath(), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(p.PhoneticPath(), []byte("phonetic"), 0o644))

	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(p.ScriptPath(), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(p.PhoneticPath(), now, now))

	latest, err := p.LatestScript()
	require.NoError(t, err)
	assert.Equal(t, p.ScriptPath(), latest)

	status := p.Status()
	assert.True(t, status[KindScript])
	assert.True(t, status[KindPhonetic])
	assert.False(t, status[KindStoryboard])
}

const sampleScript = `**TOM HANKS — 5-MINUTE BIO SCRIPT (~800 words)**

**HOOK**
Box of chocolates. Volleyball. Space capsule.
Tom Hanks's everyman magic. **Grab the volleyball, and let's get rollin'.**

**BIO**
Concord, California, 1956. A boy moves house again.
He keeps moving.
`

func TestNarrationBody(t *testing.T) {
	body := NarrationBody(sampleScript)
	assert.True(t, len(body) > 0)
	assert.NotContains(t, body, "5-MINUTE BIO SCRIPT")
	assert.NotContains(t, body, "**HOOK**")
	assert.Contains(t, body, "Box of chocolates.")
	assert.Contains(t, body, "**Grab the volleyball, and let's get rollin'.**")
	assert.Contains(t, body, "He keeps moving.")

	assert.Equal(t, "plain text", NarrationBody("  plain text \n"))
}

func TestSection(t *testing.T) {
	hook := Section(sampleScript, "HOOK")
	assert.NotContains(t, hook, "Concord")
	assert.Contains(t, hook, "Volleyball.")

	bio := Section(sampleScript, "BIO")
	assert.Equal(t, "Concord, California, 1956. A boy moves house again.\nHe keeps moving.", bio)

	assert.Empty(t, Section(sampleScript, "OUTRO"))
}

func TestProject_ReadScript(t *testing.T) {
	t.Parallel()
	p, err := NewStore(t.TempDir()).Open("Tom Hanks")
	require.NoError(t, err)

	_, err = p.ReadScript()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(p.ScriptPath(), []byte(sampleScript), 0o644))
	body, err := p.ReadScript()
	require.NoError(t, err)
	assert.Contains(t, body, "Concord, California, 1956.")
}

func TestProject_ArchiveKeepsSuffixAndLatest(t *testing.T) {
	p, err := NewStore(t.TempDir()).Open("Tom Hanks")
	require.NoError(t, err)

	archived, err := p.Archive(KindScript, time.Now())
	require.NoError(t, err)
	assert.Empty(t, archived)

	require.NoError(t, os.WriteFile(p.ScriptPath(), []byte("**HOOK**\nold"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(p.ScriptPath(), old, old))

	stamp := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	archived, err = p.Archive(KindScript, stamp)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Dir, "tom_hanks_20250601_093000_script.txt"), archived)
	assert.NoFileExists(t, p.ScriptPath())

	require.NoError(t, os.WriteFile(p.ScriptPath(), []byte("**HOOK**\nnew"), 0o644))
	latest, err := p.LatestScript()
	require.NoError(t, err)
	assert.Equal(t, p.ScriptPath(), latest)

	require.NoError(t, os.WriteFile(p.PhoneticPath(), []byte("fo-NET-ik"), 0o644))
	archived, err = p.Archive(KindPhonetic, stamp)
	require.NoError(t, err)
	assert.Equal(t, "tom_hanks_20250601_093000_PHONETIC_script.txt", filepath.Base(archived))
	latest, err = p.LatestScript()
	require.NoError(t, err)
	assert.Equal(t, p.ScriptPath(), latest)
}

func TestStore_LookupDoesNotCreate(t *testing.T) {
	s := NewStore(t.TempDir())
	p, ok, err := s.Lookup("Meryl Streep")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "meryl_streep", p.Key)
	assert.NoDirExists(t, p.Dir)

	_, err = s.Open("Meryl Streep")
	require.NoError(t, err)
	_, ok, err = s.Lookup("MERYL  STREEP")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = s.Lookup("!!!")
	assert.Error(t, err)
}
