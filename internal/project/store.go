package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MimeLyc/bioreel/pkg/file"
)

// Kind names one persisted artifact of a project.
type Kind string

const (
	KindScript        Kind = "script"
	KindPhonetic      Kind = "phonetic"
	KindScriptData    Kind = "script_data"
	KindStoryboard    Kind = "storyboard"
	KindMusicPlan     Kind = "music_plan"
	KindCost          Kind = "cost"
	KindImageMetadata Kind = "image_metadata"
)

const actorsDir = "actors"

// Fold maps a raw actor name to its canonical project key. It removes
// diacritics, lowercases, keeps letters, digits, hyphens and whitespace,
// and joins the remaining words with underscores. Fold(Fold(s)) == Fold(s).
func Fold(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lowered := strings.ToLower(name)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// Store resolves actor names to project folders under root/actors.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// Lookup resolves actor without touching the disk. ok is false when the
// project folder does not exist yet.
func (s *Store) Lookup(actor string) (p *Project, ok bool, err error) {
	key := Fold(actor)
	if key == "" {
		return nil, false, fmt.Errorf("actor name %q has no usable characters", actor)
	}
	p = &Project{
		Actor: strings.Join(strings.Fields(actor), " "),
		Key:   key,
		Dir:   filepath.Join(s.root, actorsDir, key),
	}
	info, statErr := os.Stat(p.Dir)
	return p, statErr == nil && info.IsDir(), nil
}

// Open returns the project for actor, creating its folder tree on first use.
func (s *Store) Open(actor string) (*Project, error) {
	p, _, err := s.Lookup(actor)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.ThumbnailsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create project folder: %w", err)
	}
	return p, nil
}

// List returns the keys of every project on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, actorsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Project is one actor's folder.
type Project struct {
	Actor string
	Key   string
	Dir   string
}

func (p *Project) path(suffix string) string {
	return filepath.Join(p.Dir, p.Key+suffix)
}

func (p *Project) ScriptPath() string     { return p.path("_script.txt") }
func (p *Project) PhoneticPath() string   { return p.path("_PHONETIC_script.txt") }
func (p *Project) ScriptDataPath() string { return p.path("_script_data.json") }
func (p *Project) StoryboardPath() string { return p.path("_storyboard.json") }
func (p *Project) MusicPlanPath() string  { return p.path("_music_plan.json") }
func (p *Project) CostPath() string       { return p.path("_cost_tracking.json") }
func (p *Project) ImagesDir() string      { return filepath.Join(p.Dir, "images") }
func (p *Project) ThumbnailsDir() string  { return filepath.Join(p.ImagesDir(), "thumbnails") }
func (p *Project) ImageMetadataPath() string {
	return filepath.Join(p.ImagesDir(), "image_metadata.json")
}

// Path returns the file backing kind.
func (p *Project) Path(kind Kind) string {
	switch kind {
	case KindScript:
		return p.ScriptPath()
	case KindPhonetic:
		return p.PhoneticPath()
	case KindScriptData:
		return p.ScriptDataPath()
	case KindStoryboard:
		return p.StoryboardPath()
	case KindMusicPlan:
		return p.MusicPlanPath()
	case KindCost:
		return p.CostPath()
	case KindImageMetadata:
		return p.ImageMetadataPath()
	default:
		return ""
	}
}

// Has reports whether the artifact of kind exists. For scripts any earlier
// script file in the folder counts.
func (p *Project) Has(kind Kind) bool {
	if kind == KindScript {
		latest, err := p.LatestScript()
		return err == nil && latest != ""
	}
	return file.Exists(p.Path(kind))
}

// LatestScript returns the newest narration script by modification time,
// ignoring phonetic variants.
func (p *Project) LatestScript() (string, error) {
	return file.FindLatest(p.Dir, "*_script.txt", func(name string) bool {
		return !strings.Contains(name, "PHONETIC")
	})
}

// ReadScript loads the latest script and returns the narration body.
func (p *Project) ReadScript() (string, error) {
	path, err := p.LatestScript()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no script found for %s", p.Actor)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return NarrationBody(string(data)), nil
}

// Archive renames the current file of kind to a timestamped name in the same
// folder so the next write supersedes it. The archived name keeps the kind
// suffix, and the rename keeps its modification time, so LatestScript still
// prefers the newer file. It returns "" when there is nothing to archive.
func (p *Project) Archive(kind Kind, now time.Time) (string, error) {
	current := p.Path(kind)
	if current == "" || !file.Exists(current) {
		return "", nil
	}
	base := filepath.Base(current)
	suffix := strings.TrimPrefix(base, p.Key)
	if suffix == base {
		suffix = "_" + base
	}
	archived := filepath.Join(filepath.Dir(current), p.Key+"_"+now.Format("20060102_150405")+suffix)
	if err := os.Rename(current, archived); err != nil {
		return "", fmt.Errorf("archive %s: %w", base, err)
	}
	return archived, nil
}

// Status lists which artifacts are present.
func (p *Project) Status() map[Kind]bool {
	kinds := []Kind{KindScript, KindPhonetic, KindScriptData, KindStoryboard, KindMusicPlan, KindCost, KindImageMetadata}
	ret := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		ret[k] = p.Has(k)
	}
	return ret
}

// NarrationBody returns the HOOK and BIO sections of a script joined by a
// blank line, or the trimmed text when the markers are missing.
func NarrationBody(text string) string {
	hook, bio := Section(text, "HOOK"), Section(text, "BIO")
	if hook == "" && bio == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(hook + "\n\n" + bio)
}

// Section returns the text following a "**NAME**" marker line up to the next
// bold marker, trimmed.
func Section(text, name string) string {
	marker := "**" + name + "**"
	idx := strings.Index(text, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]
	if end := nextMarker(rest); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// nextMarker finds the start of the next line that begins with a bold heading
// written in capitals, e.g. "**BIO**".
func nextMarker(s string) int {
	offset := 0
	for _, line := range strings.SplitAfter(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if offset > 0 && strings.HasPrefix(trimmed, "**") && strings.HasSuffix(trimmed, "**") && len(trimmed) > 4 {
			inner := strings.Trim(trimmed, "*")
			if inner != "" && strings.ToUpper(inner) == inner {
				return offset
			}
		}
		offset += len(line)
	}
	return -1
}
