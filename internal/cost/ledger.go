package cost

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/bioreel/internal/llm"
	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Entry is one billed operation.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"step"`
	Model     string         `json:"model"`
	CostUSD   float64        `json:"cost"`
	Usage     llm.TokenUsage `json:"usage"`
	Extra     map[string]any `json:"additional_info,omitempty"`
}

// StageSummary aggregates the entries of one stage.
type StageSummary struct {
	Count  int      `json:"count"`
	Cost   float64  `json:"total_cost"`
	Models []string `json:"models_used"`
}

// PersistError reports that an entry was kept in memory but could not be
// written to disk.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist cost ledger %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type document struct {
	ActorName string  `json:"actor_name"`
	TotalCost float64 `json:"total_cost"`
	Entries   []Entry `json:"entries"`
}

// Ledger is the append-only cost record of one project. Every Record call
// rewrites the whole file before returning.
type Ledger struct {
	mu   sync.Mutex
	path string
	doc  document
	now  func() time.Time
}

// Open loads the ledger at path, or starts an empty one for actor.
func Open(path, actor string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		doc:  document{ActorName: actor, Entries: []Entry{}},
		now:  time.Now,
	}
	err := file.ReadJSON(path, &l.doc)
	switch {
	case err == nil:
		if l.doc.ActorName == "" {
			l.doc.ActorName = actor
		}
		if l.doc.Entries == nil {
			l.doc.Entries = []Entry{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("load cost ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) ActorName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.ActorName
}

// Record appends an entry and flushes the ledger. On a write failure the
// entry stays recorded in memory and a *PersistError is returned.
func (l *Ledger) Record(stage, model string, costUSD float64, usage llm.TokenUsage, extra map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Entries = append(l.doc.Entries, Entry{
		Timestamp: l.now(),
		Stage:     stage,
		Model:     model,
		CostUSD:   costUSD,
		Usage:     usage,
		Extra:     extra,
	})
	l.doc.TotalCost += costUSD

	if err := file.WriteJSON(l.path, l.doc); err != nil {
		log.Error("Failed to save cost ledger %s: %v", l.path, err)
		return &PersistError{Path: l.path, Err: err}
	}
	log.Info("Tracked cost: %s - $%.4f (%s)", stage, costUSD, model)
	return nil
}

// Total returns the sum of all entries.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.TotalCost
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.doc.Entries)
}

// Latest returns up to n of the most recent entries, oldest first.
func (l *Ledger) Latest(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(l.doc.Entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(l.doc.Entries)-start)
	copy(out, l.doc.Entries[start:])
	return out
}

// Summarize groups entries by stage.
func (l *Ledger) Summarize() map[string]StageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	ret := make(map[string]StageSummary)
	models := make(map[string]map[string]struct{})
	for _, e := range l.doc.Entries {
		s := ret[e.Stage]
		s.Count++
		s.Cost += e.CostUSD
		if models[e.Stage] == nil {
			models[e.Stage] = make(map[string]struct{})
		}
		if _, seen := models[e.Stage][e.Model]; !seen {
			models[e.Stage][e.Model] = struct{}{}
			s.Models = append(s.Models, e.Model)
		}
		ret[e.Stage] = s
	}
	return ret
}

// FormatSummary renders the ledger for the terminal.
func FormatSummary(l *Ledger) string {
	summary := l.Summarize()

	var b strings.Builder
	fmt.Fprintf(&b, "Total Cost: $%.4f\n", l.Total())
	fmt.Fprintf(&b, "Operations: %d\n", l.Len())
	if len(summary) == 0 {
		return b.String()
	}

	stages := make([]string, 0, len(summary))
	for stage := range summary {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	b.WriteString("\nCost by Step:\n")
	for _, stage := range stages {
		s := summary[stage]
		fmt.Fprintf(&b, "  - %s: $%.4f (%d times, %s)\n", stage, s.Cost, s.Count, strings.Join(s.Models, ", "))
	}
	return b.String()
}
