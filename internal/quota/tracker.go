package quota

import (
	"context"
	"sort"
	"time"
)

// Usage is a snapshot of today's quota.
type Usage struct {
	Date           string   `json:"date"`
	SearchesToday  int      `json:"searches_today"`
	Limit          int      `json:"limit"`
	Remaining      int      `json:"remaining"`
	ActorsSearched []string `json:"actors_searched"`
}

// Tracker gates search calls against a daily ceiling. Days are UTC dates;
// the first access on a new day resets the counters exactly once.
type Tracker struct {
	store StateStore
	limit int
	now   func() time.Time
}

type TrackerOption func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store StateStore, limit int, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Limit() int { return t.limit }

// current returns today's state, persisting a rollover when the stored
// date is stale.
func (t *Tracker) current(ctx context.Context) (State, error) {
	today := utcDate(t.now())
	s, err := t.store.Load(ctx)
	if err != nil {
		return State{}, err
	}
	if s.Date == today {
		return s, nil
	}
	return t.store.Update(ctx, func(s *State) error {
		s.rollover(today)
		return nil
	})
}

// Remaining returns how many searches are left today, never below zero.
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	s, err := t.current(ctx)
	if err != nil {
		return 0, err
	}
	return t.remaining(s), nil
}

func (t *Tracker) remaining(s State) int {
	if r := t.limit - s.SearchesUsed; r > 0 {
		return r
	}
	return 0
}

// Consume counts one successful search call for actor and persists it.
func (t *Tracker) Consume(ctx context.Context, actor string) (int, error) {
	today := utcDate(t.now())
	s, err := t.store.Update(ctx, func(s *State) error {
		s.rollover(today)
		s.SearchesUsed++
		if actor != "" {
			s.Actors[actor]++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return t.remaining(s), nil
}

// AddFailures adds per-domain failure increments to the persisted map.
func (t *Tracker) AddFailures(ctx context.Context, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}
	_, err := t.store.Update(ctx, func(s *State) error {
		s.normalize()
		for domain, n := range deltas {
			s.FailedDomains[domain] += n
		}
		return nil
	})
	return err
}

// FailedDomains returns the persisted failure counts.
func (t *Tracker) FailedDomains(ctx context.Context) (map[string]int, error) {
	s, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.FailedDomains, nil
}

func (t *Tracker) Usage(ctx context.Context) (Usage, error) {
	s, err := t.current(ctx)
	if err != nil {
		return Usage{}, err
	}
	actors := make([]string, 0, len(s.Actors))
	for a := range s.Actors {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	return Usage{
		Date:           s.Date,
		SearchesToday:  s.SearchesUsed,
		Limit:          t.limit,
		Remaining:      t.remaining(s),
		ActorsSearched: actors,
	}, nil
}
