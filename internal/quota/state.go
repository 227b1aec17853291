package quota

import (
	"context"
	"time"
)

const dateLayout = "2006-01-02"

// State is the process-wide search quota and domain reliability record.
type State struct {
	Date          string         `json:"date"`
	SearchesUsed  int            `json:"searches"`
	Actors        map[string]int `json:"actors"`
	FailedDomains map[string]int `json:"failed_domains"`
}

func newState(date string) State {
	return State{
		Date:          date,
		Actors:        map[string]int{},
		FailedDomains: map[string]int{},
	}
}

func (s *State) normalize() {
	if s.Actors == nil {
		s.Actors = map[string]int{}
	}
	if s.FailedDomains == nil {
		s.FailedDomains = map[string]int{}
	}
}

// rollover resets the daily counters when the state belongs to another day.
// Domain failures are cumulative and survive the reset.
func (s *State) rollover(today string) bool {
	s.normalize()
	if s.Date == today {
		return false
	}
	s.Date = today
	s.SearchesUsed = 0
	s.Actors = map[string]int{}
	return true
}

// StateStore persists State. Update is an atomic read-modify-write.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
	Update(ctx context.Context, fn func(*State) error) (State, error)
	Close() error
}

func utcDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
