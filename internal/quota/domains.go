package quota

import (
	"net"
	"net/url"
	"strings"
	"sync"
)

const (
	ScoreDenied       = -100
	ScoreTrusted      = 100
	ScoreUnreliable   = -50
	ScoreQuestionable = -20
)

// Watermarked stock sites; never downloaded from.
var DeniedDomains = []string{
	"gettyimages.com", "shutterstock.com", "alamy.com", "istockphoto.com",
	"dreamstime.com", "123rf.com", "fotolia.com", "depositphotos.com",
}

var TrustedDomains = []string{
	"wikimedia.org", "wikipedia.org", "pexels.com", "unsplash.com",
	"pixabay.com", "flickr.com", "archive.org",
}

// Scorer ranks source domains by their failure history. Counts only grow.
type Scorer struct {
	mu       sync.Mutex
	failures map[string]int
	pending  map[string]int
	denied   []string
	trusted  []string
}

// NewScorer starts from previously persisted failure counts.
func NewScorer(initial map[string]int) *Scorer {
	s := &Scorer{
		failures: make(map[string]int, len(initial)),
		pending:  make(map[string]int),
		denied:   DeniedDomains,
		trusted:  TrustedDomains,
	}
	for d, n := range initial {
		s.failures[NormalizeDomain(d)] += n
	}
	return s
}

// NormalizeDomain lowercases a host or URL and strips port and "www.".
func NormalizeDomain(hostOrURL string) string {
	h := strings.ToLower(strings.TrimSpace(hostOrURL))
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil {
			h = u.Host
		}
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}

func matches(domain string, list []string) bool {
	for _, entry := range list {
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

func (s *Scorer) IsDenied(domain string) bool {
	return matches(NormalizeDomain(domain), s.denied)
}

func (s *Scorer) IsTrusted(domain string) bool {
	return matches(NormalizeDomain(domain), s.trusted)
}

// Score is -100 for denied domains, 100 for trusted ones, then -50 above five
// failures, -20 above two, else 0.
func (s *Scorer) Score(domain string) int {
	d := NormalizeDomain(domain)
	if matches(d, s.denied) {
		return ScoreDenied
	}
	if matches(d, s.trusted) {
		return ScoreTrusted
	}
	s.mu.Lock()
	n := s.failures[d]
	s.mu.Unlock()
	switch {
	case n > 5:
		return ScoreUnreliable
	case n > 2:
		return ScoreQuestionable
	default:
		return 0
	}
}

func (s *Scorer) RecordFailure(domain string) {
	d := NormalizeDomain(domain)
	if d == "" {
		return
	}
	s.mu.Lock()
	s.failures[d]++
	s.pending[d]++
	s.mu.Unlock()
}

// Failures returns a copy of all counts.
func (s *Scorer) Failures() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.failures))
	for d, n := range s.failures {
		out[d] = n
	}
	return out
}

// DrainPending returns the increments recorded since the last drain.
func (s *Scorer) DrainPending() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = make(map[string]int)
	return out
}

// Requeue returns drained increments that could not be persisted, so the
// next drain carries them again.
func (s *Scorer) Requeue(deltas map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, n := range deltas {
		s.pending[d] += n
	}
}
