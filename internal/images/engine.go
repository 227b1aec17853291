package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/bioreel/internal/project"
	"github.com/MimeLyc/bioreel/internal/quota"
	"github.com/MimeLyc/bioreel/internal/search"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Searcher returns one page of image results starting at the 1-based offset.
type Searcher interface {
	Search(ctx context.Context, actor, query string, start int) ([]search.Result, error)
}

// Quota is the engine's view of the daily search state.
type Quota interface {
	Remaining(ctx context.Context) (int, error)
	AddFailures(ctx context.Context, deltas map[string]int) error
}

// Engine acquires images for every shot of a storyboard.
type Engine struct {
	searcher Searcher
	quota    Quota
	scorer   *quota.Scorer
	client   *http.Client
	opts     Options
	logger   *log.Logger
}

type EngineOption func(*Engine)

func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) { e.client = c }
}

func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(searcher Searcher, q Quota, scorer *quota.Scorer, opts Options, extra ...EngineOption) *Engine {
	if scorer == nil {
		scorer = quota.NewScorer(nil)
	}
	e := &Engine{
		searcher: searcher,
		quota:    q,
		scorer:   scorer,
		client:   &http.Client{},
		opts:     opts.withDefaults(),
		logger:   log.GetLogger(),
	}
	for _, opt := range extra {
		opt(e)
	}
	return e
}

// Options returns a copy of the engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// SetSkipExisting switches between resuming and downloading every shot.
func (e *Engine) SetSkipExisting(skip bool) {
	e.opts.SkipExisting = skip
}

// run holds the state of one Engine.Run call.
type run struct {
	*Engine
	actor      string
	proj       *project.Project
	meta       *Metadata
	downloader *Downloader
	letters    *Letters
	summary    *Summary
	metaMu     sync.Mutex
}

// Run processes shots in order. Quota exhaustion stops the whole run and is
// reported in the summary, not as an error. The returned error is reserved
// for failures to read the project folder.
func (e *Engine) Run(ctx context.Context, proj *project.Project, shots []Shot) (*Summary, error) {
	letters, err := ScanLetters(proj.ImagesDir())
	if err != nil {
		return nil, fmt.Errorf("scan images folder: %w", err)
	}
	meta := LoadMetadata(proj.ImageMetadataPath(), proj.Actor)
	hashes := NewHashSet(meta.Hashes()...)

	r := &run{
		Engine:     e,
		actor:      proj.Actor,
		proj:       proj,
		meta:       meta,
		letters:    letters,
		downloader: NewDownloader(e.client, e.opts, e.scorer, hashes, letters, proj.ImagesDir()),
		summary: &Summary{
			ActorName:  proj.Actor,
			TotalShots: len(shots),
			Shots:      make(map[int]ShotMetadata),
			Timestamp:  time.Now().UTC(),
		},
	}
	e.logger.Info("Acquiring images for %d shots of %s (%d known hashes)", len(shots), proj.Actor, hashes.Len())

	for _, shot := range shots {
		if ctx.Err() != nil {
			break
		}
		r.shot(ctx, shot)
	}

	r.flushFailures(ctx)
	r.summary.FailedDomains = e.scorer.Failures()
	return r.summary, nil
}

func (r *run) shot(ctx context.Context, shot Shot) {
	s := r.summary
	if shot.Number <= 0 {
		r.logger.Warn("Skipping storyboard row without a shot number")
		return
	}
	if shot.Query == "" {
		r.logger.Warn("No search query for shot %d", shot.Number)
		s.SkippedShots++
		s.Shots[shot.Number] = ShotMetadata{State: ShotSkipped, Error: "no search query"}
		return
	}
	existing := r.letters.Count(shot.Number)
	if r.opts.SkipExisting && existing >= r.opts.Minimum {
		r.logger.Info("Skipping shot %d - already has %d images (min: %d)", shot.Number, existing, r.opts.Minimum)
		s.SkippedShots++
		s.Shots[shot.Number] = ShotMetadata{SearchQuery: shot.Query, State: ShotSkipped, ExistingCount: existing}
		return
	}
	if s.LimitReached {
		r.limitSkip(shot)
		return
	}

	remaining, err := r.quota.Remaining(ctx)
	if err != nil {
		r.logger.Error("Failed to read search quota: %v", err)
		s.SearchErrors++
		s.Shots[shot.Number] = ShotMetadata{SearchQuery: shot.Query, State: ShotExhausted, Error: err.Error()}
		return
	}
	if remaining <= 0 {
		r.logger.Warn("Daily search limit reached. Stopping at shot %d", shot.Number)
		s.LimitReached = true
		r.limitSkip(shot)
		return
	}

	meta := r.acquire(ctx, shot)
	meta.ExistingCount = existing
	s.ProcessedShots++
	s.TotalAPICalls += meta.APICalls
	s.TotalDownloads += meta.DownloadAttempts
	s.SuccessfulDownloads += meta.SuccessfulDownloads
	s.FailedDownloads += meta.FailedDownloads
	s.Shots[shot.Number] = meta

	r.checkpoint(ctx, shot.Number, meta)
}

func (r *run) limitSkip(shot Shot) {
	r.summary.LimitSkippedShots++
	r.summary.Shots[shot.Number] = ShotMetadata{SearchQuery: shot.Query, State: ShotSkipped, LimitSkipped: true}
}

// acquire is the search-then-download loop for one shot: keep paging while
// the shot is below the minimum, within its search budget and the quota.
func (r *run) acquire(ctx context.Context, shot Shot) ShotMetadata {
	meta := ShotMetadata{SearchQuery: shot.Query, State: ShotSearching}
	r.logger.Info("Processing shot %d: %s", shot.Number, shot.Query)

	start := 1
	for meta.SuccessfulDownloads < r.opts.Minimum && meta.APICalls < r.opts.MaxSearches {
		meta.State = ShotSearching
		results, err := r.searcher.Search(ctx, r.actor, shot.Query, start)
		if errors.Is(err, search.ErrQuotaExhausted) {
			r.logger.Warn("Search limit reached while processing shot %d", shot.Number)
			r.summary.LimitReached = true
			break
		}
		if err != nil {
			r.logger.Error("Search error for shot %d: %v", shot.Number, err)
			r.summary.SearchErrors++
			meta.Error = err.Error()
			break
		}
		meta.APICalls++
		meta.TotalResults += len(results)
		if len(results) == 0 {
			r.logger.Warn("No more results for shot %d", shot.Number)
			break
		}

		// Every result of a fetched page is attempted. Paging stops above
		// the minimum, which never exceeds the target.
		meta.State = ShotDownloading
		r.downloadPage(ctx, shot.Number, r.rank(results), &meta)
		start += len(results)
		r.checkpoint(ctx, shot.Number, meta)
	}

	switch {
	case meta.SuccessfulDownloads >= r.opts.Target:
		meta.State = ShotSatisfied
	case meta.SuccessfulDownloads >= r.opts.Minimum:
		meta.State = ShotPartial
	default:
		meta.State = ShotExhausted
	}

	if meta.SuccessfulDownloads >= r.opts.Minimum {
		r.logger.Info("Shot %d: Downloaded %d images (target: %d, min: %d) using %d API call(s)",
			shot.Number, meta.SuccessfulDownloads, r.opts.Target, r.opts.Minimum, meta.APICalls)
	} else {
		r.logger.Warn("Shot %d: Only downloaded %d images (below minimum %d) after %d API calls",
			shot.Number, meta.SuccessfulDownloads, r.opts.Minimum, meta.APICalls)
	}
	return meta
}

// rank orders results by domain score, best first, keeping search order
// among equals.
func (r *run) rank(results []search.Result) []search.Result {
	ranked := make([]search.Result, len(results))
	copy(ranked, results)
	scores := make(map[string]int, len(ranked))
	for _, res := range ranked {
		scores[res.URL] = r.scorer.Score(res.Domain())
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].URL] > scores[ranked[j].URL]
	})
	return ranked
}

// downloadPage fetches candidates on a bounded pool. Individual failures
// never cancel the page.
func (r *run) downloadPage(ctx context.Context, shot int, candidates []search.Result, meta *ShotMetadata) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(r.opts.Concurrency)
	for _, res := range candidates {
		if res.URL == "" {
			continue
		}
		meta.DownloadAttempts++
		res := res
		g.Go(func() error {
			rec, err := r.downloader.Fetch(ctx, shot, res)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				meta.FailedDownloads++
				r.logger.Debug("Failed to download %s for shot %d: %v", res.URL, shot, err)
			} else {
				meta.SuccessfulDownloads++
				meta.Files = append(meta.Files, rec.Filename)
			}
			r.recordImage(rec)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(meta.Files)
}

func (r *run) recordImage(rec ImageRecord) {
	r.metaMu.Lock()
	r.meta.Images = append(r.meta.Images, rec)
	r.metaMu.Unlock()
}

// checkpoint persists domain failures and the metadata document, so hashes
// of stored files survive a crash in the middle of a shot.
func (r *run) checkpoint(ctx context.Context, shot int, meta ShotMetadata) {
	r.flushFailures(ctx)
	r.saveMetadata(shot, meta)
}

func (r *run) saveMetadata(shot int, meta ShotMetadata) {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	r.meta.Shots[shot] = meta
	if err := r.meta.Save(r.proj.ImageMetadataPath()); err != nil {
		r.logger.Error("Failed to save image metadata: %v", err)
		r.summary.PersistErrors = append(r.summary.PersistErrors, fmt.Sprintf("%v: %v", ErrPersist, err))
	}
}

// flushFailures hands new domain failures to the shared state store.
func (r *run) flushFailures(ctx context.Context) {
	pending := r.scorer.DrainPending()
	if len(pending) == 0 {
		return
	}
	if err := r.quota.AddFailures(ctx, pending); err != nil {
		r.scorer.Requeue(pending)
		r.logger.Error("Failed to persist domain failures: %v", err)
		r.summary.PersistErrors = append(r.summary.PersistErrors, fmt.Sprintf("domain failures: %v", err))
	}
}

// Status reports how many shots already have images on disk.
func (e *Engine) Status(proj *project.Project, shots []Shot) (Status, error) {
	letters, err := ScanLetters(proj.ImagesDir())
	if err != nil {
		return Status{}, err
	}
	st := Status{Total: len(shots)}
	for _, shot := range shots {
		n := letters.Count(shot.Number)
		if n > 0 {
			st.WithImages++
		}
		if n >= e.opts.Minimum {
			st.Complete++
		}
	}
	st.Missing = st.Total - st.WithImages
	return st, nil
}
