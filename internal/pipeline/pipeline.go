// Package pipeline runs one pass of fetch, dedup, scoring, selection,
// proposal generation, persistence and notification.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/freelance-pipeline/internal/feed"
	"github.com/spigell/freelance-pipeline/internal/filtering"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/logger"
	"github.com/spigell/freelance-pipeline/internal/notify"
	"github.com/spigell/freelance-pipeline/internal/scoring"
	"github.com/spigell/freelance-pipeline/internal/store"
)

// State is the coordinator's position in a run.
type State string

const (
	StateIdle                State = "idle"
	StateFetchingFeeds       State = "fetching_feeds"
	StateDeduplicating       State = "deduplicating"
	StateScoring             State = "scoring"
	StateSelecting           State = "selecting"
	StateGeneratingProposals State = "generating_proposals"
	StatePersisting          State = "persisting"
	StateNotifyReady         State = "notify_ready"
)

const DefaultConcurrency = 4

// Fetcher retrieves the candidate jobs of one feed.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source) ([]*jobs.Job, feed.Report, error)
}

// ProposalWriter fills Proposal on every job and reports how many came from each source.
type ProposalWriter interface {
	Apply(ctx context.Context, items []*jobs.Job) map[string]int
}

// Config is the immutable per-run configuration.
type Config struct {
	Feeds       []feed.Source
	Scoring     scoring.Config
	MinScore    int
	MaxJobs     int
	Concurrency int
	// TestMode runs and persists everything but never notifies.
	TestMode bool
}

// Deps are the collaborators of a run.
type Deps struct {
	Fetcher   Fetcher
	Store     store.SeenStore
	Proposals ProposalWriter
	// Notifier may be nil, in which case the digest is skipped.
	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Coordinator sequences a run.
type Coordinator struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	state State
}

func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = filtering.DefaultMaxJobs
	}
	cfg.Scoring = cfg.Scoring.Normalize()

	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = logger.WithFields(deps.Logger)

	return &Coordinator{cfg: cfg, deps: deps, state: StateIdle}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) enter(log *zap.Logger, s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Debug("state", zap.String(logger.FieldState, string(s)))
}

// Run executes one pass. Only store failures (*store.UnavailableError) and
// cancellation end it with an error; the summary is returned in every case.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		RunID:          uuid.NewString(),
		StartedAt:      c.deps.Now(),
		FeedsAttempted: len(c.cfg.Feeds),
		ProposalSource: map[string]int{},
	}
	log := logger.WithFields(c.deps.Logger, zap.String(logger.FieldRunID, sum.RunID))

	defer func() {
		sum.FinishedAt = c.deps.Now()
		c.enter(log, StateIdle)
	}()

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if c.deps.Store == nil {
		return sum, &store.UnavailableError{Op: "open", Cause: errors.New("no store configured")}
	}
	if err := c.deps.Store.Ping(ctx); err != nil {
		return sum, asUnavailable("ping", err)
	}

	c.enter(log, StateFetchingFeeds)
	candidates := c.fetchAll(ctx, log, sum)
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	c.enter(log, StateDeduplicating)
	res, err := filtering.Run(ctx, filtering.Deps{Store: c.deps.Store, Logger: log},
		[]filtering.Filter{filtering.NewBatchDedup(), filtering.NewSeen()},
		&jobs.Jobs{Items: candidates},
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		return sum, asUnavailable("exists", err)
	}
	fresh := res.Jobs.Items
	sum.JobsNew = len(fresh)
	sum.JobsDuplicate = sum.JobsFetched - sum.JobsNew

	c.enter(log, StateScoring)
	for _, j := range fresh {
		j.Score = scoring.Score(j, c.cfg.Scoring)
		if j.Score >= c.cfg.MinScore {
			sum.JobsRelevant++
		}
	}
	sum.JobsScored = len(fresh)

	c.enter(log, StateSelecting)
	selected := filtering.Select(fresh, c.cfg.MinScore, c.cfg.MaxJobs)
	sum.JobsSelected = len(selected)
	sum.Selected = selected

	if len(selected) > 0 {
		c.enter(log, StateGeneratingProposals)
		if c.deps.Proposals != nil {
			sum.ProposalSource = c.deps.Proposals.Apply(ctx, selected)
		}

		c.enter(log, StatePersisting)
		if err := c.persist(ctx, log, selected, sum); err != nil {
			return sum, err
		}
	}

	c.enter(log, StateNotifyReady)
	c.notify(ctx, log, selected, sum)

	log.Info("run finished", sum.Fields()...)
	return sum, nil
}

type fetchResult struct {
	jobs   []*jobs.Job
	report feed.Report
	err    error
}

// fetchAll fetches every feed with bounded concurrency. A failing feed never
// cancels the others; results keep the configured feed order.
func (c *Coordinator) fetchAll(ctx context.Context, log *zap.Logger, sum *Summary) []*jobs.Job {
	results := make([]fetchResult, len(c.cfg.Feeds))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, src := range c.cfg.Feeds {
		g.Go(func() error {
			if c.deps.Fetcher == nil {
				results[i] = fetchResult{err: &feed.FetchError{Feed: src.URL, Cause: errors.New("no fetcher configured")}}
				return nil
			}
			got, report, err := c.deps.Fetcher.Fetch(ctx, src)
			results[i] = fetchResult{jobs: got, report: report, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var all []*jobs.Job
	for i, r := range results {
		src := c.cfg.Feeds[i]
		status := FeedStatus{URL: src.URL, Source: src.Tag(), State: FeedOK, Jobs: len(r.jobs), Malformed: len(r.report.Malformed)}
		flog := logger.WithFields(log, logger.FeedFields(src.URL, src.Tag())...)

		if r.err != nil {
			status.State = FeedFailed
			status.Jobs = 0
			status.Error = r.err.Error()
			sum.FeedsFailed++
			flog.Warn("feed failed, skipping", zap.Error(r.err))
		} else {
			all = append(all, r.jobs...)
			flog.Info("feed fetched", zap.Int("jobs", len(r.jobs)), zap.Int("malformed", status.Malformed))
		}

		sum.JobsMalformed += status.Malformed
		sum.Feeds = append(sum.Feeds, status)
	}

	sum.JobsFetched = len(all)
	return all
}

func (c *Coordinator) persist(ctx context.Context, log *zap.Logger, selected []*jobs.Job, sum *Summary) error {
	now := c.deps.Now().UTC()
	for _, j := range selected {
		if j.FoundAt.IsZero() {
			j.FoundAt = now
		}
		added, err := c.deps.Store.Insert(ctx, j)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return asUnavailable("insert", err)
		}
		if added {
			sum.JobsPersisted++
		} else {
			log.Debug("job already persisted", logger.JobFields(j.ID, j.Title)...)
		}
	}
	return nil
}

func (c *Coordinator) notify(ctx context.Context, log *zap.Logger, selected []*jobs.Job, sum *Summary) {
	switch {
	case len(selected) == 0:
		sum.NotifyOutcome = NotifyNoNewJobs
		return
	case c.cfg.TestMode || c.deps.Notifier == nil:
		sum.NotifyOutcome = NotifySkipped
		return
	}

	err := c.deps.Notifier.Notify(ctx, notify.Digest{RunID: sum.RunID, RunAt: sum.StartedAt, Jobs: selected})
	switch {
	case err == nil:
		sum.NotifyOutcome = NotifySent
	case errors.Is(err, notify.ErrSkipped):
		sum.NotifyOutcome = NotifySkipped
	default:
		sum.NotifyOutcome = NotifyFailed
		sum.NotifyError = err.Error()
		log.Error("digest delivery failed, persisted jobs stay seen", zap.Error(err))
	}
}

func asUnavailable(op string, err error) error {
	var ue *store.UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &store.UnavailableError{Op: op, Cause: err}
}
