package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/feed"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/notify"
	"github.com/spigell/freelance-pipeline/internal/proposal"
	"github.com/spigell/freelance-pipeline/internal/scoring"
	"github.com/spigell/freelance-pipeline/internal/store"
)

var longText = strings.Repeat("details about the work ", 10)

type fakeFetcher struct {
	mu     sync.Mutex
	feeds  map[string][]jobs.Job
	errs   map[string]error
	delay  map[string]time.Duration
	called []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, src feed.Source) ([]*jobs.Job, feed.Report, error) {
	f.mu.Lock()
	f.called = append(f.called, src.URL)
	f.mu.Unlock()

	if d := f.delay[src.URL]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[src.URL]; err != nil {
		return nil, feed.Report{}, &feed.FetchError{Feed: src.URL, Cause: err}
	}

	// fresh copies so that runs never share mutated jobs
	out := make([]*jobs.Job, 0, len(f.feeds[src.URL]))
	for _, j := range f.feeds[src.URL] {
		j.Source = src.Tag()
		out = append(out, &j)
	}
	return out, feed.Report{Entries: len(out), Accepted: len(out)}, nil
}

type recordingNotifier struct {
	digests []notify.Digest
	err     error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, d notify.Digest) error {
	r.digests = append(r.digests, d)
	return r.err
}

type brokenStore struct {
	pingErr   error
	existsErr error
}

func (b *brokenStore) Ping(context.Context) error { return b.pingErr }

func (b *brokenStore) Exists(context.Context, string) (bool, error) { return false, b.existsErr }

func (b *brokenStore) Insert(context.Context, *jobs.Job) (bool, error) { return true, nil }

func (b *brokenStore) Recent(context.Context, int) ([]*jobs.Job, error) { return nil, nil }

func (b *brokenStore) Close() error { return nil }

func openStore(t *testing.T) store.SeenStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func twoFeeds() *fakeFetcher {
	return &fakeFetcher{feeds: map[string][]jobs.Job{
		"https://a.example.com/rss": {
			{ID: "py", Title: "Python scraper", Description: longText, Budget: jobs.NotSpecified},
			{ID: "wp", Title: "Fix my site", Description: "wordpress theme tweak", Budget: jobs.NotSpecified},
		},
		"https://b.example.com/rss": {
			{ID: "py", Title: "Python scraper", Description: longText, Budget: jobs.NotSpecified},
			{ID: "api", Title: "API integration", Description: longText + " python", Budget: "$800"},
		},
	}}
}

func testConfig(feeds ...string) Config {
	cfg := Config{
		Scoring:  scoring.Config{Positive: []string{"python", "api"}, Negative: []string{"wordpress"}, MinBudget: 100},
		MinScore: 40,
		MaxJobs:  15,
	}
	for _, f := range feeds {
		cfg.Feeds = append(cfg.Feeds, feed.Source{URL: f})
	}
	return cfg
}

func newDeps(fetcher Fetcher, s store.SeenStore, n notify.Notifier, log *zap.Logger) Deps {
	return Deps{
		Fetcher:   fetcher,
		Store:     s,
		Proposals: proposal.NewOrchestrator(nil, ai.Profile{Name: "Sam"}, time.Second, log),
		Notifier:  n,
		Logger:    log,
	}
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	n := &recordingNotifier{}
	cfg := testConfig("https://a.example.com/rss", "https://b.example.com/rss")

	c := New(cfg, newDeps(twoFeeds(), s, n, nil))

	first, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())

	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, 2, first.FeedsAttempted)
	assert.Equal(t, 0, first.FeedsFailed)
	assert.Equal(t, 4, first.JobsFetched)
	assert.Equal(t, 1, first.JobsDuplicate)
	assert.Equal(t, 3, first.JobsNew)
	assert.Equal(t, 3, first.JobsScored)
	assert.Equal(t, 2, first.JobsRelevant)
	assert.Equal(t, 2, first.JobsSelected)
	assert.Equal(t, 2, first.JobsPersisted)
	assert.Equal(t, map[string]int{proposal.SourceTemplate: 2}, first.ProposalSource)
	assert.Equal(t, NotifySent, first.NotifyOutcome)

	require.Len(t, n.digests, 1)
	digest := n.digests[0]
	assert.Equal(t, first.RunID, digest.RunID)
	require.Len(t, digest.Jobs, 2)
	assert.Equal(t, "api", digest.Jobs[0].ID)
	assert.Equal(t, "py", digest.Jobs[1].ID)
	for _, j := range digest.Jobs {
		assert.Contains(t, j.Proposal, "Sam")
		assert.False(t, j.FoundAt.IsZero())
	}

	second, err := c.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 4, second.JobsFetched)
	// the low-scoring posting was never persisted and is evaluated again
	assert.Equal(t, 1, second.JobsNew)
	assert.Equal(t, 0, second.JobsRelevant)
	assert.Equal(t, 0, second.JobsSelected)
	assert.Equal(t, NotifyNoNewJobs, second.NotifyOutcome)
	assert.Len(t, n.digests, 1)
}

func TestRunToleratesFailingFeed(t *testing.T) {
	f := twoFeeds()
	f.errs = map[string]error{"https://down.example.com/rss": errors.New("connection refused")}
	cfg := testConfig("https://a.example.com/rss", "https://down.example.com/rss", "https://b.example.com/rss")

	sum, err := New(cfg, newDeps(f, openStore(t), &recordingNotifier{}, nil)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.FeedsAttempted)
	assert.Equal(t, 1, sum.FeedsFailed)
	require.Len(t, sum.Feeds, 3)
	assert.Equal(t, FeedOK, sum.Feeds[0].State)
	assert.Equal(t, FeedFailed, sum.Feeds[1].State)
	assert.Contains(t, sum.Feeds[1].Error, "connection refused")
	assert.Equal(t, FeedOK, sum.Feeds[2].State)
	assert.Equal(t, 4, sum.JobsFetched)
	assert.Equal(t, NotifySent, sum.NotifyOutcome)
}

func TestRunKeepsFeedOrder(t *testing.T) {
	f := twoFeeds()
	f.delay = map[string]time.Duration{"https://a.example.com/rss": 50 * time.Millisecond}
	cfg := testConfig("https://a.example.com/rss", "https://b.example.com/rss")
	cfg.Concurrency = 2

	sum, err := New(cfg, newDeps(f, openStore(t), nil, nil)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Feeds, 2)
	assert.Equal(t, "https://a.example.com/rss", sum.Feeds[0].URL)
	assert.Equal(t, 2, sum.Feeds[0].Jobs)
	assert.Equal(t, "https://b.example.com/rss", sum.Feeds[1].URL)
	// "py" is kept from the first feed even though the second answered first
	assert.Equal(t, 1, sum.JobsDuplicate)
}

func TestRunNotifyFailureKeepsPersistedJobs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	n := &recordingNotifier{err: &notify.Error{Notifier: "recording", Cause: errors.New("smtp down")}}

	sum, err := New(testConfig("https://a.example.com/rss"), newDeps(twoFeeds(), s, n, nil)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, NotifyFailed, sum.NotifyOutcome)
	assert.Contains(t, sum.NotifyError, "smtp down")
	assert.Equal(t, 1, sum.JobsPersisted)

	seen, err := s.Exists(ctx, "py")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunStoreUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		store store.SeenStore
	}{
		{name: "ping", store: &brokenStore{pingErr: errors.New("disk gone")}},
		{name: "exists", store: &brokenStore{existsErr: errors.New("locked")}},
		{name: "missing", store: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			c := New(testConfig("https://a.example.com/rss"), newDeps(twoFeeds(), tt.store, n, nil))

			sum, err := c.Run(context.Background())
			require.NotNil(t, sum)

			var ue *store.UnavailableError
			require.ErrorAs(t, err, &ue)
			assert.Empty(t, n.digests)
			assert.Equal(t, 0, sum.JobsSelected)
			assert.Equal(t, StateIdle, c.State())
		})
	}
}

func TestRunTestModeSkipsNotification(t *testing.T) {
	n := &recordingNotifier{}
	cfg := testConfig("https://a.example.com/rss", "https://b.example.com/rss")
	cfg.TestMode = true

	sum, err := New(cfg, newDeps(twoFeeds(), openStore(t), n, nil)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, NotifySkipped, sum.NotifyOutcome)
	assert.Empty(t, n.digests)
	assert.Equal(t, 2, sum.JobsPersisted)

	var buf bytes.Buffer
	sum.PrintSample(&buf, 3)
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Title: "))
	assert.Contains(t, out, "Proposal (template): ")

	buf.Reset()
	sum.Print(&buf)
	assert.Contains(t, buf.String(), "Digest not sent (2 jobs kept)")
}

func TestRunRefusedConfirmationIsSkipped(t *testing.T) {
	n := &recordingNotifier{}
	refuse := func(notify.Digest) (bool, error) { return false, nil }

	deps := newDeps(twoFeeds(), openStore(t), notify.WithConfirmation(n, refuse), nil)
	sum, err := New(testConfig("https://a.example.com/rss"), deps).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, NotifySkipped, sum.NotifyOutcome)
	assert.Empty(t, n.digests)
}

func TestRunLogsStateTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := New(testConfig("https://a.example.com/rss"), newDeps(twoFeeds(), openStore(t), nil, zap.New(core))).Run(context.Background())
	require.NoError(t, err)

	var states []State
	for _, entry := range logs.FilterMessage("state").All() {
		states = append(states, State(entry.ContextMap()["state"].(string)))
	}
	assert.Equal(t, []State{
		StateFetchingFeeds,
		StateDeduplicating,
		StateScoring,
		StateSelecting,
		StateGeneratingProposals,
		StatePersisting,
		StateNotifyReady,
		StateIdle,
	}, states)

	finished := logs.FilterMessage("run finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "skipped", finished[0].ContextMap()["notify_outcome"])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(testConfig("https://a.example.com/rss"), newDeps(twoFeeds(), openStore(t), nil, nil)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.JobsSelected)
}
