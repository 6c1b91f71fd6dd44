package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/utils"
)

// Notify outcomes.
const (
	NotifySent      = "sent"
	NotifyFailed    = "failed"
	NotifyNoNewJobs = "no_new_jobs"
	NotifySkipped   = "skipped"
)

// Feed states.
const (
	FeedOK     = "ok"
	FeedFailed = "failed"
)

// FeedStatus is the outcome of one feed in a run.
type FeedStatus struct {
	URL       string
	Source    string
	State     string
	Jobs      int
	Malformed int
	Error     string
}

// Summary reports what one run did. It is returned even when the run fails.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	FeedsAttempted int
	FeedsFailed    int
	Feeds          []FeedStatus

	JobsFetched    int
	JobsMalformed  int
	JobsDuplicate  int
	JobsNew        int
	JobsScored     int
	JobsRelevant   int
	JobsSelected   int
	JobsPersisted  int
	ProposalSource map[string]int

	NotifyOutcome string
	NotifyError   string

	Selected []*jobs.Job
}

// Fields renders the summary as structured log fields.
func (s *Summary) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("feeds_attempted", s.FeedsAttempted),
		zap.Int("feeds_failed", s.FeedsFailed),
		zap.Int("jobs_fetched", s.JobsFetched),
		zap.Int("jobs_malformed", s.JobsMalformed),
		zap.Int("jobs_duplicate", s.JobsDuplicate),
		zap.Int("jobs_new", s.JobsNew),
		zap.Int("jobs_scored", s.JobsScored),
		zap.Int("jobs_relevant", s.JobsRelevant),
		zap.Int("jobs_selected", s.JobsSelected),
		zap.Int("jobs_persisted", s.JobsPersisted),
		zap.Any("proposal_sources", s.ProposalSource),
		zap.String("notify_outcome", s.NotifyOutcome),
	}
	if s.NotifyError != "" {
		fields = append(fields, zap.String("notify_error", s.NotifyError))
	}
	if !s.FinishedAt.IsZero() {
		fields = append(fields, zap.Duration("took", s.FinishedAt.Sub(s.StartedAt)))
	}
	return fields
}

// Print writes a human-readable summary.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Run %s at %s\n", s.RunID, s.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  Feeds: %d attempted, %d failed\n", s.FeedsAttempted, s.FeedsFailed)
	for _, f := range s.Feeds {
		if f.State == FeedFailed {
			fmt.Fprintf(w, "    failed: %s (%s)\n", f.URL, f.Error)
		}
	}
	fmt.Fprintf(w, "  Jobs: %d fetched, %d duplicate, %d new, %d scored, %d relevant, %d selected\n",
		s.JobsFetched, s.JobsDuplicate, s.JobsNew, s.JobsScored, s.JobsRelevant, s.JobsSelected)

	for _, j := range s.Selected {
		fmt.Fprintf(w, "    [%d] %s\n", j.Score, utils.Cap(j.Title, 60))
	}

	switch s.NotifyOutcome {
	case NotifySent:
		fmt.Fprintf(w, "  Digest sent with %d jobs\n", s.JobsSelected)
	case NotifyFailed:
		fmt.Fprintf(w, "  Digest FAILED: %s\n", s.NotifyError)
	case NotifyNoNewJobs:
		fmt.Fprintln(w, "  No new relevant jobs")
	case NotifySkipped:
		fmt.Fprintf(w, "  Digest not sent (%d jobs kept)\n", s.JobsSelected)
	}
}

// PrintSample writes the first n selected jobs with a proposal preview.
func (s *Summary) PrintSample(w io.Writer, n int) {
	if n > len(s.Selected) {
		n = len(s.Selected)
	}
	for _, j := range s.Selected[:n] {
		fmt.Fprintf(w, "\n  Title: %s\n  Score: %d\n  Budget: %s\n  URL: %s\n  Proposal (%s): %s\n",
			j.Title, j.Score, j.Budget, j.URL, j.ProposalSource,
			strings.ReplaceAll(utils.TruncateForLog(j.Proposal, 200), "\n", " "))
	}
}
