package filtering

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

type batchDedupFilter struct{}

// NewBatchDedup creates a filter that keeps only the first occurrence of every id in a batch.
func NewBatchDedup() Filter {
	return &batchDedupFilter{}
}

func (f *batchDedupFilter) Name() string { return "batch_dedup" }

func (f *batchDedupFilter) Apply(_ context.Context, deps Deps, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	seen := make(map[string]bool, initial)
	excluded := j.Exclude(func(job *jobs.Job) bool {
		if seen[job.ID] {
			return true
		}
		seen[job.ID] = true
		return false
	})

	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding duplicates within the batch",
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", j.Len()),
		)
	}

	return j, Step{Initial: initial, Dropped: len(excluded), Left: j.Len()}, nil
}

type seenFilter struct{}

// NewSeen creates a filter that removes jobs already recorded in the seen-set.
// Store failures are returned unchanged so the caller can treat them as fatal.
func NewSeen() Filter {
	return &seenFilter{}
}

func (f *seenFilter) Name() string { return "seen" }

func (f *seenFilter) Apply(ctx context.Context, deps Deps, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	if deps.Store == nil {
		return j, Step{}, errors.New("seen store is required")
	}

	var lookupErr error
	excluded := j.Exclude(func(job *jobs.Job) bool {
		if lookupErr != nil {
			return false
		}
		ok, err := deps.Store.Exists(ctx, job.ID)
		if err != nil {
			lookupErr = err
			return false
		}
		return ok
	})
	if lookupErr != nil {
		return j, Step{}, lookupErr
	}

	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding already seen jobs",
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", j.Len()),
		)
	}

	return j, Step{Initial: initial, Dropped: len(excluded), Left: j.Len()}, nil
}

type scoreGateFilter struct {
	min int
}

// NewScoreGate creates a filter that drops jobs scoring below min.
func NewScoreGate(min int) Filter {
	return &scoreGateFilter{min: min}
}

func (f *scoreGateFilter) Name() string { return "score_gate" }

func (f *scoreGateFilter) Apply(_ context.Context, deps Deps, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	excluded := j.Exclude(func(job *jobs.Job) bool { return job.Score < f.min })

	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding jobs under the score gate",
			zap.Int("min_score", f.min),
			zap.Strings("excluded_jobs", excluded),
		)
	}

	return j, Step{Initial: initial, Dropped: len(excluded), Left: j.Len()}, nil
}

type rankFilter struct {
	max int
}

// NewRank creates a step that orders jobs by score, highest first, and keeps at most max.
// A non-positive max keeps everything.
func NewRank(max int) Filter {
	return &rankFilter{max: max}
}

func (f *rankFilter) Name() string { return "rank" }

func (f *rankFilter) Apply(_ context.Context, _ Deps, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	sort.SliceStable(j.Items, func(a, b int) bool {
		return j.Items[a].Score > j.Items[b].Score
	})

	if f.max > 0 && j.Len() > f.max {
		j.Items = j.Items[:f.max]
	}

	return j, Step{Initial: initial, Dropped: initial - j.Len(), Left: j.Len()}, nil
}
