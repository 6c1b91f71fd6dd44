// Package filtering narrows a batch of jobs through ordered steps: in-batch
// dedup, the seen-set check, the score gate and ranking.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/store"
)

// Selection defaults.
const (
	DefaultMinScore = 40
	DefaultMaxJobs  = 15
)

// Filter represents a single filtering step applied to jobs.
type Filter interface {
	Name() string
	Apply(ctx context.Context, deps Deps, j *jobs.Jobs) (*jobs.Jobs, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Store  store.SeenStore
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Result is the outcome of Run: the surviving jobs and per-step counts.
type Result struct {
	Jobs  *jobs.Jobs
	Steps map[string]Step
}

// Run executes the supplied filters sequentially. The first failing step stops the run.
func Run(ctx context.Context, deps Deps, steps []Filter, j *jobs.Jobs) (*Result, error) {
	if j == nil {
		j = &jobs.Jobs{}
	}

	res := &Result{Steps: make(map[string]Step, len(steps))}
	for _, step := range steps {
		next, info, err := step.Apply(ctx, deps, j)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		res.Steps[step.Name()] = info
		j = next
	}

	res.Jobs = j
	return res, nil
}

// Select applies the score gate and ranking to scored jobs: jobs under minScore
// are dropped, the rest sorted by score descending (ties keep input order) and
// cut to maxJobs. The input slice is not modified.
func Select(items []*jobs.Job, minScore, maxJobs int) []*jobs.Job {
	batch := &jobs.Jobs{Items: append([]*jobs.Job(nil), items...)}

	res, err := Run(context.Background(), Deps{}, []Filter{NewScoreGate(minScore), NewRank(maxJobs)}, batch)
	if err != nil {
		// gate and rank never fail
		return nil
	}
	return res.Jobs.Items
}
