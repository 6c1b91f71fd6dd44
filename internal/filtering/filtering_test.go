package filtering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

type fakeStore struct {
	seen map[string]bool
	err  error
}

func (s *fakeStore) Ping(context.Context) error { return s.err }

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[id], nil
}

func (s *fakeStore) Insert(_ context.Context, j *jobs.Job) (bool, error) {
	if s.seen[j.ID] {
		return false, nil
	}
	s.seen[j.ID] = true
	return true, nil
}

func (s *fakeStore) Recent(context.Context, int) ([]*jobs.Job, error) { return nil, nil }

func (s *fakeStore) Close() error { return nil }

func scored(pairs ...any) []*jobs.Job {
	out := make([]*jobs.Job, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, &jobs.Job{ID: pairs[i].(string), Score: pairs[i+1].(int)})
	}
	return out
}

func ids(items []*jobs.Job) []string {
	out := make([]string, 0, len(items))
	for _, j := range items {
		out = append(out, j.ID)
	}
	return out
}

func TestSelectGatesSortsAndTruncates(t *testing.T) {
	in := scored("a", 39, "b", 40, "c", 90, "d", 70, "e", 100)

	got := Select(in, DefaultMinScore, 3)

	assert.Equal(t, []string{"e", "c", "d"}, ids(got))
	for _, j := range got {
		assert.GreaterOrEqual(t, j.Score, DefaultMinScore)
	}
	assert.Len(t, in, 5, "input must not be modified")
	assert.Equal(t, "a", in[0].ID)
}

func TestSelectStableTies(t *testing.T) {
	in := scored("first", 60, "second", 80, "third", 60, "fourth", 80)

	got := Select(in, DefaultMinScore, 10)

	assert.Equal(t, []string{"second", "fourth", "first", "third"}, ids(got))
}

func TestSelectEmpty(t *testing.T) {
	assert.Empty(t, Select(nil, DefaultMinScore, DefaultMaxJobs))
	assert.Empty(t, Select(scored("a", 10), DefaultMinScore, DefaultMaxJobs))
}

func TestSelectProperties(t *testing.T) {
	var in []*jobs.Job
	for i := 0; i < 50; i++ {
		in = append(in, &jobs.Job{ID: string(rune('A' + i)), Score: (i * 37) % 101})
	}

	got := Select(in, DefaultMinScore, DefaultMaxJobs)

	require.LessOrEqual(t, len(got), DefaultMaxJobs)
	for i, j := range got {
		assert.GreaterOrEqual(t, j.Score, DefaultMinScore)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].Score, j.Score)
		}
	}
}

func TestRunDedupAndSeen(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	st := &fakeStore{seen: map[string]bool{"old": true}}

	batch := &jobs.Jobs{Items: []*jobs.Job{
		{ID: "x", Title: "first x"},
		{ID: "old"},
		{ID: "x", Title: "second x"},
		{ID: "y"},
	}}

	res, err := Run(context.Background(), Deps{Store: st, Logger: zap.New(core)}, []Filter{NewBatchDedup(), NewSeen()}, batch)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, res.Jobs.IDs())
	assert.Equal(t, "first x", res.Jobs.Items[0].Title)
	assert.Equal(t, Step{Initial: 4, Dropped: 1, Left: 3}, res.Steps["batch_dedup"])
	assert.Equal(t, Step{Initial: 3, Dropped: 1, Left: 2}, res.Steps["seen"])

	entries := logs.FilterMessage("filter step").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "batch_dedup", entries[0].ContextMap()["name"])
}

func TestRunSeenStoreFailure(t *testing.T) {
	boom := errors.New("disk gone")
	st := &fakeStore{err: boom}

	_, err := Run(context.Background(), Deps{Store: st}, []Filter{NewSeen()}, &jobs.Jobs{Items: scored("a", 1)})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "seen")
}

func TestSeenRequiresStore(t *testing.T) {
	_, err := Run(context.Background(), Deps{}, []Filter{NewSeen()}, &jobs.Jobs{})
	assert.Error(t, err)
}

func TestRankWithoutLimit(t *testing.T) {
	res, err := Run(context.Background(), Deps{}, []Filter{NewRank(0)}, &jobs.Jobs{Items: scored("a", 1, "b", 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, res.Jobs.IDs())
}
