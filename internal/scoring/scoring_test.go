package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/freelance-pipeline/internal/budget"
	"github.com/spigell/freelance-pipeline/internal/jobs"
)

func description(n int, extra string) string {
	pad := n - len(extra)
	if pad < 0 {
		pad = 0
	}
	return extra + strings.Repeat("x", pad)
}

func TestScorePythonScraperExample(t *testing.T) {
	desc := description(250, "Budget: $600 ")
	require.Len(t, desc, 250)

	job := &jobs.Job{
		Title:       "Need a Python scraper",
		Description: desc,
		Budget:      budget.Extract(desc),
	}
	cfg := Config{Positive: []string{"python", "scraper"}, MinBudget: 100}.Normalize()

	assert.Equal(t, 95, Score(job, cfg))
}

func TestScoreRules(t *testing.T) {
	t.Parallel()

	long := description(150, "")

	tests := []struct {
		name string
		job  jobs.Job
		cfg  Config
		want int
	}{
		{
			name: "base only",
			job:  jobs.Job{Title: "Something", Description: long, Budget: jobs.NotSpecified},
			want: 50,
		},
		{
			name: "description match",
			job:  jobs.Job{Title: "Something", Description: "golang " + long, Budget: jobs.NotSpecified},
			cfg:  Config{Positive: []string{"Golang"}},
			want: 55,
		},
		{
			name: "title match short-circuits description match",
			job:  jobs.Job{Title: "Golang dev", Description: "golang " + long, Budget: jobs.NotSpecified},
			cfg:  Config{Positive: []string{"golang"}},
			want: 65,
		},
		{
			name: "negative keyword",
			job:  jobs.Job{Title: "Unpaid trial", Description: long, Budget: jobs.NotSpecified},
			cfg:  Config{Negative: []string{"unpaid"}},
			want: 20,
		},
		{
			name: "budget under minimum above 500",
			job:  jobs.Job{Title: "Something", Description: long, Budget: "$600"},
			cfg:  Config{MinBudget: 1000},
			want: 55,
		},
		{
			name: "budget at minimum",
			job:  jobs.Job{Title: "Something", Description: long, Budget: "$100 - $200"},
			cfg:  Config{MinBudget: 200},
			want: 60,
		},
		{
			name: "short description penalty",
			job:  jobs.Job{Title: "Something", Description: "tiny", Budget: jobs.NotSpecified},
			want: 35,
		},
		{
			name: "clamped at zero",
			job:  jobs.Job{Title: "spam", Description: "spam scam", Budget: jobs.NotSpecified},
			cfg:  Config{Negative: []string{"spam", "scam"}},
			want: 0,
		},
		{
			name: "clamped at hundred",
			job:  jobs.Job{Title: "go python rust java", Description: long, Budget: "$5000"},
			cfg:  Config{Positive: []string{"go", "python", "rust", "java"}},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := tt.job
			assert.Equal(t, tt.want, Score(&job, tt.cfg.Normalize()))
		})
	}
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	titles := []string{"", "python", "python scraper bot", "unpaid spam"}
	descs := []string{"", "short", description(300, "python scraper $900 ")}
	budgets := []string{jobs.NotSpecified, "$10", "$100 - $9,000"}
	cfgs := []Config{
		{},
		{Positive: []string{"python", "scraper", "bot", "api", "data"}, MinBudget: 1},
		{Negative: []string{"unpaid", "spam", "short", "x"}, MinBudget: 100000},
	}

	for _, title := range titles {
		for _, desc := range descs {
			for _, b := range budgets {
				for _, cfg := range cfgs {
					got := Score(&jobs.Job{Title: title, Description: desc, Budget: b}, cfg.Normalize())
					assert.GreaterOrEqual(t, got, MinScore)
					assert.LessOrEqual(t, got, MaxScore)
				}
			}
		}
	}
}

func TestScoreMonotonicity(t *testing.T) {
	t.Parallel()

	cfg := Config{Positive: []string{"python"}, Negative: []string{"unpaid"}}.Normalize()
	desc := description(120, "")

	plain := Score(&jobs.Job{Title: "Need help", Description: desc, Budget: jobs.NotSpecified}, cfg)
	positive := Score(&jobs.Job{Title: "Need python help", Description: desc, Budget: jobs.NotSpecified}, cfg)
	negative := Score(&jobs.Job{Title: "Need unpaid help", Description: desc, Budget: jobs.NotSpecified}, cfg)

	assert.GreaterOrEqual(t, positive, plain)
	assert.LessOrEqual(t, negative, plain)
}

func TestNormalize(t *testing.T) {
	cfg := Config{Positive: []string{" Python ", "python", "", "API"}, Negative: []string{"  "}, MinBudget: 5}.Normalize()

	assert.Equal(t, []string{"python", "api"}, cfg.Positive)
	assert.Empty(t, cfg.Negative)
	assert.Equal(t, 5, cfg.MinBudget)
}
