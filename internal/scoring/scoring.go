// Package scoring computes the relevance score of a job.
package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/spigell/freelance-pipeline/internal/budget"
	"github.com/spigell/freelance-pipeline/internal/jobs"
)

const (
	BaseScore = 50

	TitleMatchBonus       = 15
	DescriptionMatchBonus = 5
	NegativeMatchPenalty  = 30
	MinBudgetBonus        = 10
	HighBudgetBonus       = 5
	ShortPostingPenalty   = 15

	// HighBudgetThreshold is independent from Config.MinBudget.
	HighBudgetThreshold = 500
	// ShortPostingLength is the description length, in characters, under which a posting is penalised.
	ShortPostingLength = 100

	MinScore = 0
	MaxScore = 100
)

// Config holds the keyword and budget inputs of the scoring function.
// It is treated as immutable for the duration of a run.
type Config struct {
	Positive  []string
	Negative  []string
	MinBudget int
}

// Normalize lowercases and trims keywords, dropping empty and repeated ones.
func (c Config) Normalize() Config {
	return Config{
		Positive:  normalizeKeywords(c.Positive),
		Negative:  normalizeKeywords(c.Negative),
		MinBudget: c.MinBudget,
	}
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// Score returns the relevance of job under cfg, clamped to [MinScore, MaxScore].
// cfg is expected to be normalized.
func Score(job *jobs.Job, cfg Config) int {
	title := strings.ToLower(job.Title)
	combined := job.Text()

	score := BaseScore

	for _, kw := range cfg.Positive {
		switch {
		case strings.Contains(title, kw):
			score += TitleMatchBonus
		case strings.Contains(combined, kw):
			score += DescriptionMatchBonus
		}
	}

	for _, kw := range cfg.Negative {
		if strings.Contains(combined, kw) {
			score -= NegativeMatchPenalty
		}
	}

	if job.HasBudget() {
		if amount, ok := budget.MaxAmount(job.Budget); ok {
			if amount >= cfg.MinBudget {
				score += MinBudgetBonus
			}
			if amount > HighBudgetThreshold {
				score += HighBudgetBonus
			}
		}
	}

	if utf8.RuneCountInString(job.Description) < ShortPostingLength {
		score -= ShortPostingPenalty
	}

	return clamp(score)
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
