// Package budget pulls a free-text budget out of a posting description.
package budget

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

// Patterns are tried in order; a range must win over a bare amount inside it.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\$[\d,]+\s*-\s*\$[\d,]+`),
	regexp.MustCompile(`\$[\d,]+\.?\d*`),
	regexp.MustCompile(`Budget:\s*\$?[\d,]+`),
	regexp.MustCompile(`[\d,]+\s*(?:USD|usd)`),
}

var digits = regexp.MustCompile(`\d+`)

// Extract returns the first budget-looking fragment of text or jobs.NotSpecified.
func Extract(text string) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return jobs.NotSpecified
}

// MaxAmount returns the largest whole number found in a budget string.
// Thousands separators are ignored, so "$1,500" yields 1500.
func MaxAmount(budget string) (int, bool) {
	if budget == "" || budget == jobs.NotSpecified {
		return 0, false
	}

	found := false
	max := 0
	for _, group := range digits.FindAllString(strings.ReplaceAll(budget, ",", ""), -1) {
		n, err := strconv.Atoi(group)
		if err != nil {
			continue
		}
		if !found || n > max {
			max = n
			found = true
		}
	}
	return max, found
}
