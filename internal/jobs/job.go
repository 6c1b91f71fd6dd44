package jobs

import (
	"strings"
	"time"
)

const (
	// NotSpecified is the budget sentinel for postings without a recognisable amount.
	NotSpecified = "Not specified"
	// DefaultTitle replaces an empty entry title.
	DefaultTitle = "Untitled"
	// DefaultSource tags jobs from feeds that carry no explicit source.
	DefaultSource = "rss"
	// MaxDescriptionLength bounds the cleaned description, in characters.
	MaxDescriptionLength = 2000
)

// Job is a single posting moving through the pipeline.
// Score is meaningful once scored; Proposal once generated; FoundAt once persisted.
type Job struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Budget         string    `json:"budget"`
	Source         string    `json:"source"`
	Score          int       `json:"score"`
	Proposal       string    `json:"proposal,omitempty"`
	ProposalSource string    `json:"proposal_source,omitempty"`
	FoundAt        time.Time `json:"found_at,omitzero"`
}

// Text returns the lowercased title and description joined by a space.
func (j *Job) Text() string {
	return strings.ToLower(j.Title + " " + j.Description)
}

// HasBudget reports whether a budget was extracted for the job.
func (j *Job) HasBudget() bool {
	b := strings.TrimSpace(j.Budget)
	return b != "" && b != NotSpecified
}
