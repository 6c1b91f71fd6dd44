package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/logger"
)

// Proposal sources recorded on jobs.
const (
	SourcePrimary     = "primary"
	SourceTemplate    = "template"
	SourcePlaceholder = "placeholder"
)

const DefaultTimeout = 60 * time.Second

// CapabilityError is a failure of the primary capability. It only triggers the fallback.
type CapabilityError struct {
	Provider string
	Cause    error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("proposal capability %s: %v", e.Provider, e.Cause)
}

func (e *CapabilityError) Unwrap() error {
	return e.Cause
}

var errEmptyProposal = errors.New("empty proposal text")

// Result is a generated proposal and where it came from.
type Result struct {
	Text   string
	Source string
}

// Orchestrator tries the primary generator and falls back to the template.
type Orchestrator struct {
	primary  ai.Generator
	fallback ai.Generator
	profile  ai.Profile
	timeout  time.Duration
	logger   *zap.Logger
}

// NewOrchestrator builds an orchestrator. primary may be nil when no capability is configured.
func NewOrchestrator(primary ai.Generator, profile ai.Profile, timeout time.Duration, log *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		primary:  primary,
		fallback: NewTemplate(),
		profile:  profile.WithDefaults(),
		timeout:  timeout,
		logger:   logger.WithFields(log),
	}
}

// Generate always returns non-empty text.
func (o *Orchestrator) Generate(ctx context.Context, job *jobs.Job) Result {
	log := logger.WithFields(o.logger, logger.JobFields(job.ID, job.Title)...)

	if o.primary != nil {
		text, err := o.callPrimary(ctx, job)
		if err == nil {
			return Result{Text: text, Source: SourcePrimary}
		}
		log.Warn("primary proposal capability failed, using template", zap.Error(err))
	}

	if text, err := o.fallback.Generate(ctx, job, o.profile); err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: text, Source: SourceTemplate}
	}

	log.Warn("template produced no text, using placeholder")
	return Result{Text: Placeholder(job), Source: SourcePlaceholder}
}

// Apply fills Proposal and ProposalSource on every job.
func (o *Orchestrator) Apply(ctx context.Context, items []*jobs.Job) map[string]int {
	counts := make(map[string]int)
	for _, job := range items {
		res := o.Generate(ctx, job)
		job.Proposal = res.Text
		job.ProposalSource = res.Source
		counts[res.Source]++
	}
	return counts
}

func (o *Orchestrator) callPrimary(ctx context.Context, job *jobs.Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.primary.Generate(ctx, job, o.profile)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyProposal
	}
	if err != nil {
		return "", &CapabilityError{Provider: o.primary.Name(), Cause: err}
	}
	return strings.TrimSpace(text), nil
}

// Placeholder is the last-resort proposal pointing the reviewer at the job.
func Placeholder(job *jobs.Job) string {
	return fmt.Sprintf("[Auto-proposal unavailable: review job manually]\n\nJob: %s\nURL: %s", job.Title, job.URL)
}
