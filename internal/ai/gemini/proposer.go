package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/logger"
	"github.com/spigell/freelance-pipeline/internal/utils"
)

// ProviderName identifies proposals written by Gemini.
const ProviderName = "gemini"

const (
	systemInstruction = "You write concise freelance job proposals in plain text on behalf of the freelancer described in the message."

	defaultMaxLogLength = 200
	// the model only needs the gist of a long posting
	maxPromptDescription = 800
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Proposer writes proposals through Gemini. It implements ai.Generator.
type Proposer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Generator = (*Proposer)(nil)

func NewProposer(generator contentGenerator, maxLogLength int, log *zap.Logger) *Proposer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Proposer{
		generator: generator,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

func (p *Proposer) Name() string { return ProviderName }

func (p *Proposer) Generate(ctx context.Context, job *jobs.Job, profile ai.Profile) (string, error) {
	if job == nil {
		return "", errors.New("job is required")
	}
	if p.generator == nil {
		return "", errors.New("gemini generator is not configured")
	}

	prompt := buildPrompt(job, profile.WithDefaults())
	log := logger.WithFields(p.logger, logger.JobFields(job.ID, job.Title)...)

	log.Debug("gemini generate content request",
		zap.String(logger.FieldModel, p.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, p.maxLogLen)),
	)

	raw, err := p.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return "", err
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
	)

	text := cleanResponse(raw)
	if text == "" {
		return "", errors.New("gemini returned an empty proposal")
	}
	return text, nil
}

func buildPrompt(job *jobs.Job, profile ai.Profile) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job: {{TITLE}}\n{{DESCRIPTION}}\n\nFreelancer: {{NAME}} ({{SKILLS}})\n\nProposal:"
	}

	budget := strings.TrimSpace(job.Budget)
	if budget == "" {
		budget = jobs.NotSpecified
	}

	r := strings.NewReplacer(
		"{{TITLE}}", singleLine(job.Title),
		"{{BUDGET}}", singleLine(budget),
		"{{DESCRIPTION}}", utils.Cap(strings.TrimSpace(job.Description), maxPromptDescription),
		"{{NAME}}", singleLine(profile.Name),
		"{{SKILLS}}", singleLine(profile.SkillList()),
		"{{EXPERIENCE}}", singleLine(profile.ExperienceSummary),
	)
	return r.Replace(template)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanResponse drops code fences the model sometimes wraps plain text in.
func cleanResponse(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx != -1 {
			raw = raw[idx+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
