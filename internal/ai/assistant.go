// Package ai defines the optional proposal-writing capability.
package ai

import (
	"context"
	"strings"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

// Profile describes the freelancer a proposal is written for.
type Profile struct {
	Name              string   `mapstructure:"name" yaml:"name"`
	Skills            []string `mapstructure:"skills" yaml:"skills"`
	ExperienceSummary string   `mapstructure:"experience_summary" yaml:"experience_summary"`
}

const (
	DefaultProfileName = "Nate"
	DefaultExperience  = "Python developer specializing in automation and data processing."
)

var defaultSkills = []string{"Python", "Automation"}

// WithDefaults fills empty profile fields.
func (p Profile) WithDefaults() Profile {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultProfileName
	}
	if len(p.Skills) == 0 {
		p.Skills = append([]string(nil), defaultSkills...)
	}
	if strings.TrimSpace(p.ExperienceSummary) == "" {
		p.ExperienceSummary = DefaultExperience
	}
	return p
}

// SkillList joins skills for prompts and templates.
func (p Profile) SkillList() string {
	return strings.Join(p.Skills, ", ")
}

// Generator writes proposal text for a job. Any error, or empty text, means the
// capability is unavailable for that job.
type Generator interface {
	Name() string
	Generate(ctx context.Context, job *jobs.Job, profile Profile) (string, error)
}
