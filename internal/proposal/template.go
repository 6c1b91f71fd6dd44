// Package proposal produces proposal text for selected jobs: an optional
// primary capability first, then a local template that cannot fail.
package proposal

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/jobs"
)

// Category selects the template used for a job.
type Category string

const (
	CategoryScraping   Category = "scraping"
	CategoryAutomation Category = "automation"
	CategoryData       Category = "data"
	CategoryWeb        Category = "web"
	CategoryAPI        Category = "api"
	CategoryGeneral    Category = "general"
)

type rule struct {
	category Category
	terms    []string
}

// rules are evaluated top to bottom; the first match wins.
var rules = []rule{
	{category: CategoryScraping, terms: []string{"scraping", "scrape", "crawl", "extract data"}},
	{category: CategoryAutomation, terms: []string{"automat", "script", "bot"}},
	{category: CategoryData, terms: []string{"data", "csv", "json", "clean", "process", "excel"}},
	{category: CategoryWeb, terms: []string{"website", "landing page", "web app", "frontend"}},
	{category: CategoryAPI, terms: []string{"api", "integration", "connect"}},
}

func (r rule) matches(text string) bool {
	for _, term := range r.terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Categorize picks the template category from the job's title and description.
func Categorize(job *jobs.Job) Category {
	if job == nil {
		return CategoryGeneral
	}
	text := job.Text()
	for _, r := range rules {
		if r.matches(text) {
			return r.category
		}
	}
	return CategoryGeneral
}

//go:embed templates/*.txt
var templateFS embed.FS

const nameToken = "{{NAME}}"

// Template writes proposals from fixed per-category texts. It never fails.
type Template struct {
	texts map[Category]string
}

var _ ai.Generator = (*Template)(nil)

func NewTemplate() *Template {
	texts := make(map[Category]string, len(rules)+1)
	for _, c := range []Category{CategoryScraping, CategoryAutomation, CategoryData, CategoryWeb, CategoryAPI, CategoryGeneral} {
		b, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", c))
		if err != nil {
			panic(fmt.Sprintf("proposal template %s: %v", c, err))
		}
		texts[c] = strings.TrimSpace(string(b))
	}
	return &Template{texts: texts}
}

func (t *Template) Name() string { return SourceTemplate }

func (t *Template) Generate(_ context.Context, job *jobs.Job, profile ai.Profile) (string, error) {
	text, ok := t.texts[Categorize(job)]
	if !ok {
		text = t.texts[CategoryGeneral]
	}
	return strings.ReplaceAll(text, nameToken, profile.WithDefaults().Name), nil
}
