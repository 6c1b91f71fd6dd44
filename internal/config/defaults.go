package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/feed"
	"github.com/spigell/freelance-pipeline/internal/filtering"
	"github.com/spigell/freelance-pipeline/internal/notify"
	"github.com/spigell/freelance-pipeline/internal/proposal"
	"github.com/spigell/freelance-pipeline/internal/store"
)

// ErrExists is returned by WriteDefault when the target file is already present.
var ErrExists = errors.New("config file already exists")

var comments = map[string]string{
	"feeds":               "RSS/Atom feeds to scan. A bare URL or {url, source, timeout}.",
	"keywords":            "Title matches weigh more than description matches. Negative matches cost 30 points.",
	"min_budget":          "Jobs whose largest budget figure reaches this get a bonus.",
	"min_score":           "Jobs scoring below this are dropped.",
	"max_jobs_per_digest": "Upper bound on jobs per digest.",
	"store":               "Seen-set. FREELANCE_PIPELINE_DB overrides store.path.",
	"ai":                  "Optional Gemini proposals. GEMINI_API_KEY is read when no key is configured.",
	"notify":              "none, telegram (TELEGRAM_BOT_TOKEN) or file.",
}

// Default returns the configuration written by `init`.
func Default() Config {
	return Config{
		Feeds: []feed.Source{
			{URL: "https://www.upwork.com/ab/feed/jobs/rss?q=python+scraping", Source: "upwork"},
		},
		Keywords: Keywords{
			Positive: []string{"python", "scraper", "automation", "data"},
			Negative: []string{"wordpress", "unpaid"},
		},
		MinBudget:        100,
		MinScore:         filtering.DefaultMinScore,
		MaxJobsPerDigest: filtering.DefaultMaxJobs,
		Fetch: FetchConfig{
			Concurrency: 4,
			Timeout:     feed.DefaultTimeout,
			RatePerHost: 1,
			Burst:       2,
		},
		Store: StoreConfig{Driver: store.DriverSQLite, Path: store.DefaultPath},
		Profile: ai.Profile{
			Name:              ai.DefaultProfileName,
			Skills:            []string{"Python", "Automation"},
			ExperienceSummary: ai.DefaultExperience,
		},
		AI: AIConfig{
			Provider: "gemini",
			Timeout:  proposal.DefaultTimeout,
			Gemini:   GeminiConfig{Model: "gemini-2.0-flash", MaxRetries: 3, MaxLogLength: 200},
		},
		Notify: NotifyConfig{Kind: notify.KindNone},
	}
}

// MarshalDefault renders Default as commented YAML.
func MarshalDefault() ([]byte, error) {
	cfg := Default()

	var doc yaml.Node
	if err := doc.Encode(&cfg); err != nil {
		return nil, err
	}
	annotate(&doc, 0)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// annotate adds comments to top-level keys and renders durations readably.
func annotate(n *yaml.Node, depth int) {
	if n.Kind == yaml.DocumentNode {
		for _, c := range n.Content {
			annotate(c, depth)
		}
		return
	}
	if n.Kind != yaml.MappingNode {
		for _, c := range n.Content {
			annotate(c, depth+1)
		}
		return
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if depth == 0 {
			key.HeadComment = comments[key.Value]
		}
		if key.Value == "timeout" && val.Kind == yaml.ScalarNode && val.ShortTag() == "!!int" {
			if ns, err := strconv.ParseInt(val.Value, 10, 64); err == nil {
				val.Value = time.Duration(ns).String()
				val.Tag = "!!str"
			}
		}
		annotate(val, depth+1)
	}
}

// WriteDefault writes the default configuration to path, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := MarshalDefault()
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
