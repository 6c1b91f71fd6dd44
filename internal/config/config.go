// Package config loads the pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/feed"
	"github.com/spigell/freelance-pipeline/internal/filtering"
	"github.com/spigell/freelance-pipeline/internal/notify"
	"github.com/spigell/freelance-pipeline/internal/proposal"
	"github.com/spigell/freelance-pipeline/internal/scoring"
	"github.com/spigell/freelance-pipeline/internal/store"
)

// Environment variables consulted on top of the config file.
const (
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvDatabasePath  = "FREELANCE_PIPELINE_DB"
)

// Config is the whole pipeline configuration. It is built once and passed explicitly.
type Config struct {
	Feeds            []feed.Source `mapstructure:"feeds" yaml:"feeds" validate:"min=1,dive"`
	Keywords         Keywords      `mapstructure:"keywords" yaml:"keywords"`
	MinBudget        int           `mapstructure:"min_budget" yaml:"min_budget" validate:"gte=0"`
	MinScore         int           `mapstructure:"min_score" yaml:"min_score" validate:"gte=0,lte=100"`
	MaxJobsPerDigest int           `mapstructure:"max_jobs_per_digest" yaml:"max_jobs_per_digest" validate:"gte=1"`
	Fetch            FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	Store            StoreConfig   `mapstructure:"store" yaml:"store"`
	Profile          ai.Profile    `mapstructure:"profile" yaml:"profile"`
	AI               AIConfig      `mapstructure:"ai" yaml:"ai"`
	Notify           NotifyConfig  `mapstructure:"notify" yaml:"notify"`
}

type Keywords struct {
	Positive []string `mapstructure:"positive" yaml:"positive"`
	Negative []string `mapstructure:"negative" yaml:"negative"`
}

type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1,lte=64"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	RatePerHost float64       `mapstructure:"rate_per_host" yaml:"rate_per_host" validate:"gte=0"`
	Burst       int           `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	Gemini   GeminiConfig  `mapstructure:"gemini" yaml:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key" yaml:"api-key,omitempty"`
	APIKeyFile   string `mapstructure:"api-key-file" yaml:"api-key-file,omitempty"`
	Model        string `mapstructure:"model" yaml:"model"`
	MaxRetries   int    `mapstructure:"max-retries" yaml:"max-retries" validate:"gte=0"`
	MaxLogLength int    `mapstructure:"max-log-length" yaml:"max-log-length" validate:"gte=0"`
}

type NotifyConfig struct {
	Kind     string         `mapstructure:"kind" yaml:"kind" validate:"oneof=none telegram file"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	File     FileConfig     `mapstructure:"file" yaml:"file"`
}

type TelegramConfig struct {
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
	TokenFile string `mapstructure:"token-file" yaml:"token-file,omitempty"`
	ChatID    int64  `mapstructure:"chat-id" yaml:"chat-id"`
}

type FileConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) error {
	v.SetDefault("min_budget", 0)
	v.SetDefault("min_score", filtering.DefaultMinScore)
	v.SetDefault("max_jobs_per_digest", filtering.DefaultMaxJobs)

	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.timeout", feed.DefaultTimeout)
	v.SetDefault("fetch.rate_per_host", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.user_agent", feed.DefaultUserAgent)

	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.path", store.DefaultPath)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.timeout", proposal.DefaultTimeout)
	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)

	v.SetDefault("notify.kind", notify.KindNone)

	return v.BindEnv("store.path", EnvDatabasePath)
}

// Load decodes the settings held by v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode converts raw settings into a Config without validating it.
// Feeds may be plain URL strings; keywords may be a flat list with
// negative_keywords beside it.
func Decode(settings map[string]any) (*Config, error) {
	settings = normalizeKeywords(settings)

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			feedSourceHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for i := range cfg.Feeds {
		cfg.Feeds[i].URL = strings.TrimSpace(cfg.Feeds[i].URL)
	}
	return &cfg, nil
}

// feedSourceHook lets a feed be written as a bare URL.
func feedSourceHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(feed.Source{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != target {
			return data, nil
		}
		return map[string]any{"url": data}, nil
	}
}

func normalizeKeywords(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		out[k] = v
	}

	switch kw := out["keywords"].(type) {
	case []any, []string:
		out["keywords"] = map[string]any{
			"positive": kw,
			"negative": out["negative_keywords"],
		}
	}
	delete(out, "negative_keywords")
	return out
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err)
		}
	}

	if c.Store.Driver == store.DriverPostgres && strings.TrimSpace(c.Store.DSN) == "" {
		problems = append(problems, errors.New("store.dsn is required for the postgres driver"))
	}
	if c.Store.Driver == store.DriverSQLite && strings.TrimSpace(c.Store.Path) == "" {
		problems = append(problems, errors.New("store.path is required for the sqlite driver"))
	}

	if c.AI.Enabled {
		if p := strings.ToLower(strings.TrimSpace(c.AI.Provider)); p != "" && p != "gemini" {
			problems = append(problems, fmt.Errorf("ai.provider %q is not supported", c.AI.Provider))
		}
	}

	if c.Notify.Kind == notify.KindTelegram && c.Notify.Telegram.ChatID == 0 {
		problems = append(problems, errors.New("notify.telegram.chat-id is required for telegram notifications"))
	}

	return errors.Join(problems...)
}

// Scoring returns the scoring inputs with keywords normalised.
func (c *Config) Scoring() scoring.Config {
	return scoring.Config{
		Positive:  c.Keywords.Positive,
		Negative:  c.Keywords.Negative,
		MinBudget: c.MinBudget,
	}.Normalize()
}
