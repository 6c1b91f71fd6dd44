package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/ai"
	"github.com/spigell/freelance-pipeline/internal/ai/gemini"
	"github.com/spigell/freelance-pipeline/internal/config"
	"github.com/spigell/freelance-pipeline/internal/feed"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/logger"
	"github.com/spigell/freelance-pipeline/internal/notify"
	"github.com/spigell/freelance-pipeline/internal/pipeline"
	"github.com/spigell/freelance-pipeline/internal/proposal"
	"github.com/spigell/freelance-pipeline/internal/store"
)

const (
	PromptSend           = "Send digest"
	PromptSkip           = "Skip"
	PromptReportBySource = "Report by source"
	PromptJobsToFile     = "Dump jobs to file"

	testModeSample = 3
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass of the pipeline",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("test", "t", false, "run and persist everything but do not send the digest")
	runCmd.Flags().BoolP("auto-approve", "y", false, "send the digest without asking for confirmation")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	testMode, _ := cmd.Flags().GetBool("test")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	logger.Info("starting the freelance-pipeline",
		zap.String("version", version),
		zap.Int("feeds", len(config.Feeds)),
		zap.Bool("test_mode", testMode),
	)

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(*config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	lock, err := store.AcquireRunLock(lockPath(config))
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			logger.Fatal("exiting", zap.String("reason", "another run is in progress"), zap.Error(err))
		}
		logger.Fatal("acquiring the run lock", zap.Error(err))
	}
	defer lock.Release()

	seen, err := store.Open(ctx, storeOptions(config))
	if err != nil {
		logger.Fatal("opening the job store", zap.Error(err))
	}
	defer seen.Close()

	var primary ai.Generator
	if config.AI.Enabled {
		primary, err = newProposer(ctx, config, logger)
		if err != nil {
			logger.Warn("falling back to template proposals", zap.Error(err))
			primary = nil
		}
	}

	var notifier notify.Notifier
	if !testMode {
		notifier, err = newNotifier(config)
		if err != nil {
			logger.Fatal("building the notifier", zap.Error(err))
		}
		if notifier != nil && !autoApprove {
			notifier = notify.WithConfirmation(notifier, confirmDigest(logger))
		}
	}

	ingestor := feed.New(feed.Options{
		UserAgent:   config.Fetch.UserAgent,
		Timeout:     config.Fetch.Timeout,
		RatePerHost: config.Fetch.RatePerHost,
		Burst:       config.Fetch.Burst,
	}, logger)

	coordinator := pipeline.New(pipeline.Config{
		Feeds:       config.Feeds,
		Scoring:     config.Scoring(),
		MinScore:    config.MinScore,
		MaxJobs:     config.MaxJobsPerDigest,
		Concurrency: config.Fetch.Concurrency,
		TestMode:    testMode,
	}, pipeline.Deps{
		Fetcher:   ingestor,
		Store:     seen,
		Proposals: proposal.NewOrchestrator(primary, config.Profile, config.AI.Timeout, logger),
		Notifier:  notifier,
		Logger:    logger,
	})

	summary, err := coordinator.Run(ctx)
	summary.Print(os.Stdout)
	if testMode {
		summary.PrintSample(os.Stdout, testModeSample)
	}

	if err != nil {
		logger.Fatal("run aborted", append(summary.Fields(), zap.Error(err))...)
	}
}

func newProposer(ctx context.Context, cfg *config.Config, log *zap.Logger) (ai.Generator, error) {
	apiKey, err := cfg.GeminiAPIKey()
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or %s)", err, config.EnvGeminiAPIKey)
	}

	g := cfg.AI.Gemini
	genLogger := log.With(logger.ProviderFields(gemini.ProviderName, g.Model)...).
		With(zap.Int("ai_retry_attempts", g.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, g.Model, g.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewProposer(generator, g.MaxLogLength, genLogger), nil
}

// newNotifier returns nil when notifications are disabled.
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	switch cfg.Notify.Kind {
	case notify.KindTelegram:
		token, err := cfg.TelegramToken()
		if err != nil {
			return nil, fmt.Errorf("%w (set notify.telegram.token-file or %s)", err, config.EnvTelegramToken)
		}
		tg, err := notify.NewTelegram(token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		return tg, nil
	case notify.KindFile:
		return notify.NewFile(cfg.Notify.File.Path), nil
	default:
		return nil, nil
	}
}

// confirmDigest asks the reviewer before a digest goes out.
func confirmDigest(logger *zap.Logger) notify.ConfirmFunc {
	return func(d notify.Digest) (bool, error) {
		selected := &jobs.Jobs{Items: d.Jobs}
		prompt := promptui.Select{
			Label: fmt.Sprintf("%s. Send?", d.Subject()),
			Items: []string{PromptSend, PromptSkip, PromptReportBySource, PromptJobsToFile},
		}

		for {
			_, action, err := prompt.Run()
			if err != nil {
				return false, err
			}

			switch action {
			case PromptSend:
				return true, nil
			case PromptSkip:
				logger.Info("digest skipped", zap.String("reason", "got skip from prompt"))
				return false, nil
			case PromptReportBySource:
				report, err := json.MarshalIndent(selected.ReportBySource(), "", "  ")
				if err != nil {
					return false, err
				}
				fmt.Println(string(report))
			case PromptJobsToFile:
				path, err := selected.DumpToTmpFile()
				if err != nil {
					return false, fmt.Errorf("dump jobs: %w", err)
				}
				logger.Info("jobs dumped to file", zap.String("path", path), zap.Int("count", selected.Len()))
			}
		}
	}
}

// lockPath keeps the lock next to the sqlite file; a postgres store is
// shared, so the lock only guards runs on this host.
func lockPath(cfg *config.Config) string {
	if cfg.Store.Driver == store.DriverPostgres {
		return filepath.Join(os.TempDir(), app)
	}
	return cfg.Store.Path
}

func redacted(cfg config.Config) config.Config {
	if cfg.AI.Gemini.APIKey != "" {
		cfg.AI.Gemini.APIKey = "***"
	}
	if cfg.Notify.Telegram.Token != "" {
		cfg.Notify.Telegram.Token = "***"
	}
	if cfg.Store.DSN != "" {
		cfg.Store.DSN = "***"
	}
	return cfg
}
