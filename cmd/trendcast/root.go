package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"trendcast/internal/config"
	"trendcast/internal/ingest"
	"trendcast/internal/ledger"
	"trendcast/internal/logger"
	"trendcast/internal/notify"
	"trendcast/internal/pipeline"
	"trendcast/internal/server"
	"trendcast/internal/storage"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendcast",
		Short:         "Daily bilingual podcast generation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newGenerateCommand(), newIngestCommand())
	return root
}

// buildApp wires config, storage and the orchestrator for one process.
func buildApp() (*config.Config, *storage.Store, *pipeline.Orchestrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}

	steps := pipeline.NewStepClient(cfg.StepBaseURL, cfg.StepToken,
		cfg.StepTimeout, cfg.RetryAttempts, cfg.RetryBackoff, cfg.MaxStepCalls)
	orch := pipeline.New(cfg, steps, store, store, ledger.New(store))
	return cfg, store, orch, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, with an optional scheduled daily run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, orch, err := buildApp()
			if err != nil {
				return err
			}
			defer store.Close()

			notifier := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
			runner := &announcingRunner{orch: orch, notifier: notifier}

			if cfg.CronSchedule != "" {
				c := cron.New()
				if _, err := c.AddFunc(cfg.CronSchedule, func() {
					logger.Info("scheduled daily run triggered")
					outcome := runner.Run(context.Background(), pipeline.Request{})
					if !outcome.Ok {
						logger.Error("scheduled run failed", "error", outcome.Error)
					}
				}); err != nil {
					return fmt.Errorf("invalid cron schedule %q: %w", cfg.CronSchedule, err)
				}
				c.Start()
				defer c.Stop()
				logger.Info("cron schedule active", "schedule", cfg.CronSchedule)
			}

			router := server.NewRouter(runner, ledger.New(store))

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", "port", cfg.Port)
				errCh <- router.Run(":" + cfg.Port)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig.String())
				return nil
			}
		},
	}
}

func newGenerateCommand() *cobra.Command {
	var episodeDate, idempotencyKey string
	var skipTTS bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the daily generation pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, orch, err := buildApp()
			if err != nil {
				return err
			}
			defer store.Close()

			notifier := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
			runner := &announcingRunner{orch: orch, notifier: notifier}

			outcome := runner.Run(cmd.Context(), pipeline.Request{
				EpisodeDate:    episodeDate,
				IdempotencyKey: idempotencyKey,
				SkipTTS:        skipTTS,
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcome); err != nil {
				return err
			}
			if !outcome.Ok {
				return fmt.Errorf("run failed: %s", outcome.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&episodeDate, "date", "", "episode date (YYYY-MM-DD, default today in JST)")
	cmd.Flags().StringVar(&idempotencyKey, "key", "", "idempotency key (default episode date)")
	cmd.Flags().BoolVar(&skipTTS, "skip-tts", false, "skip audio synthesis steps")
	return cmd
}

func newIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch configured RSS sources into the trend-item store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := storage.Open(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			sources, err := ingest.LoadSources(cfg.SourcesConfigPath)
			if err != nil {
				return fmt.Errorf("load sources: %w", err)
			}

			stored, err := ingest.New(store, cfg.Selection.LookbackHours).Run(cmd.Context(), sources)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			logger.Info("ingestion complete", "stored", stored, "sources", len(sources))
			return nil
		},
	}
}

// announcingRunner runs the pipeline and fires the publication notice on
// success. Skipped runs announce nothing.
type announcingRunner struct {
	orch     *pipeline.Orchestrator
	notifier *notify.Notifier
}

func (r *announcingRunner) Run(ctx context.Context, req pipeline.Request) pipeline.Outcome {
	outcome := r.orch.Run(ctx, req)
	if outcome.Ok && !outcome.Skipped && r.notifier.Enabled() {
		r.notifier.AnnounceEpisode(ctx, outcome.EpisodeDate,
			outcome.Outputs["episodeId"], outcome.Outputs["nativeAudioUrl"])
	}
	return outcome
}
