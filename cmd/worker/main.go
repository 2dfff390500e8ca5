package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/bordo/internal/ai"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/config"
	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/notify"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/repository/postgres"
	"github.com/nadmax/bordo/internal/timer"
	"github.com/nadmax/bordo/internal/worker"
	"github.com/nadmax/bordo/internal/worker/handlers"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "bordo-worker",
		Short: "Runs background decompositions, emails and the orphan time-entry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bordo.toml", "path to the TOML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	repo, err := postgres.NewRepository(cfg.Postgres.DSN, postgres.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Duration,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("failed to close Postgres repository: %v", err)
		}
	}()

	q, err := queue.NewQueue(cfg.Redis.Addr)
	if err != nil {
		return err
	}

	defer func() {
		if err := q.Close(); err != nil {
			log.Printf("failed to close worker queue: %v", err)
		}
	}()

	feed := changefeed.NewRedisFeed(q.Client())

	decomposer := decompose.NewService(ai.NewClient(ai.Config{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout.Duration,
	}), repo, feed)

	mailer := notify.NewSendGridMailer(notify.SendGridConfig{
		APIKey:      cfg.Email.APIKey,
		FromName:    cfg.Email.FromName,
		FromAddress: cfg.Email.FromAddress,
	})

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%d", time.Now().Unix())
	}

	w := worker.NewWorker(workerID, q)
	w.SetPollInterval(cfg.Worker.PollInterval.Duration)
	w.RegisterHandler(queue.JobBreakDownTask, handlers.BreakDownTaskHandler(decomposer))
	w.RegisterHandler(queue.JobSendEmail, handlers.SendEmailHandler(mailer))

	sweeper := timer.NewSweeper(repo, feed, timer.Options{OrphanAfter: cfg.Timer.OrphanAfter.Duration})

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Worker.SweepSchedule, func() {
		if _, err := sweeper.Sweep(ctx); err != nil {
			log.Printf("Orphan sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Worker.SweepSchedule, err)
	}
	scheduler.Start()

	go w.Start()

	<-ctx.Done()

	log.Println("Shutting down worker...")
	<-scheduler.Stop().Done()
	w.Stop()

	return nil
}
