package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nadmax/bordo/internal/ai"
	"github.com/nadmax/bordo/internal/api"
	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/checklist"
	"github.com/nadmax/bordo/internal/config"
	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/friends"
	"github.com/nadmax/bordo/internal/notify"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/realtime"
	"github.com/nadmax/bordo/internal/report"
	"github.com/nadmax/bordo/internal/repository/postgres"
	"github.com/nadmax/bordo/internal/stats"
	"github.com/nadmax/bordo/internal/timer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "bordo-server",
		Short: "Comando de Bordo HTTP and realtime API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bordo.toml", "path to the TOML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openRepository(cfg *config.Config) (*postgres.Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return postgres.NewRepository(cfg.Postgres.DSN, postgres.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Duration,
	})
}

func newChangeFeed(kind string, q *queue.Queue) changefeed.Feed {
	if kind == config.FeedLocal {
		log.Printf("Using the in-process change feed, worker events will not reach clients")
		return changefeed.NewLocal()
	}
	return changefeed.NewRedisFeed(q.Client())
}

func migrate(ctx context.Context, cfg *config.Config) error {
	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("failed to close Postgres repository: %v", err)
		}
	}()

	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	log.Println("Schema is up to date")
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("failed to close Postgres repository: %v", err)
		}
	}()

	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	q, err := queue.NewQueue(cfg.Redis.Addr)
	if err != nil {
		return err
	}

	defer func() {
		if err := q.Close(); err != nil {
			log.Printf("failed to close server queue: %v", err)
		}
	}()

	feed := newChangeFeed(cfg.Server.ChangeFeed, q)

	sessions := auth.NewManager(repo, q.Client(), auth.Options{SessionTTL: cfg.Auth.SessionTTL.Duration})
	unsubscribe := sessions.OnChange(func(c auth.StateChange) {
		log.Printf("Auth state change: %s", c.Event)
	})
	defer unsubscribe()

	completer := ai.NewClient(ai.Config{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout.Duration,
	})
	if cfg.AI.APIKey == "" {
		log.Printf("LOVABLE_API_KEY is not set, decomposition requests will fail")
	}

	aggregator := stats.NewAggregator(repo, feed)
	hub := realtime.NewHub(feed, aggregator, realtime.Config{})

	timers := timer.NewRegistry(repo, feed, timer.Options{
		TickInterval: cfg.Timer.TickInterval.Duration,
		OrphanAfter:  cfg.Timer.OrphanAfter.Duration,
		OnTick:       hub.NotifyTick,
	})
	defer timers.Close()

	apiHandler := api.NewAPI(api.Config{
		Tasks:      repo,
		Auth:       sessions,
		Decomposer: decompose.NewService(completer, repo, feed),
		Jobs:       q,
		Feed:       feed,
		Timers:     timers,
		Checklist:  checklist.New(repo, feed),
		Stats:      aggregator,
		Friends:    friends.NewService(repo, notify.NewQueueNotifier(q)),
		Reports:    report.NewGenerator(repo),
		Realtime:   hub,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on %s", server.Addr)
		log.Printf("Connected to Redis at %s", cfg.Redis.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		startMetricsCollector(gctx, q, repo, cfg.Server.MetricsInterval.Duration)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
