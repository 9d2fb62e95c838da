package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	identitystore "spothot/internal/identity/store"
	"spothot/internal/platform/config"
	"spothot/internal/platform/database"
	"spothot/internal/platform/health"
	"spothot/internal/platform/kafka"
	"spothot/internal/platform/kafka/consumer"
	"spothot/internal/platform/logger"
	"spothot/internal/signup"
	"spothot/internal/tasks"
	tasksmetrics "spothot/internal/tasks/metrics"
	waitlistmetrics "spothot/internal/waitlist/metrics"
	waitlistservice "spothot/internal/waitlist/service"
	waitliststore "spothot/internal/waitlist/store"
)

// The worker owns the ranking side effects: it consumes the task topic and
// drives the waitlist against the shared database.
func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if cfg.KafkaBrokers == "" {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()

	ranker := waitlistservice.NewService(
		waitliststore.NewPostgres(pool.DB()),
		identitystore.NewPostgres(pool.DB()),
		waitlistservice.WithLogger(log),
		waitlistservice.WithMetrics(waitlistmetrics.New(registry)),
		waitlistservice.WithBase(cfg.WaitlistBase),
	)

	worker := tasks.NewWorker(
		tasks.WithWorkerLogger(log),
		tasks.WithWorkerMetrics(tasksmetrics.New(registry)),
	)
	signup.RegisterTaskHandlers(worker, ranker)

	kafkaConsumer, err := consumer.New(kafka.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.TaskGroupID,
		Topics:  []string{cfg.TaskTopic},
	}, worker, log)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Health(ctx)
	})
	kafkaCheck := kafka.NewHealthChecker(cfg.KafkaBrokers)
	healthHandler.RegisterCheck("kafka", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return kafkaCheck.Check(ctx)
	})

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kafkaConsumer.Start()
	log.Info("worker consuming",
		"topic", cfg.TaskTopic,
		"group", cfg.TaskGroupID,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := kafkaConsumer.Stop(stopCtx); err != nil {
			log.Warn("consumer stopped uncleanly", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
