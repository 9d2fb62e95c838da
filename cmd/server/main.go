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

	"spothot/internal/api"
	identitymetrics "spothot/internal/identity/metrics"
	identityservice "spothot/internal/identity/service"
	identitystore "spothot/internal/identity/store"
	"spothot/internal/notification"
	"spothot/internal/platform/config"
	"spothot/internal/platform/database"
	"spothot/internal/platform/health"
	"spothot/internal/platform/kafka"
	"spothot/internal/platform/kafka/producer"
	"spothot/internal/platform/logger"
	platformredis "spothot/internal/platform/redis"
	referralservice "spothot/internal/referral/service"
	referralstore "spothot/internal/referral/store"
	"spothot/internal/signup"
	"spothot/internal/tasks"
	tasksmetrics "spothot/internal/tasks/metrics"
	verificationservice "spothot/internal/verification/service"
	verificationstore "spothot/internal/verification/store"
	waitlistmetrics "spothot/internal/waitlist/metrics"
	waitlistservice "spothot/internal/waitlist/service"
	waitliststore "spothot/internal/waitlist/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCfg := platformredis.DefaultConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisClient, err := platformredis.New(redisCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	registry := prometheus.NewRegistry()

	// Stores: postgres when a database is configured, memory otherwise so a
	// bare `go run` still serves the full flow.
	var (
		identityStore  identityservice.Store
		challengeStore verificationservice.ChallengeStore
		edgeStore      referralservice.EdgeStore
		entryStore     waitlistservice.EntryStore
	)
	if pool != nil {
		db := pool.DB()
		identityStore = identitystore.NewPostgres(db)
		challengeStore = verificationstore.NewPostgres(db)
		edgeStore = referralstore.NewPostgres(db)
		entryStore = waitliststore.NewPostgres(db)
	} else {
		log.Warn("no DATABASE_URL, using in-memory stores")
		identityStore = identitystore.NewInMemory()
		challengeStore = verificationstore.NewInMemory()
		edgeStore = referralstore.NewInMemory()
		entryStore = waitliststore.NewInMemory()
	}
	if redisClient != nil {
		// TTL runs past the redemption window so an aged code still redeems
		// as expired instead of vanishing into not_found.
		challengeStore = verificationstore.NewRedis(redisClient.Client, 2*cfg.ChallengeTTL)
	}

	identitySvc := identityservice.NewService(identityStore,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New(registry)),
	)
	verificationSvc := verificationservice.NewService(challengeStore, identityStore,
		verificationservice.WithLogger(log),
		verificationservice.WithWindow(cfg.ChallengeTTL),
	)
	referralSvc := referralservice.NewService(edgeStore, identityStore,
		referralservice.WithLogger(log),
	)
	ranker := waitlistservice.NewService(entryStore, identityStore,
		waitlistservice.WithLogger(log),
		waitlistservice.WithMetrics(waitlistmetrics.New(registry)),
		waitlistservice.WithBase(cfg.WaitlistBase),
	)

	taskMetrics := tasksmetrics.New(registry)

	// Task delivery: Kafka when brokers are configured (cmd/worker consumes),
	// otherwise an in-process queue.
	var (
		dispatcher    tasks.Dispatcher
		kafkaProducer *producer.Producer
		memDispatcher *tasks.MemoryDispatcher
	)
	if cfg.KafkaBrokers != "" {
		producerCfg := kafka.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		kafkaProducer, err = producer.New(producerCfg, log)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer kafkaProducer.Close()
		dispatcher = tasks.NewKafka(kafkaProducer, cfg.TaskTopic, tasks.WithKafkaMetrics(taskMetrics))
	} else {
		log.Warn("no KAFKA_BROKERS, running tasks in-process")
		worker := tasks.NewWorker(
			tasks.WithWorkerLogger(log),
			tasks.WithWorkerMetrics(taskMetrics),
		)
		signup.RegisterTaskHandlers(worker, ranker)
		memDispatcher = tasks.NewMemory(worker, 4,
			tasks.WithMemoryLogger(log),
			tasks.WithMemoryMetrics(taskMetrics),
		)
		defer memDispatcher.Close()
		dispatcher = memDispatcher
	}

	notifier := notification.NewAsync(notification.NewLogSink(log), notification.WithLogger(log))
	defer notifier.Close()

	signupSvc := signup.NewService(identitySvc, verificationSvc, referralSvc, dispatcher, notifier,
		signup.WithLogger(log),
		signup.WithPositionReader(ranker),
	)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	if kafkaProducer != nil {
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(ctx) {
				return fmt.Errorf("kafka unreachable")
			}
			return nil
		})
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/api/v1", api.NewHandler(signupSvc, log).Register)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
