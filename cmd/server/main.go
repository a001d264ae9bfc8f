package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/portfolio-tracker/internal/api"
	"github.com/trogers1052/portfolio-tracker/internal/config"
	"github.com/trogers1052/portfolio-tracker/internal/database"
	"github.com/trogers1052/portfolio-tracker/internal/jobs"
	"github.com/trogers1052/portfolio-tracker/internal/kafka"
	"github.com/trogers1052/portfolio-tracker/internal/locks"
	"github.com/trogers1052/portfolio-tracker/internal/logger"
	"github.com/trogers1052/portfolio-tracker/internal/positions"
)

func main() {
	// Bootstrap logger until the configured one is available
	log := logger.New(logger.Config{Level: "info"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)
	log.Info().Msg("Starting portfolio tracker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Position locks
	var locker positions.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		locker = locks.NewRedisLocker(rdb, "portfolio-tracker:", cfg.Redis.LockTTL, cfg.Redis.LockWait, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Position locking enabled")
	}

	// Change feed
	var publisher positions.Publisher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.EventsTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = producer
		log.Info().Str("topic", cfg.Kafka.EventsTopic).Msg("Position events enabled")
	}

	namePolicy, err := positions.ParseNamePolicy(cfg.Positions.NamePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid position configuration")
	}
	service := positions.NewService(db, locker, publisher, positions.Config{NamePolicy: namePolicy}, log)

	// Trade consumer
	consumerDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TradesTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, cfg.Kafka.GroupID, service, db, log)
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Trade consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	// Reconciliation
	sched := jobs.NewScheduler(log)
	if cfg.Reconcile.Schedule != "" {
		job := jobs.NewReconcileJob(db, service, cfg.Reconcile.Repair, cfg.Reconcile.Timeout, log)
		if err := sched.AddJob(cfg.Reconcile.Schedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register reconcile job")
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.SetupRoutes(api.NewHandler(service, db, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(srv, consumerDone, log)
}

func shutdown(srv *http.Server, consumerDone <-chan struct{}, log zerolog.Logger) {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warn().Msg("Trade consumer did not stop in time")
	}

	log.Info().Msg("Server stopped")
}
