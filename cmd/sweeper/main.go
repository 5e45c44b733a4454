package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/bloodbank/config"
	"github.com/ErlanBelekov/bloodbank/internal/email"
	"github.com/ErlanBelekov/bloodbank/internal/events"
	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/bloodbank/internal/log"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/ErlanBelekov/bloodbank/internal/scheduler"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL is required for the sweeper")
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			stop()
			log.Fatalf("amqp: %v", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	inventory := usecase.NewInventoryUsecase(postgres.NewInventoryRepository(pool), publisher, logger)
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	sweeper, err := scheduler.NewSweeper(inventory, sender, cfg.ExpiryReportTo, cfg.ExpirySweepCron, logger)
	if err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}

	metrics.Register()

	if *once {
		sweeper.RunOnce(ctx)
		stop()
		return
	}

	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: "postgres", Pinger: pool},
	)

	go sweeper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
