package main

import (
	"context"
	"errors"
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
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/memory"
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/bloodbank/internal/log"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/ErlanBelekov/bloodbank/internal/ratelimit"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/ErlanBelekov/bloodbank/internal/scheduler"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	httptransport "github.com/ErlanBelekov/bloodbank/internal/transport/http"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/handler"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/middleware"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/ErlanBelekov/bloodbank/migrations"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var (
		users repository.UserRepository
		units repository.InventoryRepository
		deps  []health.Dependency
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			stop()
			log.Fatalf("db: %v", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool, migrations.FS); err != nil {
			stop()
			log.Fatalf("migrate: %v", err)
		}
		users = postgres.NewUserRepository(pool)
		units = postgres.NewInventoryRepository(pool)
		deps = append(deps, health.Dependency{Name: "postgres", Pinger: pool})
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		users = memory.NewUserRepository()
		units = memory.NewInventoryRepository()
	}

	// Login throttling
	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, "bloodbank:login", cfg.LoginRateLimit, cfg.LoginRateWindow)
		deps = append(deps, health.Dependency{Name: "redis", Pinger: health.RedisPinger(rdb)})
	}

	// Inventory events
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

	tokens := token.NewService([]byte(cfg.JWTSecret), token.WithTTL(cfg.JWTTTL))

	authUsecase := usecase.NewAuthUsecase(users, tokens, cfg.BcryptCost)
	userUsecase := usecase.NewUserUsecase(users, cfg.BcryptCost, logger)
	inventoryUsecase := usecase.NewInventoryUsecase(units, publisher, logger)

	// The sweeper binary cannot reach in-memory stores, so sweep in-process.
	if cfg.DatabaseURL == "" {
		sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
		sweeper, err := scheduler.NewSweeper(inventoryUsecase, sender, cfg.ExpiryReportTo, cfg.ExpirySweepCron, logger)
		if err != nil {
			stop()
			log.Fatalf("sweeper: %v", err)
		}
		go sweeper.Start(ctx)
	}

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, deps...)

	router := httptransport.NewRouter(logger,
		middleware.Authenticate(tokens, users, logger, middleware.DefaultPublicPrefixes...),
		httptransport.Handlers{
			Auth:      handler.NewAuthHandler(authUsecase, limiter, logger),
			Users:     handler.NewUserHandler(userUsecase, logger),
			Inventory: handler.NewInventoryHandler(inventoryUsecase, logger),
			Checker:   checker,
		},
		cfg.Env != "local",
	)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

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
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
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
