package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parcelhive/parcelhive-backend/internal/cells"
	"github.com/parcelhive/parcelhive-backend/internal/dispatch"
	"github.com/parcelhive/parcelhive-backend/internal/lockers"
	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/internal/users"
	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/db"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/metrics"
	"github.com/parcelhive/parcelhive-backend/pkg/migrate"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cellDirectory, err := cells.NewDirectory(cells.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create cell directory", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		users.NewRepository(dbClient.DB()),
		cellDirectory,
		redisClient,
		dbClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	dispatchService, err := dispatch.NewService(redisClient, dispatch.SamePairStrategy{}, ordersService, lockers.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)

	service, err := NewService(ServiceParams{
		Logger:       logg,
		Dispatch:     dispatchService,
		Metrics:      metricsCollector,
		PollInterval: cfg.Dispatch.PollInterval,
		MetricsAddr:  net.JoinHostPort("", cfg.Dispatch.MetricsPort),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting dispatch worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
