package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/parcelhive/parcelhive-backend/api/routes"
	"github.com/parcelhive/parcelhive-backend/internal/auth"
	"github.com/parcelhive/parcelhive-backend/internal/cells"
	"github.com/parcelhive/parcelhive-backend/internal/dispatch"
	"github.com/parcelhive/parcelhive-backend/internal/lockers"
	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/internal/otp"
	"github.com/parcelhive/parcelhive-backend/internal/tracking"
	"github.com/parcelhive/parcelhive-backend/internal/users"
	"github.com/parcelhive/parcelhive-backend/pkg/auth/session"
	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/db"
	"github.com/parcelhive/parcelhive-backend/pkg/hardware"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/migrate"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	hardwareChannel, err := hardware.NewChannel(context.Background(), cfg.Hardware, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create hardware channel", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}
	shipperRegisterService, err := auth.NewShipperRegisterService(auth.ShipperRegisterServiceParams{
		TxRunner:       dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create shipper register service", err)
		os.Exit(1)
	}

	cellDirectory, err := cells.NewDirectory(cells.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create cell directory", err)
		os.Exit(1)
	}
	lockersService, err := lockers.NewService(lockers.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create lockers service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		userRepo,
		cellDirectory,
		redisClient,
		dbClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	otpService, err := otp.NewService(ordersService, redisClient, hardwareChannel, cfg.OTP.TTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create otp service", err)
		os.Exit(1)
	}
	dispatchService, err := dispatch.NewService(redisClient, dispatch.SamePairStrategy{}, ordersService, lockers.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}
	trackingHub, err := tracking.NewHub(redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking hub", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			registerService,
			shipperRegisterService,
			lockersService,
			ordersService,
			otpService,
			dispatchService,
			trackingHub,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
