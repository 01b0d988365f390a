package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelhive/parcelhive-backend/api/controllers"
	"github.com/parcelhive/parcelhive-backend/api/middleware"
	"github.com/parcelhive/parcelhive-backend/internal/auth"
	"github.com/parcelhive/parcelhive-backend/internal/dispatch"
	"github.com/parcelhive/parcelhive-backend/internal/lockers"
	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/internal/otp"
	"github.com/parcelhive/parcelhive-backend/internal/tracking"
	"github.com/parcelhive/parcelhive-backend/pkg/auth/session"
	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/db"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager sessionManager,
	authService auth.Service,
	registerService auth.RegisterService,
	shipperRegisterService auth.ShipperRegisterService,
	lockersService lockers.Service,
	ordersService orders.Service,
	otpService otp.Service,
	dispatchService dispatch.Service,
	trackingHub *tracking.Hub,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	otpPolicy := middleware.NewAuthRateLimitPolicy(
		"otp",
		cfg.AuthRateLimit.OTPWindow,
		cfg.AuthRateLimit.OTPIPLimit,
		cfg.AuthRateLimit.OTPUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(
			middleware.AuthRateLimit(registerPolicy, redisClient, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/register", controllers.AuthRegister(registerService, logg))
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderCreate(ordersService, logg))
			r.Get("/", controllers.OrderList(ordersService, logg))
			r.Get("/{orderID}", controllers.OrderGet(ordersService, logg))
			r.Get("/{orderID}/track", controllers.OrderTrack(ordersService, logg))
			r.Post("/{orderID}/cancel", controllers.OrderCancel(ordersService, logg))

			r.Route("/{orderID}/otp", func(r chi.Router) {
				r.Use(middleware.AuthRateLimit(otpPolicy, redisClient, logg))
				r.Post("/", controllers.OTPGenerate(otpService, logg))
				r.Post("/verify", controllers.OTPVerify(otpService, logg))
			})
		})

		r.Get("/tracking/orders/{orderID}", controllers.TrackingViewer(trackingHub, ordersService, logg))

		r.Route("/shipper", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.MemberRoleShipper), logg))
			r.Post("/routes/next", controllers.ShipperNextRoute(dispatchService, logg))
			r.Get("/orders/{orderID}", controllers.ShipperOrderInfo(ordersService, logg))
			r.Post("/orders/{orderID}/pickup", controllers.ShipperPickUp(ordersService, logg))
			r.Post("/orders/{orderID}/drop", controllers.ShipperDrop(ordersService, logg))
			r.Post("/location", controllers.ShipperLocation(trackingHub, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
		r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/shippers", controllers.AdminShipperRegister(shipperRegisterService, logg))

		r.Route("/lockers", func(r chi.Router) {
			r.Post("/", controllers.LockerCreate(lockersService, logg))
			r.Get("/", controllers.LockerList(lockersService, logg))
			r.Get("/{lockerID}", controllers.LockerGet(lockersService, logg))
			r.Patch("/{lockerID}", controllers.LockerUpdate(lockersService, logg))
			r.Delete("/{lockerID}", controllers.LockerDelete(lockersService, logg))
			r.Post("/{lockerID}/cells", controllers.CellCreate(lockersService, logg))
			r.Get("/{lockerID}/cells", controllers.CellList(lockersService, logg))
			r.Get("/{lockerID}/density", controllers.LockerDensity(lockersService, logg))
		})

		r.Delete("/orders/{orderID}", controllers.AdminOrderDelete(ordersService, logg))
	})

	return r
}
