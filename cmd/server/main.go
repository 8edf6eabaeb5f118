package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/cache"
	"github.com/smarttransit/rail-reservation/internal/config"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/database/memory"
	"github.com/smarttransit/rail-reservation/internal/handlers"
	"github.com/smarttransit/rail-reservation/internal/lock"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/middleware"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/notification"
	"github.com/smarttransit/rail-reservation/internal/services"
	"github.com/smarttransit/rail-reservation/pkg/jwt"
	"github.com/smarttransit/rail-reservation/pkg/validator"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting rail reservation backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize store
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// Redis backs the schedule cache and cross-instance seat locks when enabled
	var locker lock.Locker = lock.NewLocalLocker()
	var scheduleCache cache.ScheduleCache = cache.NoopScheduleCache{}
	var attempts cache.AttemptCounter = cache.NewMemoryAttemptCounter()
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()

		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL, cfg.Redis.LockRetryDelay, logger)
		scheduleCache = cache.NewRedisScheduleCache(rdb, cfg.Redis.ScheduleTTL, logger)
		attempts = cache.NewRedisAttemptCounter(rdb)
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis backing enabled for cache and locks")
	}

	// Initialize services
	logger.Info("Initializing services...")
	m := metrics.New()
	notifier := notification.NewLogNotifier(logger)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	detailsValidator := validator.NewPaymentDetailsValidator()

	catalog := services.NewScheduleCatalogService(store, scheduleCache, logger)
	seats := services.NewSeatReservationService(store, m, logger)
	discounts := services.NewDiscountService(store, logger)
	policies := services.NewCancellationPolicyService(store, logger)
	loyalty := services.NewLoyaltyService(store, cfg.Payment.LoyaltyPointsPerUnit, logger)
	bookings := services.NewBookingService(store, seats, locker, notifier, m,
		services.BookingServiceConfigFrom(cfg.Booking), logger)

	var gateway services.Gateway
	switch cfg.Payment.Gateway {
	case config.GatewayPAYable:
		gateway = services.NewPAYableGateway(cfg.Payment, logger)
		logger.WithField("environment", cfg.Payment.Environment).Info("Using PAYable payment gateway")
	default:
		gateway = services.NewSimulatedGateway(cfg.Payment.SimulateGatewayDelay, cfg.Payment.DeclineAmountsAbove, logger)
		logger.Warn("Using simulated payment gateway")
	}
	payments := services.NewPaymentService(store, bookings, discounts, loyalty,
		services.NewPaymentAdapters(gateway, detailsValidator, cfg.Payment.Currency),
		detailsValidator, notifier, m,
		services.PaymentServiceConfig{
			ChargeTimeout:  cfg.Payment.ChargeTimeout,
			PendingTimeout: cfg.Booking.PendingTimeout,
		}, logger)
	auth := services.NewAuthService(store, jwtService, logger)
	limiter := services.NewRateLimitService(attempts, services.RateLimitConfig{
		MaxEmailAttempts: cfg.Security.LoginMaxAttempts,
		EmailWindow:      cfg.Security.LoginWindow,
		MaxIPAttempts:    cfg.Security.LoginMaxAttemptsPerIP,
		IPWindow:         cfg.Security.LoginIPWindow,
	}, logger)
	expiration := services.NewBookingExpirationService(bookings, m, logger)
	audits := services.NewAuditService(store, logger)

	if err := bootstrapAdmin(cfg, auth, logger); err != nil {
		logger.Fatalf("Failed to bootstrap admin account: %v", err)
	}

	// Initialize and start cron service
	cronService := services.NewCronService(expiration, cfg.Booking.ExpirySchedule, cfg.Booking.ReminderSchedule, logger).
		WithAuditCleanup(audits, cfg.Security.AuditCleanupSchedule, cfg.Security.AuditRetention)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - Booking auto-expiry enabled")

	logger.Info("Services initialized")

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	var metricsHandler http.Handler
	if cfg.Server.EnableMetrics {
		metricsHandler = m.Handler()
	}

	handlers.RegisterRoutes(router, handlers.Handlers{
		Auth:      handlers.NewAuthHandler(auth, limiter, audits, logger),
		Schedules: handlers.NewScheduleHandler(catalog, seats, discounts, logger),
		Bookings:  handlers.NewBookingHandler(bookings, payments, logger),
		Accounts:  handlers.NewAccountHandler(payments, loyalty, logger),
		Admin:     handlers.NewAdminHandler(catalog, discounts, policies, bookings, expiration, audits, cronService, logger),
		Health:    handlers.NewHealthHandler(store, version),
	}, jwtService, metricsHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		cronService.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server exited with error: %v", err)
		return
	}
	logger.Info("Server exited")
}

// openStore connects to PostgreSQL and applies migrations, or returns the
// in-memory store for local runs
func openStore(cfg *config.Config, logger *logrus.Logger) (database.Store, func(), error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Database connection established")

	if err := database.Migrate(db.DB.DB); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Database migrations applied")

	return database.NewPostgresStore(db), func() { db.Close() }, nil
}

func bootstrapAdmin(cfg *config.Config, auth *services.AuthService, logger *logrus.Logger) error {
	if cfg.Security.BootstrapAdminEmail == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := auth.EnsureUser(ctx, cfg.Security.BootstrapAdminEmail, "Administrator",
		cfg.Security.BootstrapAdminPasswordHash, []string{models.RoleAdmin, models.RoleStaff})
	if err != nil {
		return err
	}
	logger.WithField("user_id", user.ID).Info("Bootstrap admin account ready")
	return nil
}
