package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	intDatabase "callhub-backend/internal/database"
	callHandler "callhub-backend/internal/handler/http/call"
	wsHandler "callhub-backend/internal/handler/ws"
	"callhub-backend/internal/middleware"
	"callhub-backend/internal/repository/cockroach"
	redisRepo "callhub-backend/internal/repository/redis"
	callService "callhub-backend/internal/service/call"
	"callhub-backend/internal/service/presence"
	"callhub-backend/pkg/config"
	"callhub-backend/pkg/constants"
	pkgDatabase "callhub-backend/pkg/database"
	"callhub-backend/pkg/jwt"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
	"callhub-backend/pkg/resilience"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	if err := logger.Init(&cfg.Log); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Setup JWT Manager
	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, constants.AccessTokenDuration)

	// 3. Connect to CockroachDB for profile lookups
	var profiles presence.ProfileProvider
	db, err := connectCockroach(ctx, &cfg.Database)
	if err != nil {
		logger.Warn("Running without profile store, display names come from access tokens",
			zap.Error(err))
	} else {
		defer db.Close()
		guarded := presence.NewGuardedProfiles(
			cockroach.NewProfileRepository(db.Pool),
			resilience.BreakerConfig{Threshold: constants.ProfileBreakerThreshold, Cooldown: constants.ProfileBreakerCooldown},
		)
		cached := presence.NewCachedProfiles(
			guarded,
			cfg.Signaling.ProfileCacheTTL,
			constants.ProfileCacheSize,
		)
		stopCleanup := cached.StartCleanup(constants.ProfileCacheCleanupInterval)
		defer stopCleanup()
		profiles = cached
	}

	// 4. Initialize Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, prometheus.DefaultRegisterer)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 5. Initialize Redis with degraded mode support
	redisDB := intDatabase.NewRedisDB(&cfg.Redis)
	defer redisDB.Close()
	redisDB.Client.AddHook(intDatabase.NewMetricsHook(appMetrics))
	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, presence mirror and revocation checks degraded",
			zap.Error(err))
	} else {
		logger.Info("Connected to Redis",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port))
	}
	redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)

	presenceRepo := redisRepo.NewPresenceRepository(redisDB, cfg.Signaling.PresenceTTL)
	tokenRepo := redisRepo.NewTokenRepository(redisDB)
	connectLimiter := middleware.NewRateLimiter(redisDB, "connect", constants.ConnectRateLimit, constants.ConnectRateWindow)

	// 6. Initialize signaling: hub, coordinator and broadcaster
	registry := presence.NewRegistry()
	aggregator := presence.NewAggregator(registry, profiles, cfg.Signaling.ProfileRefreshTimeout)

	signalingHub := wsHandler.NewSignalingHub(profiles, wsHandler.HubConfig{
		MaxConnections: cfg.Signaling.MaxConnections,
		SendBuffer:     cfg.Signaling.SendBuffer,
		AllowedOrigins: cfg.Signaling.AllowedOrigins,
		ProfileTimeout: cfg.Signaling.ProfileRefreshTimeout,
	})
	coordinator := callService.NewCoordinator(registry, signalingHub, cfg.Signaling.RingTimeout)
	defer coordinator.Close()

	broadcaster := callService.NewBroadcaster(registry, aggregator, coordinator, signalingHub, presenceRepo)
	coordinator.SetFanOut(broadcaster)
	signalingHub.Attach(coordinator, broadcaster)

	callHdlr := callHandler.NewHandler(coordinator, aggregator)

	// 7. Setup Gin Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Signaling.AllowedOrigins))
	router.Use(prometheusMiddleware.Handler())

	router.GET(middleware.GetMetricsPath(), middleware.MetricsHandler(prometheus.DefaultGatherer))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, tokenRepo, appMetrics))
	{
		v1.GET("/signaling/ws", connectLimiter.Middleware(), signalingHub.ServeWS)
		v1.GET("/presence/online", callHdlr.ListOnlineUsers)
		v1.GET("/calls/active", callHdlr.ListActiveCalls)
		v1.GET("/calls/current", callHdlr.GetCurrentCall)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: constants.WebSocketWriteWait,
	}

	// 8. Run the server and the broadcaster until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		broadcaster.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Signaling service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("websocket", "/v1/signaling/ws"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down signaling service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
		defer cancel()

		if err := signalingHub.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Signaling sockets did not drain in time", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Signaling service stopped with error", zap.Error(err))
		return
	}
	logger.Info("Signaling service stopped")
}

// connectCockroach connects with exponential backoff
func connectCockroach(ctx context.Context, cfg *config.DatabaseConfig) (*pkgDatabase.CockroachDB, error) {
	var lastErr error
	for attempt := 1; attempt <= constants.DBConnectMaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
		db, err := pkgDatabase.NewCockroachDB(attemptCtx, cfg)
		cancel()
		if err == nil {
			logger.Info("Connected to CockroachDB", zap.Int("attempt", attempt))
			return db, nil
		}
		lastErr = err

		if attempt == constants.DBConnectMaxRetries {
			break
		}
		delay := time.Duration(float64(constants.DBConnectBaseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > constants.DBConnectMaxDelay {
			delay = constants.DBConnectMaxDelay
		}
		logger.Warn("CockroachDB connection attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", constants.DBConnectMaxRetries, lastErr)
}
