package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pulsechat-backend/internal/connection"
	"pulsechat-backend/internal/database"
	callHandler "pulsechat-backend/internal/handler/http/call"
	presenceHandler "pulsechat-backend/internal/handler/http/presence"
	wsHandler "pulsechat-backend/internal/handler/ws"
	"pulsechat-backend/internal/middleware"
	"pulsechat-backend/internal/repository/cassandra"
	"pulsechat-backend/internal/repository/cockroach"
	"pulsechat-backend/internal/repository/redis"
	callService "pulsechat-backend/internal/service/call"
	chatService "pulsechat-backend/internal/service/chat"
	presenceService "pulsechat-backend/internal/service/presence"
	"pulsechat-backend/pkg/config"
	"pulsechat-backend/pkg/constants"
	"pulsechat-backend/pkg/jwt"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
	"pulsechat-backend/pkg/resilience"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		ServiceName: cfg.Server.ServiceName,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, prometheus.DefaultRegisterer)

	// 2. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, &database.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("Connected to CockroachDB")

	// 3. Connect to Redis with degraded mode support
	redisDB := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	}, prometheus.DefaultRegisterer)
	defer redisDB.Close()

	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 4. Connect to Cassandra
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:    cfg.Cassandra.Hosts,
		Keyspace: cfg.Cassandra.Keyspace,
		Username: cfg.Cassandra.Username,
		Password: cfg.Cassandra.Password,
		Timeout:  cfg.Cassandra.Timeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	logger.Info("Connected to Cassandra")

	// 5. Initialize repositories
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	groupRepo := cockroach.NewGroupRepository(cockroachDB.Pool, redis.NewGroupCacheRepository(redisDB))
	messageRepo := cockroach.NewMessageRepository(cockroachDB.Pool)
	presenceRepo := redis.NewPresenceRepository(redisDB)
	callLogRepo := cassandra.NewCallLogRepository(cassandraDB,
		resilience.NewCircuitBreaker("cassandra", resilience.DefaultConfig(), prometheus.DefaultRegisterer))

	// Nobody is connected to a process that just started
	if err := presenceRepo.ClearOnline(ctx); err != nil {
		logger.Warn("Failed to clear stale presence", zap.Error(err))
	}

	// 6. Initialize services
	registry := connection.NewRegistry(appMetrics)
	publisher := presenceService.NewPublisher(registry, userRepo, presenceRepo, appMetrics)
	calls := callService.NewManager(registry, callLogRepo, callService.Config{
		AllowedDurations: cfg.Calls.AllowedDurations,
		DefaultDuration:  cfg.Calls.DefaultDuration,
	}, callService.WithMetrics(appMetrics))
	relay := chatService.NewRelay(cockroach.NewDirectory(userRepo, groupRepo), messageRepo, registry, appMetrics)

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, 15*time.Minute)
	revocationChecker := middleware.NewRedisRevocationChecker(redisDB)

	// 7. Initialize handlers
	controller := wsHandler.NewController(registry, publisher, calls, relay, jwtManager, revocationChecker, userRepo, appMetrics)
	wsHdlr := wsHandler.NewHandler(controller, cfg.WebSocket)
	callHdlr := callHandler.NewHandler(calls)
	presenceHdlr := presenceHandler.NewHandler(publisher)

	// 8. Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders(cfg.Server.Environment == "production"))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.WebSocket.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{
			"cockroachdb": "healthy",
			"cassandra":   "healthy",
			"redis":       "healthy",
		}
		status := http.StatusOK
		if err := cockroachDB.Ping(checkCtx); err != nil {
			checks["cockroachdb"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := cassandraDB.Ping(checkCtx); err != nil {
			checks["cassandra"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		// Redis outages degrade presence caching only
		if redisDB.IsDegraded() {
			checks["redis"] = "degraded"
		}

		pool := cockroachDB.Pool.Stat()
		dbPool := gin.H{
			"acquired": pool.AcquiredConns(),
			"idle":     pool.IdleConns(),
			"max":      pool.MaxConns(),
		}

		c.JSON(status, gin.H{
			"service":     cfg.Server.ServiceName,
			"checks":      checks,
			"db_pool":     dbPool,
			"connections": registry.Count(),
			"calls":       calls.Count(),
			"time":        time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler(prometheus.DefaultGatherer))

	// The websocket authenticates its own token before upgrading
	wsLimiter := middleware.NewRateLimiter(redisDB, "ws", 30, time.Minute)
	router.GET("/v1/ws", wsLimiter.Middleware(), wsHdlr.ServeWS)

	apiLimiter := middleware.NewRateLimiter(redisDB, "api", 120, time.Minute)
	v1 := router.Group("/v1")
	v1.Use(middleware.RequestTimeout(constants.StoreTimeout))
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(apiLimiter.Middleware())
	{
		v1.GET("/presence/:user_id", presenceHdlr.GetStatus)
		v1.GET("/calls/active", callHdlr.ListActive)
	}

	// 9. Start server
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Realtime service starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
