package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	intDatabase "bibleverse-backend/internal/database"
	"bibleverse-backend/internal/domain"
	callHandler "bibleverse-backend/internal/handler/http/call"
	disciplineHandler "bibleverse-backend/internal/handler/http/discipline"
	governanceHandler "bibleverse-backend/internal/handler/http/governance"
	wsHandler "bibleverse-backend/internal/handler/ws"
	"bibleverse-backend/internal/middleware"
	"bibleverse-backend/internal/repository/cassandra"
	"bibleverse-backend/internal/repository/cockroach"
	firestoreRepo "bibleverse-backend/internal/repository/firestore"
	"bibleverse-backend/internal/repository/memory"
	redisRepo "bibleverse-backend/internal/repository/redis"
	callService "bibleverse-backend/internal/service/call"
	disciplineService "bibleverse-backend/internal/service/discipline"
	governanceService "bibleverse-backend/internal/service/governance"
	"bibleverse-backend/internal/service/moderator"
	"bibleverse-backend/pkg/config"
	"bibleverse-backend/pkg/constants"
	appctx "bibleverse-backend/pkg/context"
	pkgDatabase "bibleverse-backend/pkg/database"
	"bibleverse-backend/pkg/jwt"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
	"bibleverse-backend/pkg/resilience"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 1. Load configuration and logger
	cfg, err := config.Load()
	if err != nil {
		logger.InitDefault()
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		logger.InitDefault()
		logger.Warn("Falling back to default logger", zap.Error(err))
	}
	defer logger.Sync()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, constants.AccessTokenExpiry)

	// 2. Calls, participants and room tasks live in Firestore
	var (
		callRepo        callService.CallRepository
		participantRepo callService.ParticipantRepository
		taskSource      disciplineService.TaskSource
	)
	if cfg.Firestore.ProjectID != "" || cfg.Firestore.CredentialsPath != "" {
		client, err := intDatabase.NewFirestoreClient(ctx, &intDatabase.FirestoreConfig{
			ProjectID:       cfg.Firestore.ProjectID,
			CredentialsPath: cfg.Firestore.CredentialsPath,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Firestore", zap.Error(err))
		}
		defer client.Close()

		callRepo = firestoreRepo.NewCallRepository(client)
		participantRepo = firestoreRepo.NewParticipantRepository(client)
		taskSource = firestoreRepo.NewTaskRepository(client)
	} else {
		logger.Warn("FIREBASE_PROJECT_ID not set, using in-memory call and task stores")
		callRepo = memory.NewCallRepository()
		participantRepo = memory.NewParticipantRepository()
		taskSource = memory.NewTaskRepository()
	}

	// 3. Redis with degraded mode support: call locks, event fan-out, token revocation
	var (
		locker            callService.Locker = callService.NewLocalLocker()
		eventBus          wsHandler.EventBus
		revocationChecker middleware.RevocationChecker
	)
	if cfg.Redis.Enabled {
		redisDB := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		}, appMetrics)
		defer redisDB.Close()
		redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)

		locker = redisRepo.NewCallLocker(redisDB, callService.NewLocalLocker(), cfg.Circle.LockTTL)
		eventBus = redisRepo.NewCallEventBus(redisDB)
		revocationChecker = middleware.NewRedisRevocationChecker(redisDB)
		logger.Info("Redis configured", zap.Bool("degraded", redisDB.IsDegraded()))
	}

	// 4. CockroachDB for governance logs
	var governanceRepo governanceService.Repository = memory.NewGovernanceRepository()
	if cfg.Database.Enabled {
		var db *pkgDatabase.CockroachDB
		err := withRetry("CockroachDB", func() error {
			var err error
			db, err = pkgDatabase.NewCockroachDB(ctx, &pkgDatabase.CockroachConfig{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				Database: cfg.Database.Database,
				SSLMode:  cfg.Database.SSLMode,
			})
			return err
		})
		if err != nil {
			logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
		}
		defer db.Close()

		repo := cockroach.NewGovernanceRepository(db.Pool, appMetrics)
		schemaCtx, cancel := context.WithTimeout(ctx, constants.SchemaSetupTimeout)
		err = repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to create governance schema", zap.Error(err))
		}
		governanceRepo = repo
	}

	// 5. Cassandra for call transcripts
	var transcriptRepo callService.TranscriptRepository = memory.NewTranscriptRepository()
	if cfg.Cassandra.Enabled {
		var cassandraDB *pkgDatabase.CassandraDB
		err := withRetry("Cassandra", func() error {
			var err error
			cassandraDB, err = pkgDatabase.NewCassandraDB(&pkgDatabase.CassandraConfig{
				Hosts:    cfg.Cassandra.Hosts,
				Keyspace: cfg.Cassandra.Keyspace,
				Username: cfg.Cassandra.Username,
				Password: cfg.Cassandra.Password,
				Timeout:  cfg.Cassandra.Timeout,
			})
			return err
		})
		if err != nil {
			logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
		}
		defer cassandraDB.Close()

		repo := cassandra.NewTranscriptRepository(cassandraDB.Session, appMetrics)
		schemaCtx, cancel := context.WithTimeout(ctx, constants.SchemaSetupTimeout)
		err = repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to create transcript schema", zap.Error(err))
		}
		transcriptRepo = repo
	}

	// 6. Moderator announcements
	var generator moderator.Generator
	if cfg.Gemini.APIKey != "" {
		generator = moderator.NewGeminiGenerator(moderator.GeminiConfig{
			APIKey:   cfg.Gemini.APIKey,
			Model:    cfg.Gemini.Model,
			Endpoint: cfg.Gemini.Endpoint,
		})
	} else {
		logger.Warn("GEMINI_API_KEY not set, moderator uses fixed announcements")
	}
	breaker := resilience.NewCircuitBreaker("gemini", resilience.BreakerConfig{
		FailureThreshold: constants.BreakerFailureThreshold,
		Cooldown:         constants.BreakerCooldown,
	}, appMetrics)
	announcer := moderator.NewAnnouncer(generator, cfg.Gemini.Timeout, breaker, appMetrics)

	// 7. Services
	orderRule, err := callService.ParseOrderRule(cfg.Circle.OrderRule)
	if err != nil {
		logger.Fatal("Invalid circle order rule", zap.Error(err))
	}

	var callSvc *callService.Service
	eventHub := wsHandler.NewCallEventHub(
		wsHandler.CallLookupFunc(func(ctx context.Context, callID string) (*domain.Call, error) {
			return callSvc.GetCall(ctx, callID)
		}),
		eventBus,
		wsHandler.HubConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxConnections: cfg.Server.WSMaxConnections,
		},
		appMetrics,
	)

	opts := callService.Options{
		OrderRule:       orderRule,
		Locker:          locker,
		LockWait:        cfg.Circle.LockWait,
		Transcript:      transcriptRepo,
		TranscriptLimit: cfg.Circle.TranscriptLimit,
		Events:          eventHub,
		Metrics:         appMetrics,
	}
	if cfg.Circle.DisableAuthz {
		logger.Warn("Circle moderation authorization disabled")
		opts.Authorizer = callService.AllowAll
	}
	callSvc = callService.NewService(callRepo, participantRepo, announcer, opts)
	disciplineSvc := disciplineService.NewService(taskSource, appMetrics)
	governanceSvc := governanceService.NewService(governanceRepo)

	// 8. Setup Gin Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		callHandler.NewHandler(callSvc).RegisterRoutes(v1)
		v1.GET("/calls/:id/events", eventHub.ServeWS)

		disciplineHandler.NewHandler(disciplineSvc).RegisterRoutes(v1)
		governanceHandler.NewHandler(governanceSvc).RegisterRoutes(v1, middleware.RequireRole(appctx.RoleAdmin))
	}

	// 9. Start server in goroutine
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Call service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("order_rule", string(orderRule)),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()

	logger.Info("Server exited")
}

// withRetry runs connect with exponential backoff, 5 attempts capped at 30s apart
func withRetry(name string, connect func() error) error {
	const maxRetries = 5
	delay := time.Second

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = connect(); err == nil {
			logger.Info("Connected", zap.String("dependency", name), zap.Int("attempt", attempt))
			return nil
		}
		if attempt == maxRetries {
			break
		}
		logger.Warn("Connection attempt failed, retrying",
			zap.String("dependency", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		time.Sleep(delay)
		if delay *= 2; delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return fmt.Errorf("%s unavailable after %d attempts: %w", name, maxRetries, err)
}
