package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-iam/sentinel/pkg/audit"
	"github.com/sentinel-iam/sentinel/pkg/checker"
	"github.com/sentinel-iam/sentinel/pkg/config"
	"github.com/sentinel-iam/sentinel/pkg/directory"
	"github.com/sentinel-iam/sentinel/pkg/grants"
	"github.com/sentinel-iam/sentinel/pkg/middleware"
	"github.com/sentinel-iam/sentinel/pkg/observability"
	"github.com/sentinel-iam/sentinel/pkg/storage/postgres"
	"github.com/sentinel-iam/sentinel/pkg/storage/redis"
	"github.com/sentinel-iam/sentinel/pkg/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(logrusLevel(cfg.LogLevel))

	// Database
	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     10 * time.Second,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations applied")

	// Redis is optional; without it the checker falls back to an
	// in-process LRU and revocations go straight to the database.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redis.NewClient(redis.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		logger.Info("Redis cache connected")
	} else {
		logger.Info("No redis URL configured, using in-process caches")
	}

	// Stores and resolver
	dirStore := directory.NewStore(db)
	grantStore := grants.NewStore(db)
	resolver := grants.NewResolver(dirStore, grantStore)

	revocations := token.NewRevocationStore(db, redisClient, cfg.Token.RevocationCacheTTL)

	validatorCfg := token.ValidatorConfig{
		IssuerURL: cfg.Token.IssuerURL,
		Audience:  cfg.Token.Audience,
		KeySetTTL: cfg.Token.KeySetTTL,
	}
	if cfg.Token.RevocationCheckEnabled {
		validatorCfg.Revocations = revocations
	}
	validator := token.NewValidator(validatorCfg)

	// Audit sinks
	dbAudit := audit.NewDBLogger(db)
	var auditLogger audit.Logger = dbAudit
	if cfg.Audit.FilePath != "" {
		fileAudit, err := audit.NewFileLogger(cfg.Audit.FilePath)
		if err != nil {
			logger.Fatalf("Failed to open audit file: %v", err)
		}
		auditLogger = audit.NewMultiLogger(dbAudit, fileAudit)
		logger.Infof("Mirroring audit log to %s", cfg.Audit.FilePath)
	}

	// Permission cache
	var permCache checker.PermissionCache = checker.NopPermissionCache{}
	if cfg.Checker.PermissionCacheTTL > 0 {
		if redisClient != nil {
			permCache = checker.NewRedisPermissionCache(redisClient, cfg.Checker.PermissionCacheTTL)
		} else {
			permCache = checker.NewLocalPermissionCache(cfg.Checker.PermissionCacheSize, cfg.Checker.PermissionCacheTTL)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	appLogger := observability.NewLogger(logLevel(cfg.LogLevel), os.Stdout)

	service := checker.NewService(checker.ServiceConfig{
		Directory:             dirStore,
		Resolver:              resolver,
		Validator:             validator,
		Audit:                 auditLogger,
		Cache:                 permCache,
		Metrics:               metrics,
		Logger:                appLogger,
		AllowPlaintextSecrets: !cfg.IsProduction(),
	})

	// HTTP routes
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(appLogger))
	router.Use(middleware.Metrics(metrics))

	checker.NewHandler(service).RegisterRoutes(router)
	grants.NewHandler(grantStore, dirStore, service).RegisterRoutes(router)
	token.NewHandler(revocations).RegisterRoutes(router)
	audit.NewHandler(dbAudit).RegisterRoutes(router)

	var redisConn *goredis.Client
	if redisClient != nil {
		redisConn = redisClient.Underlying()
	}
	health := observability.NewHealthChecker(db, redisConn)
	router.HandleFunc("/healthz", health.Liveness).Methods("GET")
	router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	router.Handle("/metrics", observability.Handler(registry)).Methods("GET")

	// Background maintenance
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
		removed, err := dbAudit.Cleanup(context.Background(), cfg.Audit.RetentionDays)
		if err != nil {
			logger.Errorf("Audit cleanup failed: %v", err)
			return
		}
		logger.Infof("Audit cleanup removed %d rows", removed)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule audit cleanup: %v", err)
	}
	_, err = scheduler.AddFunc("@hourly", func() {
		removed, err := revocations.CleanupExpired(context.Background(), cfg.Token.RevocationRetention)
		if err != nil {
			logger.Errorf("Revocation cleanup failed: %v", err)
			return
		}
		if removed > 0 {
			logger.Infof("Revocation cleanup removed %d expired records", removed)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule revocation cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Sentinel permission service listening on %s (environment: %s)", server.Addr, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("Shutdown signal received, draining connections")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}

	if err := auditLogger.Close(); err != nil {
		logger.Errorf("Failed to close audit sinks: %v", err)
	}
	logger.Info("Shutdown complete")
}

// logrusLevel maps the configured level onto logrus, defaulting to info
func logrusLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// logLevel maps the configured level onto the structured app logger
func logLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.DebugLevel
	case "warn":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}
