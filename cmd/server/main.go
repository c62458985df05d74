package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/inkwell/contractflow/internal/adapter/cache"
	httpapi "github.com/inkwell/contractflow/internal/adapter/http"
	"github.com/inkwell/contractflow/internal/adapter/job"
	"github.com/inkwell/contractflow/internal/adapter/memory"
	"github.com/inkwell/contractflow/internal/adapter/notify"
	"github.com/inkwell/contractflow/internal/adapter/persistence"
	"github.com/inkwell/contractflow/internal/adapter/ratelimit"
	"github.com/inkwell/contractflow/internal/adapter/render"
	"github.com/inkwell/contractflow/internal/auth"
	"github.com/inkwell/contractflow/internal/config"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
	"github.com/inkwell/contractflow/internal/usecase"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "contractflow",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":          cfg.Server.Environment,
		"store_driver": cfg.Database.Driver,
		"cache_driver": cfg.Cache.Driver,
	})

	// Storage
	var (
		store  ports.Store
		health func(ctx context.Context) error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to database", err, nil)
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		store = persistence.NewPostgresStore(db)
		health = db.PingContext
		structuredLogger.Info(ctx, "Database connection established", nil)
	default:
		store = memory.NewStore()
		structuredLogger.Warn(ctx, "Using in-memory store; data is lost on restart", nil)
	}

	// Redis is optional and shared by the body cache and the autosave limiter
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to Redis", err, nil)
			if cfg.Cache.Driver == "redis" {
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
		} else {
			defer redisClient.Close()
		}
	}

	var bodyCache ports.BodyCache
	if cfg.Cache.Driver == "redis" && redisClient != nil {
		bodyCache = cache.NewRedisCacheFromClient(redisClient, cfg.Cache.TTL)
	} else {
		mc := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		defer mc.Close()
		bodyCache = mc
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled: cfg.RateLimitEnabled() && redisClient != nil,
		Limit:   cfg.Security.AutosaveLimit,
		Window:  cfg.Security.AutosaveWindow,
		Prefix:  "contractflow",
	}, redisClient, structuredLogger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Notifications
	sinks := []notify.Sink{notify.NewLogSink(structuredLogger)}
	metricsSink, err := notify.NewMetricsSink(registry)
	if err != nil {
		log.Fatalf("Failed to register event metrics: %v", err)
	}
	sinks = append(sinks, metricsSink)
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout, structuredLogger))
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.BufferSize, cfg.Notify.Workers, structuredLogger, sinks...)

	engine := usecase.NewEngine(usecase.Dependencies{
		Store:    store,
		Notifier: dispatcher,
		Renderer: render.NewRenderer(render.FormatText),
		Cache:    bodyCache,
		Logger:   structuredLogger,
	})

	// Background audit chain verification
	verifier := job.NewAuditVerifier(engine.Audit, cfg.Jobs.AuditVerifyLookback, structuredLogger)
	if err := verifier.Start(cfg.Jobs.AuditVerifySchedule); err != nil {
		log.Fatalf("Failed to schedule audit verification: %v", err)
	}

	tokens, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:                cfg.Address(),
		ReadTimeout:         cfg.Server.ReadTimeout,
		WriteTimeout:        cfg.Server.WriteTimeout,
		IdleTimeout:         cfg.Server.IdleTimeout,
		AllowedOrigins:      cfg.Security.CORSAllowedOrigins,
		AllowCredentials:    cfg.Security.CORSCredentials,
		AllowUserHeader:     cfg.Security.AllowUserHeader,
		CorrelationIDHeader: cfg.Logging.CorrelationIDHeader,
		EnableRequestLog:    cfg.Logging.EnableRequestLog,
	}, httpapi.ServicesFromEngine(engine), httpapi.Options{
		Tokens:   tokens,
		Limiter:  limiter,
		Registry: registry,
		Health:   health,
		Logger:   structuredLogger,
	})
	if err != nil {
		log.Fatalf("Failed to build HTTP server: %v", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"addr": cfg.Address(),
			})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	verifier.Stop(shutdownCtx)
	if err := dispatcher.Close(shutdownCtx); err != nil {
		structuredLogger.Warn(ctx, "Pending notifications dropped on shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	structuredLogger.Info(ctx, "Server exited", nil)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.Timeout > 0 {
		opt.DialTimeout = cfg.Timeout
		opt.ReadTimeout = cfg.Timeout
		opt.WriteTimeout = cfg.Timeout
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
