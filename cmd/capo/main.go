package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/capo/internal/application/orchestrator"
	"github.com/aescanero/capo/internal/application/registry"
	"github.com/aescanero/capo/internal/application/workers"
	"github.com/aescanero/capo/internal/config"
	"github.com/aescanero/capo/internal/ratelimiter"
	"github.com/aescanero/capo/pkg/adapters/capabilities/llm"
	"github.com/aescanero/capo/pkg/adapters/capabilities/manifest"
	eventsmemory "github.com/aescanero/capo/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/capo/pkg/adapters/events/redis"
	"github.com/aescanero/capo/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/capo/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/capo/pkg/adapters/storage/redis"
	"github.com/aescanero/capo/pkg/api/grpc"
	apihttp "github.com/aescanero/capo/pkg/api/http"
	"github.com/aescanero/capo/pkg/api/websocket"
	"github.com/aescanero/capo/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting capability orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("events_backend", cfg.EventsBackend))

	ctx := context.Background()

	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Adapters
	var eventBus ports.EventBus
	if cfg.EventsBackend == config.BackendRedis {
		eventBus = eventsredis.NewStreamsEventBus(redisClient, cfg.Redis.StreamMaxLen, logger)
	} else {
		eventBus = eventsmemory.NewInMemoryEventBus()
	}

	var storage ports.ExecutionStorage
	if cfg.StorageBackend == config.BackendRedis {
		storage = storageredis.NewExecutionStorage(redisClient, cfg.Redis.StateTTL, logger)
	} else {
		storage = storagememory.NewInMemoryExecutionStorage()
	}

	metricsRegistry := promclient.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := prometheus.NewCollector(metricsRegistry)

	capabilities := registry.New()
	if err := loadCapabilities(cfg, capabilities, logger); err != nil {
		logger.Fatal("failed to load capabilities", zap.Error(err))
	}

	// Application components
	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	orchestratorMgr := orchestrator.NewManager(
		orchestrator.NewOrchestrator(capabilities, metricsCollector, logger),
		workerPool,
		eventBus,
		storage,
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		cfg.Timeouts.Orchestration,
	)

	// API servers
	httpServer := apihttp.NewServer(&apihttp.Config{
		Port:           cfg.HTTPPort,
		Service:        orchestratorMgr,
		Capabilities:   capabilities,
		Health:         workerPool.Health(),
		Limiter:        ratelimiter.New(cfg.RateLimit.TenantRPS, cfg.RateLimit.TenantBurst, cfg.RateLimit.IdleTTL),
		MetricsHandler: promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, orchestratorMgr, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}
	workerPool.Health().OnChange(grpcServer.SetServing)

	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("capability orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.Int("capabilities", capabilities.Len()))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	// Stop intake first, then cancel running work before draining the pool
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("capability orchestrator shut down complete")
}

// loadCapabilities registers the capabilities declared in the manifest, if any
func loadCapabilities(cfg *config.Config, reg *registry.Registry, logger *zap.Logger) error {
	if cfg.CapabilityManifest == "" {
		logger.Warn("no capability manifest configured")
		return nil
	}

	m, err := manifest.Load(cfg.CapabilityManifest)
	if err != nil {
		return err
	}

	deps := manifest.Dependencies{
		LLMModel:     cfg.LLM.DefaultModel,
		LLMMaxTokens: cfg.LLM.DefaultMaxTokens,
		HTTPClient:   &http.Client{},
		Logger:       logger,
	}
	if m.NeedsLLM() {
		client, err := llm.NewMessageClient(cfg.LLM.APIKey)
		if err != nil {
			return err
		}
		deps.LLMClient = client
	}

	return m.Register(reg, deps)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
