package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/referral-dashboard/internal/application/services"
	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/cache"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/ethereum"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/graph"
	"github.com/bimakw/referral-dashboard/internal/presentation/handlers"
	"github.com/bimakw/referral-dashboard/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting referral-dashboard API",
		zap.Int("port", cfg.API.Port),
		zap.Bool("use_indexed_source", cfg.Source.UseIndexed),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backends of the selected source only
	var (
		indexes  []repositories.UserIndex
		scanners []repositories.ChainHistoryScanner
		checkers = make(map[string]handlers.HealthChecker)
	)

	if cfg.Source.UseIndexed {
		for _, chain := range entities.Chains {
			chainCfg := cfg.Chain(string(chain))
			client := graph.NewClient(chain, chainCfg.GraphURL, cfg.Graph, logger)
			indexes = append(indexes, client)
			checkers[strings.ToLower(string(chain))+"_indexer"] = client
		}
	} else {
		for _, chain := range entities.Chains {
			chainCfg := cfg.Chain(string(chain))
			// An unreachable node only degrades its network per request
			client, err := ethereum.NewClient(chain, chainCfg, cfg.RPC, logger)
			if err != nil {
				logger.Fatal("Invalid chain node configuration",
					zap.String("chain", string(chain)),
					zap.Error(err),
				)
			}
			defer client.Close()

			scanners = append(scanners, ethereum.NewScanner(client, chain, chainCfg, cfg.Scan, logger))
			checkers[strings.ToLower(string(chain))+"_rpc"] = client
		}
	}

	source, err := services.NewHistorySource(cfg, indexes, scanners, logger)
	if err != nil {
		logger.Fatal("Failed to create history source", zap.Error(err))
	}

	// Connect to Redis cache (optional)
	var summaryCache services.SummaryCache
	var cacheChecker handlers.HealthChecker
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		} else {
			defer redisCache.Close()
			summaryCache = redisCache
			cacheChecker = redisCache
		}
	}

	// Create services
	referralService := services.NewReferralService(source, summaryCache, cfg.API.CacheTTL, logger)

	sessionManager := services.NewSessionManager(source, cfg.Session, logger)
	sessionManager.Start(ctx)
	defer sessionManager.Stop()

	var statusService *services.StatusService
	if cfg.Source.UseIndexed {
		statusService = services.NewStatusService(indexes, cfg.Status, logger)
		statusService.Start(ctx)
		defer statusService.Stop()
	}

	// Create handlers
	referralHandler := handlers.NewReferralHandler(referralService, logger)
	sessionHandler := handlers.NewSessionHandler(sessionManager, logger)
	statusHandler := handlers.NewStatusHandler(statusService, source.Source())
	healthHandler := handlers.NewHealthHandler(checkers, cacheChecker)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		referralHandler.RegisterRoutes(r)
		sessionHandler.RegisterRoutes(r)
		statusHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func setupLogger(level, format string) *zap.Logger {
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

	encoding := "json"
	if format == "console" {
		encoding = "console"
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
