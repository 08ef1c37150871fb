package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dropforge/dropforge/internal/admission"
	"github.com/dropforge/dropforge/internal/config"
	"github.com/dropforge/dropforge/internal/identity"
	"github.com/dropforge/dropforge/internal/security"
	"github.com/dropforge/dropforge/internal/server"
	"github.com/dropforge/dropforge/internal/storage"
	"github.com/dropforge/dropforge/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	store, err := newStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create counter store", zap.Error(err))
	}

	db, err := newDB(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	monitor := security.NewMonitor(store, security.Config{
		RecentCap:           cfg.Security.RecentCap,
		PerIPCap:            cfg.Security.PerIPCap,
		PerUserCap:          cfg.Security.PerUserCap,
		Retention:           cfg.Security.Retention,
		BruteForceThreshold: cfg.Security.BruteForceThreshold,
		BruteForceWindow:    cfg.Security.BruteForceWindow,
		AbuseThreshold:      cfg.Security.AbuseThreshold,
		AbuseWindow:         cfg.Security.AbuseWindow,
	}, zapLogger)

	limiter := admission.NewSlidingWindowLimiter(store, cfg.RateLimit.WindowGrace, zapLogger)
	registry := admission.NewRegistry(store, zapLogger)
	gate := admission.NewGate(admission.GateConfig{
		Enabled: cfg.RateLimit.Enabled,
		Limits: map[admission.Category]admission.Limits{
			admission.CategoryAuth:   {PerMinute: cfg.RateLimit.Auth.PerMinute, PerHour: cfg.RateLimit.Auth.PerHour},
			admission.CategoryAPI:    {PerMinute: cfg.RateLimit.API.PerMinute, PerHour: cfg.RateLimit.API.PerHour},
			admission.CategoryUpload: {PerMinute: cfg.RateLimit.Upload.PerMinute, PerHour: cfg.RateLimit.Upload.PerHour},
			admission.CategoryAdmin:  {PerMinute: cfg.RateLimit.Admin.PerMinute, PerHour: cfg.RateLimit.Admin.PerHour},
		},
		BlockDuration: cfg.RateLimit.BlockDuration,
	}, limiter, registry, monitor, zapLogger)

	identitySvc, err := identity.NewService(zapLogger, db, monitor, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		zapLogger.Fatal("Failed to create identity service", zap.Error(err))
	}

	apiServer := server.NewServer(zapLogger, gate, identitySvc, monitor, cfg.RateLimit.BlockDuration)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router(),
	}

	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("Forced shutdown", zap.Error(err))
	}

	if rs, ok := store.(*storage.RedisStore); ok {
		if err := rs.Close(); err != nil {
			zapLogger.Error("Failed to close store", zap.Error(err))
		}
	}
	zapLogger.Info("Server exited properly")
}

// newStore selects the shared counter store backend. Redis is the production
// choice; memory keeps all state in process and exists for development.
func newStore(cfg *config.Config, zapLogger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		zapLogger.Warn("Using in-memory counter store; state is not shared across processes")
		return storage.NewMemoryStore(), nil
	default:
		store := storage.NewRedisStore(storage.RedisOptions{
			Addr:      cfg.Storage.Addr,
			Password:  cfg.Storage.Password,
			DB:        cfg.Storage.DB,
			OpTimeout: cfg.Storage.OpTimeout,
		})
		// An unreachable store is not fatal: admission fails open and
		// recovers when the store returns.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.OpTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			zapLogger.Warn("Counter store unreachable at startup, admission will fail open", zap.Error(err))
		}
		return store, nil
	}
}

func newDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	}
}
