package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quicksubmit/backend/internal/api"
	"github.com/quicksubmit/backend/internal/auth"
	"github.com/quicksubmit/backend/internal/config"
	"github.com/quicksubmit/backend/internal/domain"
	"github.com/quicksubmit/backend/internal/metrics"
	"github.com/quicksubmit/backend/internal/middleware"
	"github.com/quicksubmit/backend/internal/repository"
	"github.com/quicksubmit/backend/internal/storage"
)

const version = "1.0.0"

// recordStore is what the services need from either database backend
type recordStore interface {
	domain.SubmissionRepository
	domain.PublicationRepository
	domain.TemporaryFileRepository
	api.Pinger
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting cover image service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Type),
	)

	ctx := context.Background()

	// Initialize database
	repo, closeRepo, err := initRepository(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer closeRepo()

	logger.Info("Connected to database")

	// Initialize storage
	tempStorage, err := storage.NewLocalFileStorage(cfg.Upload.TempDir)
	if err != nil {
		logger.Fatal("Failed to initialize temporary file storage", zap.Error(err))
	}

	publicFiles, publicDir, err := initPublicStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize public file storage", zap.Error(err))
	}

	// Initialize services
	temporaryFiles := domain.NewTemporaryFileService(repo, tempStorage, cfg.Upload.TTL)
	coverImages := domain.NewCoverImageService(repo, repo, temporaryFiles, publicFiles)

	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret)
	locales := middleware.NewLocaleNegotiator(cfg.Locale.Supported, cfg.Locale.Default)

	// Initialize handlers
	coverImageHandler := api.NewCoverImageHandler(coverImages, temporaryFiles, m, cfg.Upload.MaxSize, logger)
	healthHandler := api.NewHealthHandler(repo, version, logger)

	// Initialize router
	router := api.NewRouter(coverImageHandler, healthHandler, m, jwtManager, locales, cfg.CORS.AllowedOrigins, publicDir, logger)
	r := router.Setup()

	// Start cleanup worker
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	temporaryFiles.StartCleanupWorker(cleanupCtx, 1*time.Hour, func(err error) {
		logger.Error("Temporary file cleanup failed", zap.Error(err))
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel cleanup worker
	cleanupCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func initRepository(ctx context.Context, cfg config.DatabaseConfig) (recordStore, func(), error) {
	if cfg.Driver == "sqlite" {
		repo, err := repository.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}

	pool, err := initDatabase(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresRepository(pool), pool.Close, nil
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// initPublicStore returns the public file store and, for local storage, the
// directory the router serves it from
func initPublicStore(ctx context.Context, cfg config.StorageConfig) (storage.PublicFileStore, string, error) {
	if cfg.Type == "s3" {
		store, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	store, err := storage.NewLocalPublicStore(cfg.PublicDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.PublicDir, nil
}
