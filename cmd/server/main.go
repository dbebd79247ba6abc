package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/config"
	"github.com/iliyamo/tasksphere/internal/database"
	"github.com/iliyamo/tasksphere/internal/handler"
	"github.com/iliyamo/tasksphere/internal/logging"
	"github.com/iliyamo/tasksphere/internal/metrics"
	"github.com/iliyamo/tasksphere/internal/middleware"
	"github.com/iliyamo/tasksphere/internal/queue"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/reset"
	"github.com/iliyamo/tasksphere/internal/router"
	"github.com/iliyamo/tasksphere/internal/storage"
	"github.com/iliyamo/tasksphere/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional: without it rate limiting and caching are off.
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and response cache disabled", zap.String("addr", cfg.Redis.Address()))
	} else {
		defer rdb.Close()
	}

	m := metrics.New()

	engine, err := token.NewEngine([]byte(cfg.JWTSecret), cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("token engine: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	mailer := &queue.FileMailer{Dir: cfg.MailOutboxDir}
	var notifier reset.Notifier = queue.Direct{Mailer: mailer, LinkBase: cfg.ResetLinkBase}
	if cfg.RabbitMQURL != "" {
		notifier = queue.NewPublisher(cfg.RabbitMQURL, cfg.ResetLinkBase, logger, m)
		go func() {
			if err := queue.StartResetMailer(ctx, cfg.RabbitMQURL, mailer, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reset mailer stopped", zap.Error(err))
			}
		}()
	}

	users := repository.NewUserRepo(db)
	projects := repository.NewProjectRepo(db)
	tasks := repository.NewTaskRepo(db)
	notes := repository.NewNoteRepo(db)
	docs := repository.NewDocumentRepo(db)

	resets := reset.NewManager(users, notifier,
		reset.WithWindow(cfg.ResetTokenWindow),
		reset.WithBcryptCost(cfg.BcryptCost),
		reset.WithLogger(logger.Named("reset")),
		reset.WithRecorder(m),
	)

	authH, err := handler.NewAuthHandler(users, engine, resets, cfg.BcryptCost, logger)
	if err != nil {
		return fmt.Errorf("auth handler: %w", err)
	}

	e := router.New(router.Handlers{
		Auth:     authH,
		Projects: handler.NewProjectHandler(projects, users, docs, blobs, cfg.Storage.MaxUploadBytes, logger),
		Tasks:    handler.NewTaskHandler(projects, tasks, logger),
		Notes:    handler.NewNoteHandler(projects, tasks, notes),
		Users:    handler.NewUserHandler(users),
		Health:   handler.NewHealthHandler(db),
		Metrics:  m.Handler(),
	}, router.Options{
		Tokens:         engine,
		Gate:           m,
		Log:            logger,
		Instrument:     m.Middleware(),
		AuthLimiter:    middleware.NewTokenBucket(cfg.RateLimit, rdb, logger),
		SearchCache:    middleware.NewRedisCache(cfg.Cache, rdb),
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	resets.Wait()
	return nil
}

// newBlobStore picks S3 when a bucket is configured, the local disk otherwise.
func newBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.BlobStore, error) {
	if cfg.S3.Bucket != "" {
		s, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		logger.Info("documents stored in s3", zap.String("bucket", cfg.S3.Bucket))
		return s, nil
	}
	s, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	logger.Info("documents stored on disk", zap.String("dir", cfg.UploadDir))
	return s, nil
}
