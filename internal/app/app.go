// Package app initializes and runs the shortener service.
// It configures logging, storage, the redirect cache, authentication and
// routing, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/undefined7887/shortlink/internal/auth"
	"github.com/undefined7887/shortlink/internal/config"
	"github.com/undefined7887/shortlink/internal/db/jsondb"
	"github.com/undefined7887/shortlink/internal/db/memorycache"
	"github.com/undefined7887/shortlink/internal/db/memorystorage"
	"github.com/undefined7887/shortlink/internal/db/postgresdb"
	"github.com/undefined7887/shortlink/internal/db/rediscache"
	"github.com/undefined7887/shortlink/internal/keygen"
	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/logger"
	"github.com/undefined7887/shortlink/internal/router"
	"github.com/undefined7887/shortlink/internal/service"
	"github.com/undefined7887/shortlink/internal/statsrecorder"
	"github.com/undefined7887/shortlink/internal/user"
)

type storage interface {
	CreateUser(ctx context.Context, nickname, passwordHash string) (string, error)

	FindUserByNickname(ctx context.Context, nickname string) (*user.User, error)

	CreateLink(ctx context.Context, lnk *link.Link) error

	FindResolvableLink(ctx context.Context, linkID string) (*link.Link, error)

	FindOwnedLink(ctx context.Context, linkID, ownerID string) (*link.Link, error)

	ListLinksByOwner(ctx context.Context, ownerID string) ([]link.Link, error)

	SearchLinksByOwner(ctx context.Context, ownerID, substring string) ([]link.Link, error)

	RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error

	UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error

	DeleteLink(ctx context.Context, linkID, ownerID string) error

	Ping(ctx context.Context) error

	Close() error
}

type redirectCache interface {
	Get(ctx context.Context, linkID string) (string, bool, error)

	Set(ctx context.Context, linkID, url string, ttl time.Duration) error

	Invalidate(ctx context.Context, linkID string) error

	Close() error
}

const (
	storageTypeUnknown = iota
	storageTypePostgresql
	storageTypeFile
	storageTypeMemory
)

// App encapsulates the configuration, HTTP handler, storage and cache
// clients, and the background statistics recorder.
type App struct {
	cfg               *config.Config
	db                storage
	cache             redirectCache
	statsRecorder     *statsrecorder.StatsRecorder
	stopStatsRecorder context.CancelFunc
	httpHandler       http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage and the redirect cache
// - starting the access statistics recorder
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	app.cache, err = getCache(app.cfg)
	if err != nil {
		return nil, err
	}

	app.statsRecorder = statsrecorder.New(
		app.db,
		app.cfg.StatsQueueCapacity,
		app.cfg.StatsFlushInterval,
	)
	statsRecorderRunCtx, stopStatsRecorder := context.WithCancel(context.Background())
	app.stopStatsRecorder = stopStatsRecorder

	app.statsRecorder.Run(statsRecorderRunCtx)
	app.statsRecorder.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `app.statsRecorder.ListenErrors()`:", zap.Error(err))
	})

	linkService := service.New(
		app.db,
		app.cache,
		app.statsRecorder,
		keygen.New(app.cfg.CodeLength),
		service.WithMaxGenerateAttempts(app.cfg.MaxGenerateAttempts),
		service.WithCacheTimeout(app.cfg.CacheTimeout),
	)

	app.httpHandler = router.New(
		linkService,
		auth.New([]byte(app.cfg.JWTSigningKey), app.cfg.TokenTTL),
	)

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Flushing statistics and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.teardown()

			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.teardown()

	case err := <-serverErrCh:
		a.teardown()

		return fmt.Errorf("server error: %w", err)
	}
}

// teardown stops the statistics recorder, waits for its final flush and
// closes the cache and storage clients. It runs on every exit path of Run,
// including a failed server start.
func (a *App) teardown() error {
	a.stopStatsRecorder()
	a.statsRecorder.Wait()

	if err := a.cache.Close(); err != nil {
		logger.Log.Debugln("Error closing the redirect cache:", zap.Error(err))
	}

	return a.db.Close()
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return storageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return storageTypeFile
	}

	return storageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case storageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case storageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case storageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}

func getCache(cfg *config.Config) (redirectCache, error) {
	if cfg.RedisAddr == "" {
		return memorycache.New(), nil
	}

	return rediscache.New(
		context.Background(),
		cfg.RedisAddr,
		cfg.RedisPassword,
		cfg.RedisDatabase,
	)
}
