package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/redis"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/migrations"
	"github.com/vadimbarashkov/shortlink/pkg/shortcode"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	pgclient "github.com/vadimbarashkov/shortlink/pkg/postgres"
	redisclient "github.com/vadimbarashkov/shortlink/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

type linkStore interface {
	GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error)
	FindActiveByURL(ctx context.Context, originalURL string, now time.Time) (*entity.Link, error)
	CreateIfAbsent(ctx context.Context, link *entity.Link) (*entity.Link, error)
	IncrementClicks(ctx context.Context, shortCode string) error
}

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg)

	store, closeStore, err := newLinkStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeStore()

	logger.Info("link store ready", slog.String("driver", cfg.Storage.Driver))

	linkUseCase := newLinkUseCase(cfg, store, logger)
	router := newRouter(cfg, linkUseCase, logger)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	err = g.Wait()

	// Clicks still in flight must land before the store is closed.
	linkUseCase.Wait()

	return err
}

func newLinkUseCase(cfg *config.Config, store linkStore, logger *httplog.Logger) *usecase.LinkUseCase {
	return usecase.New(
		store,
		shortcode.NewGenerator(cfg.Shortlink.CodeLength),
		usecase.WithMaxAttempts(cfg.Shortlink.MaxAttempts),
		usecase.WithClickTimeout(cfg.Shortlink.ClickTimeout),
		usecase.WithLogger(logger.Logger),
		usecase.WithReservedCodes(delivery.ReservedCodes...),
	)
}

// newRouter exposes the link use case through the HTTP router.
func newRouter(cfg *config.Config, linkUseCase *usecase.LinkUseCase, logger *httplog.Logger) http.Handler {
	return delivery.NewRouter(
		logger,
		linkUseCase,
		delivery.WithBaseURL(cfg.Shortlink.BaseURL),
		delivery.WithRequestTimeout(cfg.HTTPServer.RequestTimeout),
		delivery.WithAllowedOrigins(cfg.HTTPServer.CORSAllowedOrigins...),
	)
}

func newLogger(cfg *config.Config) *httplog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	return httplog.NewLogger("shortlink", httplog.Options{
		LogLevel:        level,
		JSON:            cfg.Env != config.EnvDev,
		Concise:         cfg.Env == config.EnvDev,
		QuietDownRoutes: []string{"/ping"},
		QuietDownPeriod: time.Minute,
		Tags: map[string]string{
			"env": cfg.Env,
		},
	})
}

func newLinkStore(ctx context.Context, cfg *config.Config) (linkStore, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := pgclient.New(
			ctx,
			cfg.Postgres.DSN(),
			pgclient.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			pgclient.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			pgclient.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			pgclient.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			pgclient.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := pgclient.RunMigrations(migrations.FS, cfg.Postgres.DSN()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return postgres.NewLinkRepository(db), db.Close, nil

	case config.DriverRedis:
		client, err := redisclient.New(
			ctx,
			cfg.Redis.Addr,
			redisclient.WithPassword(cfg.Redis.Password),
			redisclient.WithDB(cfg.Redis.DB),
			redisclient.WithPoolSize(cfg.Redis.PoolSize),
			redisclient.WithMinIdleConns(cfg.Redis.MinIdleConns),
			redisclient.WithDialTimeout(cfg.Redis.DialTimeout),
			redisclient.WithReadTimeout(cfg.Redis.ReadTimeout),
			redisclient.WithWriteTimeout(cfg.Redis.WriteTimeout),
			redisclient.WithConnectTimeout(cfg.Redis.ConnectTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		repo := redis.NewLinkRepository(
			client,
			redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redis.WithRetention(cfg.Redis.Retention),
		)

		return repo, client.Close, nil

	case config.DriverMemory:
		return memory.NewLinkRepository(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
