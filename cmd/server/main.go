package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kasirbill/backend/internal/analytics"
	"kasirbill/backend/internal/cache"
	"kasirbill/backend/internal/config"
	"kasirbill/backend/internal/logging"
	"kasirbill/backend/internal/metrics"
	"kasirbill/backend/internal/service"
	"kasirbill/backend/internal/store"
	"kasirbill/backend/internal/store/memory"
	pgstore "kasirbill/backend/internal/store/postgres"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kasirbill",
	Short:         "Billing backend for the store till",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), applySchema)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&applySchema, "apply-schema", false, "apply the Postgres schema on startup")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyticsCmd)
}

var applySchema bool

// app is the wired set of components shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	repo    store.Repository
	service *service.Service
	closers []func() error
}

func buildApp(ctx context.Context, cfg config.Config, withSchema bool) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(initCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if withSchema {
			if err := pg.ApplySchema(initCtx); err != nil {
				a.close()
				return nil, fmt.Errorf("apply schema: %w", err)
			}
			logger.Info("schema applied")
		}
		a.repo = pg
		logger.Info("repository ready", zap.String("kind", "postgres"))
	} else {
		a.repo = memory.NewSeeded(logger)
		logger.Info("repository ready", zap.String("kind", "memory"))
	}

	analyticsCache := cache.AnalyticsCache(cache.NoopAnalyticsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAnalyticsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(initCtx); err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
			_ = redisCache.Close()
		} else {
			analyticsCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			logger.Info("analytics cache ready", zap.String("kind", "redis"))
		}
	}

	location, err := cfg.AnalyticsLocation()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("analytics timezone %q: %w", cfg.AnalyticsTimezone, err)
	}

	engine := analytics.NewEngine(a.repo, analytics.Options{
		Cache:    analyticsCache,
		CacheTTL: time.Duration(cfg.AnalyticsCacheTTLSeconds) * time.Second,
		Location: location,
		Logger:   logger.Named("analytics"),
		Metrics:  a.metrics,
	})
	a.service = service.New(a.repo, engine, service.Options{
		AllowOversell: cfg.AllowOversell,
		Logger:        logger,
		Metrics:       a.metrics,
	})
	return a, nil
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
