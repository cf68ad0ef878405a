package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/internal/catalog"
	"github.com/MarkoPoloResearchLab/loyalty/internal/httpapi"
	"github.com/MarkoPoloResearchLab/loyalty/internal/oplog"
	"github.com/MarkoPoloResearchLab/loyalty/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/loyalty/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/loyalty/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

type application struct {
	service *loyalty.Service
	clock   func() int64
	cleanup []func()
}

func (app *application) Close() {
	for index := len(app.cleanup) - 1; index >= 0; index-- {
		app.cleanup[index]()
	}
}

func runServe(parent context.Context, cfg *runtimeConfig) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.HTTP.SessionSigningKey),
		Issuer:     cfg.HTTP.SessionIssuer,
		CookieName: cfg.HTTP.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	return httpapi.Serve(ctx, cfg.HTTP, httpapi.Dependencies{
		Service:   app.service,
		Validator: validator,
		Logger:    logger,
		Clock:     app.clock,
	})
}

// buildApplication opens the stores, loads the catalog, and wires the service.
func buildApplication(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (*application, error) {
	app := &application{clock: func() int64 { return time.Now().UTC().Unix() }}

	gormDB, closeDatabase, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	app.cleanup = append(app.cleanup, func() { _ = closeDatabase() })
	if err := prepareSchema(gormDB); err != nil {
		app.Close()
		return nil, err
	}
	store := gormstore.New(gormDB)

	counters, err := openCounters(ctx, cfg, driver, store, app, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	policy := loyalty.DefaultRateLimitPolicy()
	policy.FailOpen = cfg.RateLimitFailOpen
	options := []loyalty.ServiceOption{
		loyalty.WithOperationLogger(oplog.New(logger)),
		loyalty.WithRateLimitPolicy(policy),
	}
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			app.Close()
			return nil, err
		}
		if err := store.SaveRewards(ctx, loaded.Rewards); err != nil {
			app.Close()
			return nil, fmt.Errorf("save rewards: %w", err)
		}
		options = append(options, loyalty.WithLocationRegistry(loaded.Locations))
		logger.Info("catalog loaded",
			zap.String("path", cfg.CatalogPath),
			zap.Int("rewards", len(loaded.Rewards)),
		)
	}

	service, err := loyalty.NewService(store, counters, app.clock, options...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("loyalty service init: %w", err)
	}
	app.service = service
	return app, nil
}

// openCounters prefers Redis, then a pgx pool on Postgres, then the gorm store.
func openCounters(ctx context.Context, cfg *runtimeConfig, driver string, store *gormstore.Store, app *application, logger *zap.Logger) (loyalty.CounterStore, error) {
	switch {
	case cfg.RedisURL != "":
		counters, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis open: %w", err)
		}
		app.cleanup = append(app.cleanup, func() { _ = counters.Close() })
		logger.Info("rate-limit counters", zap.String("backend", "redis"))
		return counters, nil
	case driver == driverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("pgx pool: %w", err)
		}
		app.cleanup = append(app.cleanup, pool.Close)
		logger.Info("rate-limit counters", zap.String("backend", "postgres"))
		return pgstore.New(pool), nil
	default:
		logger.Info("rate-limit counters", zap.String("backend", driver))
		return store, nil
	}
}
