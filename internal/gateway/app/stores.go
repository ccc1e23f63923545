package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	cachedesc "github.com/VAC4EU/Codemapper-sub000/internal/cache/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/config"
	"github.com/VAC4EU/Codemapper-sub000/internal/repository/nonnative"
	"github.com/VAC4EU/Codemapper-sub000/internal/repository/terminology"
)

type gatewayStores struct {
	terminology *terminology.PostgresStore
	nonNative   *nonnative.PostgresStore
	cache       cachedesc.Store
	closers     []func() error
}

func initStores(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (_ *gatewayStores, err error) {
	stores := &gatewayStores{}
	defer func() {
		if err != nil {
			_ = stores.close()
		}
	}()

	termDB, err := openDB(ctx, cfg.TerminologyDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open terminology db: %w", err)
	}
	stores.closers = append(stores.closers, termDB.Close)
	stores.terminology = terminology.NewPostgresStore(termDB)

	var appDB *sql.DB
	if strings.TrimSpace(cfg.CodemapperDatabaseURL) != "" {
		appDB, err = openDB(ctx, cfg.CodemapperDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open codemapper db: %w", err)
		}
		stores.closers = append(stores.closers, appDB.Close)
		stores.nonNative = nonnative.NewPostgresStore(appDB)
	} else {
		logger.Warn("codemapper database not configured: non-native vocabularies disabled")
	}

	cache, closer, err := chooseCacheStore(cfg.Cache, appDB, logger)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		stores.closers = append(stores.closers, closer)
	}
	stores.cache = cache
	return stores, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// chooseCacheStore returns the configured cache store and an optional
// closer. The "none" backend gives a nil store, which disables caching.
func chooseCacheStore(cfg config.CacheConfig, appDB *sql.DB, logger logrus.FieldLogger) (cachedesc.Store, func() error, error) {
	switch cfg.Backend {
	case "postgres":
		if appDB == nil {
			return nil, nil, fmt.Errorf("postgres cache backend needs the codemapper db")
		}
		logger.Info("descendants cache: postgres")
		return cachedesc.NewPostgresStore(appDB), nil, nil
	case "badger":
		bcfg := cachedesc.DefaultBadgerConfig(cfg.BadgerPath)
		bcfg.Logger = logger
		store, err := cachedesc.OpenBadger(bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger cache: %w", err)
		}
		logger.WithField("path", cfg.BadgerPath).Info("descendants cache: badger")
		return store, store.Close, nil
	case "memory":
		logger.Info("descendants cache: in-memory")
		return cachedesc.NewMemoryStore(), nil, nil
	case "none", "":
		logger.Info("descendants cache: disabled")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// close runs the closers in reverse order.
func (s *gatewayStores) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
