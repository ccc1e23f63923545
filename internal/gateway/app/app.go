package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	cachedesc "github.com/VAC4EU/Codemapper-sub000/internal/cache/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/config"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/handler"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/server"
)

type App struct {
	server   *server.Server
	resolver *cachedesc.CachedResolver
	stores   *gatewayStores
	logger   logrus.FieldLogger
}

func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	table, err := config.LoadDescenders(cfg.DescendersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load descenders: %w", err)
	}

	// Dependencies
	stores, err := initStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backends := Backends{Terminology: stores.terminology}
	versions := cachedesc.Versions{}
	var vocabs handler.VocabularyLister
	if stores.nonNative != nil {
		backends.NonNative = stores.nonNative
		versions = append(versions, stores.nonNative)
		vocabs = stores.nonNative
	}
	versions = append(versions, stores.terminology)

	dispatcher, err := NewDispatcher(table, backends,
		descendants.WithLogger(logger),
		descendants.WithMetrics(descendants.NewMetrics(registry)),
	)
	if err != nil {
		_ = stores.close()
		return nil, err
	}
	logger.WithField("coding_systems", dispatcher.CodingSystems()).Info("descenders registered")

	resolver := cachedesc.NewCachedResolver(dispatcher, stores.cache, versions, cachedesc.CacheConfig{
		HotEntries: cfg.Cache.HotEntries,
		Logger:     logger,
		Registerer: registry,
	})

	// Routing & Server
	descendantsHandler := handler.NewDescendantsHandler(resolver, vocabs, logger)
	mux := server.NewMux(descendantsHandler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)
	srv := server.New(cfg.Port, mux, logger)

	return &App{
		server:   srv,
		resolver: resolver,
		stores:   stores,
		logger:   logger,
	}, nil
}

// Resolver is the cache-aware descendants resolver.
func (a *App) Resolver() *cachedesc.CachedResolver {
	return a.resolver
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the databases and the cache store.
func (a *App) Close() error {
	if a == nil || a.stores == nil {
		return nil
	}
	return a.stores.close()
}
