package cmd

import (
	"fmt"
	"net/http"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/config"
	"github.com/conneroisu/boxrender/internal/fetch"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/metrics"
	"github.com/conneroisu/boxrender/internal/renderer"
	"github.com/conneroisu/boxrender/internal/store"
)

// app holds the components shared by serve and render
type app struct {
	logger   *logging.ServiceLogger
	metrics  *metrics.Metrics
	cache    cache.Store
	store    store.Store
	dir      *store.DirStore
	renderer *renderer.Renderer

	closers []func() error
}

// newApp wires the components described by cfg
func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		logger:  logging.NewLogger(cfg.Log.LoggerConfig()),
		metrics: metrics.New(),
	}

	st, closeCache, err := cache.Open(cfg.Cache.Options())
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.cache = st
	a.closers = append(a.closers, closeCache)

	switch cfg.Store.Kind {
	case store.KindDir:
		a.dir, err = store.NewDirStore(cfg.Store.Dir, a.logger)
		if err != nil {
			_ = closeCache()
			return nil, err
		}
		a.store = a.dir
	default:
		client := &http.Client{Timeout: cfg.Fetch.Timeout}
		a.store = store.NewGistStore(client, cfg.Store.APIURL, cfg.Store.UserAgent)
	}

	a.renderer = newRenderer(cfg, a.dir, a.cache, a.logger, a.metrics)
	return a, nil
}

func newRenderer(cfg *config.Config, dir *store.DirStore, st cache.Store, logger logging.Logger, m *metrics.Metrics) *renderer.Renderer {
	client := store.NewHTTPClient(cfg.Fetch.Timeout, dir)
	return renderer.New(fetch.NewGateway(client, st, logger, m), logger, m)
}

// Close waits for pending cache writes, then releases the cache
func (a *app) Close() error {
	a.renderer.Wait()

	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
