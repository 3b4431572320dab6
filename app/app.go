// Package app assembles the scrape pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aluiziolira/go-scrape-shop/cache"
	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/notify"
	"github.com/aluiziolira/go-scrape-shop/parser"
	"github.com/aluiziolira/go-scrape-shop/pipeline"
	"github.com/aluiziolira/go-scrape-shop/scraper"
	"github.com/aluiziolira/go-scrape-shop/storage"
)

// App holds the long-lived collaborators of the service.
type App struct {
	Pipeline *pipeline.Pipeline
	Metrics  *scraper.Metrics
	Cache    *cache.PriceCache
	Store    storage.Store
	Notifier notify.Notifier
}

// Option customises Build.
type Option func(*options)

type options struct {
	transport http.RoundTripper
}

// WithTransport routes catalog requests through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// Build validates cfg and wires fetcher, extractor, cache, store and notifier
// into a pipeline.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	metrics := scraper.NewMetrics()

	var fetcherOpts []scraper.FetcherOption
	if o.transport != nil {
		fetcherOpts = append(fetcherOpts, scraper.WithRoundTripper(o.transport))
	}
	fetcher, err := scraper.NewFetcher(cfg, metrics, fetcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialising fetcher: %w", err)
	}
	s := scraper.NewScraper(cfg, fetcher, parser.NewExtractor(parser.DefaultSelectors()), metrics)

	priceCache, err := cache.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("initialising cache: %w", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	notifier, err := notify.New(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initialising notifier: %w", err)
	}

	return &App{
		Pipeline: pipeline.NewPipeline(s, store, priceCache, notifier, metrics),
		Metrics:  metrics,
		Cache:    priceCache,
		Store:    store,
		Notifier: notifier,
	}, nil
}

// Close releases the store and the notifier.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Notifier.Close())
}

// NewLogger returns a text logger on a terminal and a JSON logger otherwise.
func NewLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
