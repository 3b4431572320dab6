// Package pipeline runs a full scrape-and-reconcile pass over the storefront catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/scraper"
	"github.com/google/uuid"
)

// PageScraper returns the products of pages 1..rc.PageCount in page order.
type PageScraper interface {
	ScrapePages(ctx context.Context, rc models.RunConfig) ([]models.Product, error)
}

// Store loads and saves the whole record set.
type Store interface {
	Load(ctx context.Context) ([]models.Product, error)
	Save(ctx context.Context, products []models.Product) error
}

// Cache is the process-lifetime price cache.
type Cache interface {
	PriceLookup
	Apply(updates map[string]float64)
}

// Notifier delivers the run summary.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// NotifyError reports a run whose data was persisted but whose summary could not be delivered.
type NotifyError struct {
	Err error
}

func (e *NotifyError) Error() string {
	return fmt.Errorf("notify: %w", e.Err).Error()
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Pipeline coordinates scraping, reconciliation, persistence and notification.
// Runs are serialized so the cache and the store are never mutated concurrently.
type Pipeline struct {
	scraper  PageScraper
	store    Store
	cache    Cache
	notifier Notifier
	metrics  *scraper.Metrics
	logger   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewPipeline wires the run collaborators together.
func NewPipeline(s PageScraper, store Store, cache Cache, notifier Notifier, metrics *scraper.Metrics) *Pipeline {
	return &Pipeline{
		scraper:  s,
		store:    store,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		logger:   slog.With("component", "pipeline"),
		now:      time.Now,
	}
}

// SummaryMessage renders the notification text for a run.
func SummaryMessage(scraped, updated int) string {
	return fmt.Sprintf("Scraped %d products. Updated %d in DB.", scraped, updated)
}

// Run executes one scrape-and-reconcile pass. A page that exhausts its retries
// aborts the run before anything is saved or sent.
func (p *Pipeline) Run(ctx context.Context, rc models.RunConfig) (*models.RunSummary, error) {
	if err := config.ValidateRun(rc); err != nil {
		p.metrics.ObserveRun("invalid", 0)
		return nil, fmt.Errorf("run config: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	summary := &models.RunSummary{
		RunID:     uuid.New().String(),
		Pages:     rc.PageCount,
		StartedAt: p.now(),
	}
	logger := p.logger.With(slog.String("run_id", summary.RunID))
	logger.Info("run started",
		slog.Int("pages", rc.PageCount),
		slog.Int("retry_attempts", rc.RetryAttempts),
		slog.Duration("retry_backoff", rc.RetryBackoff),
		slog.Bool("proxy", rc.Proxy != ""),
	)

	existing, err := p.store.Load(ctx)
	if err != nil {
		p.metrics.ObserveRun("load_failed", 0)
		return nil, fmt.Errorf("load records: %w", err)
	}

	scraped, err := p.scraper.ScrapePages(ctx, rc)
	if err != nil {
		var pageErr *scraper.PageFetchError
		if errors.As(err, &pageErr) {
			p.metrics.ObserveRun("fetch_failed", 0)
			logger.Error("run aborted, nothing persisted",
				slog.Int("page", pageErr.Page),
				slog.Int("attempts", pageErr.Attempts),
				slog.Any("error", err),
			)
		} else {
			p.metrics.ObserveRun("aborted", 0)
		}
		return nil, fmt.Errorf("scrape pages: %w", err)
	}

	result := Reconcile(existing, p.cache, scraped)

	if err := p.store.Save(ctx, result.Merged); err != nil {
		p.metrics.ObserveRun("save_failed", 0)
		return nil, fmt.Errorf("save records: %w", err)
	}
	p.cache.Apply(result.CacheUpdates)

	summary.Scraped = len(scraped)
	summary.Updated = result.Updated
	summary.Stored = len(result.Merged)
	summary.Message = SummaryMessage(summary.Scraped, summary.Updated)
	summary.FinishedAt = p.now()
	p.metrics.ObserveRun("success", summary.Updated)

	logger.Info("run finished",
		slog.Int("scraped", summary.Scraped),
		slog.Int("updated", summary.Updated),
		slog.Int("stored", summary.Stored),
		slog.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if err := p.notifier.Send(ctx, summary.Message); err != nil {
		logger.Error("notification failed", slog.Any("error", err))
		return summary, &NotifyError{Err: err}
	}
	return summary, nil
}
