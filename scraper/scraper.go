package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"golang.org/x/sync/errgroup"
)

// PageFetcher retrieves the raw HTML of one URL, optionally through a proxy.
type PageFetcher interface {
	Fetch(ctx context.Context, url, proxy string) (string, error)
}

// ProductExtractor turns listing HTML into product records.
type ProductExtractor interface {
	Extract(html string) ([]models.Product, error)
}

// Scraper fetches catalog pages with bounded retries and extracts their products.
type Scraper struct {
	baseURL     string
	parallelism int
	fetcher     PageFetcher
	extractor   ProductExtractor
	Metrics     *Metrics
	logger      *slog.Logger

	// sleep waits out the retry backoff; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScraper builds a scraper for the storefront configured in cfg.
func NewScraper(cfg *config.Config, fetcher PageFetcher, extractor ProductExtractor, metrics *Metrics) *Scraper {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Scraper{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		parallelism: parallelism,
		fetcher:     fetcher,
		extractor:   extractor,
		Metrics:     metrics,
		logger:      slog.With("component", "scraper"),
		sleep:       sleepContext,
	}
}

// PageURL maps a 1-based page number to its listing URL.
func (s *Scraper) PageURL(page int) string {
	if page <= 1 {
		return s.baseURL + "/shop/"
	}
	return fmt.Sprintf("%s/shop/page/%d/", s.baseURL, page)
}

// ScrapePages scrapes pages 1..rc.PageCount and returns their products in page
// order. The first page that exhausts its retries cancels the rest and its
// *PageFetchError is returned.
func (s *Scraper) ScrapePages(ctx context.Context, rc models.RunConfig) ([]models.Product, error) {
	if rc.PageCount <= 0 {
		return []models.Product{}, nil
	}
	slots := make([][]models.Product, rc.PageCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for page := 1; page <= rc.PageCount; page++ {
		// g.Go blocks while every slot is busy; stop queueing once a page has failed.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			products, err := s.ScrapePage(gctx, rc, page)
			if err != nil {
				return err
			}
			slots[page-1] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, slot := range slots {
		total += len(slot)
	}
	out := make([]models.Product, 0, total)
	for _, slot := range slots {
		out = append(out, slot...)
	}
	return out, nil
}

// ScrapePage fetches one page, retrying transport failures up to rc.RetryAttempts
// times with a fixed backoff, and extracts its products.
func (s *Scraper) ScrapePage(ctx context.Context, rc models.RunConfig, page int) ([]models.Product, error) {
	pageURL := s.PageURL(page)
	attempts := rc.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		html, err := s.fetcher.Fetch(ctx, pageURL, rc.Proxy)
		if err == nil {
			s.Metrics.IncPage()
			return s.extract(page, pageURL, html), nil
		}

		lastErr = err
		s.logger.Warn("page fetch failed",
			slog.Int("page", page),
			slog.String("url", pageURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			s.Metrics.IncRetries()
			if err := s.sleep(ctx, rc.RetryBackoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, &PageFetchError{Page: page, URL: pageURL, Attempts: attempts, Err: lastErr}
}

func (s *Scraper) extract(page int, pageURL, html string) []models.Product {
	products, err := s.extractor.Extract(html)
	if err != nil {
		s.Metrics.IncExtractionError()
		s.logger.Error("page extraction failed, treating page as empty",
			slog.Int("page", page),
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return []models.Product{}
	}
	if len(products) == 0 {
		s.logger.Debug("no products on page", slog.Int("page", page), slog.String("url", pageURL))
	}
	s.Metrics.AddItems(len(products))
	return products
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
