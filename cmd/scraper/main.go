package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-shop/app"
	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always happens before exit.
func run() int {
	configPath := os.Getenv("SCRAPER_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}

	pages := flag.Int("pages", cfg.PageCount, "Catalog pages to scrape")
	proxy := flag.String("proxy", cfg.Proxy, "Proxy URL for catalog requests")
	parallelism := flag.Int("parallel", cfg.Parallelism, "Pages fetched concurrently")
	retryAttempts := flag.Int("retry-attempts", cfg.RetryAttempts, "Fetch attempts per page")
	retryBackoff := flag.Duration("retry-backoff", cfg.RetryBackoff, "Wait between fetch attempts")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-request timeout")
	baseURL := flag.String("base-url", cfg.BaseURL, "Storefront base URL")
	storageDriver := flag.String("storage", cfg.StorageDriver, "Storage driver: json, csv, or postgres")
	storagePath := flag.String("storage-path", cfg.StoragePath, "Record file for json and csv storage")
	notifier := flag.String("notifier", cfg.Notifier, "Notifier: console, webhook, or redis")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg.PageCount = *pages
	cfg.Proxy = *proxy
	cfg.Parallelism = *parallelism
	cfg.RetryAttempts = *retryAttempts
	cfg.RetryBackoff = *retryBackoff
	cfg.Timeout = *timeout
	cfg.BaseURL = *baseURL
	cfg.StorageDriver = *storageDriver
	cfg.StoragePath = *storagePath
	cfg.Notifier = *notifier
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, level := app.NewLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("close", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.PageCount),
		slog.String("storage", cfg.StorageDriver),
	)

	summary, runErr := a.Pipeline.Run(ctx, cfg.RunConfig())

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	code := exitCode(runErr)
	if code == 1 {
		slog.Error("scraping failed", slog.Any("error", runErr))
		return code
	}
	printSummary(summary)
	return code
}

// exitCode maps a run error to 0 (success), 2 (saved but not notified) or 1 (failed).
func exitCode(runErr error) int {
	var notifyErr *pipeline.NotifyError
	switch {
	case runErr == nil:
		return 0
	case errors.As(runErr, &notifyErr):
		return 2
	default:
		return 1
	}
}

func printSummary(summary *models.RunSummary) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Run:           %s\n", summary.RunID)
	fmt.Printf("  Pages:         %d\n", summary.Pages)
	fmt.Printf("  Scraped:       %d\n", summary.Scraped)
	fmt.Printf("  Updated:       %d\n", summary.Updated)
	fmt.Printf("  Stored:        %d\n", summary.Stored)
	fmt.Printf("  Duration:      %v\n", summary.FinishedAt.Sub(summary.StartedAt))
	fmt.Println(separator)
}
