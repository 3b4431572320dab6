package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-shop/api"
	"github.com/aluiziolira/go-scrape-shop/app"
	"github.com/aluiziolira/go-scrape-shop/config"
)

// shutdownTimeout bounds how long a running scrape may hold up shutdown.
const shutdownTimeout = 2 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Getenv("SCRAPER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}

	listenAddr := flag.String("listen", cfg.ListenAddr, "HTTP listen address")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")
	flag.Parse()
	cfg.ListenAddr = *listenAddr
	cfg.Verbose = *verbose

	logger, level := app.NewLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if cfg.APIToken == "" {
		slog.Error("SCRAPER_API_TOKEN must be set")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("initialising service", slog.Any("error", err))
		return 1
	}
	// Runs after Serve has drained in-flight scrapes.
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("close", slog.Any("error", err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		slog.Error("listen", slog.Any("error", err))
		return 1
	}

	server := &http.Server{
		Handler:     api.NewServer(cfg, a.Pipeline).Router(a.Metrics.Registry),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("server starting", slog.String("addr", ln.Addr().String()))
	if err := api.Serve(ctx, server, ln, shutdownTimeout); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		return 1
	}
	slog.Info("server stopped")
	return 0
}
