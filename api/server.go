// Package api exposes the HTTP trigger surface for scrape runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/pipeline"
	"github.com/aluiziolira/go-scrape-shop/scraper"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner executes one scrape-and-reconcile pass.
type Runner interface {
	Run(ctx context.Context, rc models.RunConfig) (*models.RunSummary, error)
}

// ScrapeResponse is the body of a completed POST /scrape.
type ScrapeResponse struct {
	Message           string             `json:"message"`
	RunID             string             `json:"run_id"`
	Scraped           int                `json:"scraped"`
	Updated           int                `json:"updated"`
	Summary           string             `json:"summary"`
	Run               *models.RunSummary `json:"run"`
	NotificationError string             `json:"notification_error,omitempty"`
}

// Server holds the handlers of the trigger surface.
type Server struct {
	cfg    *config.Config
	runner Runner
	logger *slog.Logger
}

// NewServer returns handlers that run scrapes through runner with defaults from cfg.
func NewServer(cfg *config.Config, runner Runner) *Server {
	return &Server{cfg: cfg, runner: runner, logger: slog.With("component", "api")}
}

// Router wires the routes and middleware. gatherer backs GET /metrics and may be nil.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", TokenHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthcheck", s.handleHealth)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(TokenAuth(s.cfg.APIToken))
		if s.cfg.RateLimitRPS > 0 {
			r.Use(NewRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateBurst).Middleware)
		}
		r.Post("/scrape", s.handleScrape)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	rc, err := s.runConfig(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.runner.Run(r.Context(), rc)
	var notifyErr *pipeline.NotifyError
	switch {
	case err == nil:
	case errors.As(err, &notifyErr) && summary != nil:
		s.logger.Warn("run persisted but notification failed", slog.Any("error", err))
	case errors.As(err, new(*scraper.PageFetchError)):
		respondError(w, http.StatusBadGateway, err.Error())
		return
	default:
		s.logger.Error("run failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ScrapeResponse{
		Message: "Scraping completed.",
		RunID:   summary.RunID,
		Scraped: summary.Scraped,
		Updated: summary.Updated,
		Summary: summary.Message,
		Run:     summary,
	}
	if notifyErr != nil {
		resp.NotificationError = notifyErr.Err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// runConfig builds the run configuration from query parameters over configured defaults.
func (s *Server) runConfig(r *http.Request) (models.RunConfig, error) {
	rc := s.cfg.RunConfig()
	query := r.URL.Query()

	raw := query.Get("page_count")
	if raw == "" {
		raw = query.Get("limit_pages")
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return rc, errors.New("page_count must be a positive integer")
		}
		if n > s.cfg.MaxPageCount {
			return rc, fmt.Errorf("page_count cannot exceed %d", s.cfg.MaxPageCount)
		}
		rc.PageCount = n
	}
	if proxy := query.Get("proxy"); proxy != "" {
		rc.Proxy = proxy
	}

	if err := config.ValidateRun(rc); err != nil {
		return rc, err
	}
	return rc, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Serve runs srv on ln until ctx is done, then shuts it down and waits up to
// shutdownTimeout for in-flight requests, including running scrapes, to finish.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
