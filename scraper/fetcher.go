package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/gocolly/colly/v2"
)

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithRoundTripper replaces the HTTP transport of every collector the fetcher
// builds. Proxies are ignored when it is set; the round tripper owns routing.
func WithRoundTripper(rt http.RoundTripper) FetcherOption {
	return func(f *Fetcher) {
		f.roundTripper = rt
	}
}

// Fetcher issues one GET per call through a colly collector. It never retries.
type Fetcher struct {
	cfg          *config.Config
	host         string
	metrics      *Metrics
	roundTripper http.RoundTripper

	mu         sync.Mutex
	collectors map[string]*colly.Collector // keyed by proxy URL, "" for direct
}

// NewFetcher builds a fetcher restricted to the configured storefront host.
func NewFetcher(cfg *config.Config, metrics *Metrics, opts ...FetcherOption) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	f := &Fetcher{
		cfg:        cfg,
		host:       parsed.Hostname(),
		metrics:    metrics,
		collectors: make(map[string]*colly.Collector),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch returns the body of rawURL. Any failure, including a non-2xx status, is
// reported as a *TransportError. colly takes no context, so ctx is only checked
// before the request; an in-flight request runs until it completes or hits the
// configured timeout.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, proxy string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{URL: rawURL, Err: ErrTimeout{Err: err}}
	}

	collector, err := f.collectorFor(proxy)
	if err != nil {
		return "", &TransportError{URL: rawURL, Err: err}
	}

	reqCtx := colly.NewContext()
	start := time.Now()
	f.metrics.IncRequest("started")

	err = collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	f.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		status, _ := reqCtx.GetAny("status").(int)
		classified := classifyError(err, status)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(errorTypeLabel(classified))
		return "", &TransportError{URL: rawURL, StatusCode: status, Err: classified}
	}

	status, _ := reqCtx.GetAny("status").(int)
	if status < http.StatusOK || status > 299 {
		classified := classifyError(fmt.Errorf("http status %d", status), status)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(errorTypeLabel(classified))
		return "", &TransportError{URL: rawURL, StatusCode: status, Err: classified}
	}

	body, _ := reqCtx.GetAny("body").([]byte)
	f.metrics.IncRequest("succeeded")
	return string(body), nil
}

func (f *Fetcher) collectorFor(proxy string) (*colly.Collector, error) {
	if f.roundTripper != nil {
		proxy = ""
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.collectors[proxy]; ok {
		return c, nil
	}
	c, err := f.newCollector(proxy)
	if err != nil {
		return nil, err
	}
	f.collectors[proxy] = c
	return c, nil
}

func (f *Fetcher) newCollector(proxy string) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(f.host),
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// Every status reaches OnResponse; Fetch decides what counts as a failure.
	collector.ParseHTTPErrorResponse = true

	if f.roundTripper != nil {
		collector.WithTransport(f.roundTripper)
	} else {
		proxyFunc := http.ProxyFromEnvironment
		if proxy != "" {
			if err := config.ValidateProxy(proxy); err != nil {
				return nil, err
			}
			proxyURL, _ := url.Parse(proxy)
			proxyFunc = http.ProxyURL(proxyURL)
		}
		collector.WithTransport(&http.Transport{
			Proxy: proxyFunc,
			DialContext: (&net.Dialer{
				Timeout:   f.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put("status", r.StatusCode)
		}
	})
	return collector, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
