package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/parser"
	"github.com/jarcoal/httpmock"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test/"
	s := NewScraper(cfg, nil, nil, nil)

	if got := s.PageURL(1); got != "http://shop.test/shop/" {
		t.Fatalf("page 1 url = %q", got)
	}
	if got := s.PageURL(3); got != "http://shop.test/shop/page/3/" {
		t.Fatalf("page 3 url = %q", got)
	}
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusBadGateway, expected: "other"},
		{status: http.StatusServiceUnavailable, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.BaseURL = "http://shop.test"

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://shop.test/shop/", httpmock.NewStringResponder(tt.status, ""))

			f, err := NewFetcher(cfg, NewMetrics(), WithRoundTripper(transport))
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}

			_, err = f.Fetch(context.Background(), "http://shop.test/shop/", "")
			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if transportErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", transportErr.StatusCode, tt.status)
			}
			if got := errorTypeLabel(transportErr); got != tt.expected {
				t.Fatalf("label = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetcherReturnsBody(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/shop/", htmlResponder("<html>ok</html>"))

	f, err := NewFetcher(cfg, NewMetrics(), WithRoundTripper(transport))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	// Fetching the same URL twice must not be blocked as a revisit.
	for i := 0; i < 2; i++ {
		body, err := f.Fetch(context.Background(), "http://shop.test/shop/", "")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if body != "<html>ok</html>" {
			t.Fatalf("body = %q", body)
		}
	}
}

func TestFetcherAcceptsAnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusPartialContent} {
		t.Run(fmt.Sprintf("status_%d", status), func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.BaseURL = "http://shop.test"

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://shop.test/shop/", httpmock.NewStringResponder(status, "<html>catalog</html>"))

			f, err := NewFetcher(cfg, NewMetrics(), WithRoundTripper(transport))
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}

			body, err := f.Fetch(context.Background(), "http://shop.test/shop/", "")
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if body != "<html>catalog</html>" {
				t.Fatalf("body = %q", body)
			}
		})
	}
}

func TestFetcherRejectsBadProxy(t *testing.T) {
	cfg := config.DefaultConfig()
	f, err := NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	_, err = f.Fetch(context.Background(), cfg.BaseURL+"/shop/", "ftp://nowhere")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || !strings.Contains(err.Error(), "proxy") {
		t.Fatalf("expected proxy TransportError, got %v", err)
	}
}

type scriptedFetcher struct {
	mu       sync.Mutex
	failures map[string]int // remaining failures per url
	pages    map[string]string
	calls    map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		failures: make(map[string]int),
		pages:    make(map[string]string),
		calls:    make(map[string]int),
	}
}

func (sf *scriptedFetcher) Fetch(_ context.Context, url, _ string) (string, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.calls[url]++
	if sf.failures[url] > 0 {
		sf.failures[url]--
		return "", &TransportError{URL: url, Err: errors.New("connection reset")}
	}
	return sf.pages[url], nil
}

func (sf *scriptedFetcher) callCount(url string) int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.calls[url]
}

func (sf *scriptedFetcher) totalCalls() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	total := 0
	for _, n := range sf.calls {
		total += n
	}
	return total
}

func newTestScraper(f PageFetcher) (*Scraper, *[]time.Duration) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test"
	s := NewScraper(cfg, f, parser.NewExtractor(parser.DefaultSelectors()), NewMetrics())
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return s, &waits
}

func TestScrapePageRecoversAfterTransientFailures(t *testing.T) {
	f := newScriptedFetcher()
	f.failures["http://shop.test/shop/"] = 2
	f.pages["http://shop.test/shop/"] = buildCatalogPage(1, 2)

	s, waits := newTestScraper(f)
	rc := models.RunConfig{PageCount: 1, RetryAttempts: 3, RetryBackoff: 2 * time.Second}

	products, err := s.ScrapePage(context.Background(), rc, 1)
	if err != nil {
		t.Fatalf("scrape page: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products=%d, want 2", len(products))
	}
	if got := f.callCount("http://shop.test/shop/"); got != 3 {
		t.Fatalf("fetch calls = %d, want 3", got)
	}
	if len(*waits) != 2 || (*waits)[0] != 2*time.Second {
		t.Fatalf("backoff waits = %v, want two 2s waits", *waits)
	}
}

func TestScrapePageExhaustsAttempts(t *testing.T) {
	f := newScriptedFetcher()
	f.failures["http://shop.test/shop/page/2/"] = 5

	s, waits := newTestScraper(f)
	rc := models.RunConfig{PageCount: 2, RetryAttempts: 2}

	_, err := s.ScrapePage(context.Background(), rc, 2)
	var pageErr *PageFetchError
	if !errors.As(err, &pageErr) {
		t.Fatalf("expected PageFetchError, got %v", err)
	}
	if pageErr.Page != 2 || pageErr.Attempts != 2 {
		t.Fatalf("unexpected page error: %+v", pageErr)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected wrapped TransportError")
	}
	if got := f.callCount("http://shop.test/shop/page/2/"); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	if len(*waits) != 1 {
		t.Fatalf("backoff waits = %d, want 1 (no sleep after the last attempt)", len(*waits))
	}
}

func TestScrapePageExtractionFailureIsEmpty(t *testing.T) {
	f := newScriptedFetcher()
	f.pages["http://shop.test/shop/"] = "<html>whatever</html>"

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test"
	s := NewScraper(cfg, f, failingExtractor{}, NewMetrics())

	products, err := s.ScrapePage(context.Background(), models.RunConfig{PageCount: 1, RetryAttempts: 3}, 1)
	if err != nil {
		t.Fatalf("extraction failures must not surface: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("products=%d, want 0", len(products))
	}
	if got := f.callCount("http://shop.test/shop/"); got != 1 {
		t.Fatalf("extraction failure must not retry, calls=%d", got)
	}
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) ([]models.Product, error) {
	return nil, &parser.ExtractionError{Err: errors.New("broken markup")}
}

func TestScrapePagesPreservesPageOrder(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallel=%d", parallelism), func(t *testing.T) {
			f := newScriptedFetcher()
			f.pages["http://shop.test/shop/"] = buildCatalogPage(1, 2)
			f.pages["http://shop.test/shop/page/2/"] = buildCatalogPage(2, 2)
			f.pages["http://shop.test/shop/page/3/"] = buildCatalogPage(3, 2)

			cfg := config.DefaultConfig()
			cfg.BaseURL = "http://shop.test"
			cfg.Parallelism = parallelism
			s := NewScraper(cfg, f, parser.NewExtractor(parser.DefaultSelectors()), NewMetrics())

			products, err := s.ScrapePages(context.Background(), models.RunConfig{PageCount: 3, RetryAttempts: 1})
			if err != nil {
				t.Fatalf("scrape pages: %v", err)
			}
			want := []string{"Product 1-A", "Product 1-B", "Product 2-A", "Product 2-B", "Product 3-A", "Product 3-B"}
			if len(products) != len(want) {
				t.Fatalf("products=%d, want %d", len(products), len(want))
			}
			for i, title := range want {
				if products[i].Title != title {
					t.Fatalf("products[%d]=%q, want %q", i, products[i].Title, title)
				}
			}
		})
	}
}

func TestScrapePagesAbortsOnExhaustedPage(t *testing.T) {
	f := newScriptedFetcher()
	f.pages["http://shop.test/shop/"] = buildCatalogPage(1, 2)
	f.failures["http://shop.test/shop/page/2/"] = 10
	f.pages["http://shop.test/shop/page/3/"] = buildCatalogPage(3, 2)

	s, _ := newTestScraper(f)
	products, err := s.ScrapePages(context.Background(), models.RunConfig{PageCount: 3, RetryAttempts: 2})
	var pageErr *PageFetchError
	if !errors.As(err, &pageErr) || pageErr.Page != 2 {
		t.Fatalf("expected page 2 PageFetchError, got %v", err)
	}
	if products != nil {
		t.Fatalf("expected no products on abort, got %d", len(products))
	}
	if got := f.callCount("http://shop.test/shop/page/3/"); got != 0 {
		t.Fatalf("page 3 should not be fetched after abort, calls=%d", got)
	}
}

func TestScrapePagesStopsQueueingAfterAbort(t *testing.T) {
	f := newScriptedFetcher()
	f.failures["http://shop.test/shop/"] = 10

	s, _ := newTestScraper(f)
	_, err := s.ScrapePages(context.Background(), models.RunConfig{PageCount: config.PageCountLimit, RetryAttempts: 2})
	var pageErr *PageFetchError
	if !errors.As(err, &pageErr) || pageErr.Page != 1 {
		t.Fatalf("expected page 1 PageFetchError, got %v", err)
	}
	if got := f.totalCalls(); got != 2 {
		t.Fatalf("fetches after abort: total calls=%d, want 2", got)
	}
}

func TestScrapePagesCancelledContext(t *testing.T) {
	f := newScriptedFetcher()
	f.pages["http://shop.test/shop/"] = buildCatalogPage(1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newTestScraper(f)
	products, err := s.ScrapePages(ctx, models.RunConfig{PageCount: 3, RetryAttempts: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if products != nil {
		t.Fatalf("expected no products, got %d", len(products))
	}
	if got := f.totalCalls(); got != 0 {
		t.Fatalf("total calls=%d, want 0", got)
	}
}

func TestScraperEndToEndWithMockTransport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test"

	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/shop/", func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return htmlResponder(buildCatalogPage(1, 3))(req)
	})

	metrics := NewMetrics()
	f, err := NewFetcher(cfg, metrics, WithRoundTripper(transport))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	s := NewScraper(cfg, f, parser.NewExtractor(parser.DefaultSelectors()), metrics)

	products, err := s.ScrapePages(context.Background(), models.RunConfig{PageCount: 1, RetryAttempts: 2})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("products=%d, want 3", len(products))
	}
	if products[0].Price != 101 || products[0].ImagePath != "http://shop.test/img/1-A.jpg" {
		t.Fatalf("unexpected first product: %+v", products[0])
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildCatalogPage(page, count int) string {
	var builder strings.Builder
	builder.WriteString(`<html><body><div id="mf-shop-content"><ul class="products">`)

	for i := 0; i < count; i++ {
		suffix := string(rune('A' + i))
		builder.WriteString(`<li class="product"><div class="product-inner">`)
		fmt.Fprintf(&builder, `<div class="mf-product-thumbnail"><img data-lazy-src="http://shop.test/img/%d-%s.jpg"></div>`, page, suffix)
		builder.WriteString(`<div class="mf-product-details">`)
		fmt.Fprintf(&builder, `<h2 class="woo-loop-product__title">Product %d-%s</h2>`, page, suffix)
		fmt.Fprintf(&builder, `<span class="amount"><span class="woocommerce-Price-currencySymbol">&#8377;</span>%0.2f</span>`, float64(100+page+i*50))
		builder.WriteString(`</div></div></li>`)
	}

	builder.WriteString(`</ul></div></body></html>`)
	return builder.String()
}
