// Package fetcher combines the plain HTTP renderer and the headless browser
// into a scraper.Fetcher that returns parsed pages.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/metrics"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	pathHTTP     = "http"
	pathHeadless = "headless"
)

// Waiter paces requests to a host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Options wires the optional collaborators. Headless, Detector, and Limiter
// may be nil.
type Options struct {
	HTTP     scraper.PageRenderer
	Headless scraper.PageRenderer
	Detector scraper.HeadlessDetector
	Limiter  Waiter
	Headers  http.Header
	Logger   *zap.Logger
}

// Fetcher implements scraper.Fetcher.
type Fetcher struct {
	http     scraper.PageRenderer
	headless scraper.PageRenderer
	detector scraper.HeadlessDetector
	limiter  Waiter
	headers  http.Header
	logger   *zap.Logger
}

// New builds a Fetcher. The HTTP renderer is required.
func New(opts Options) (*Fetcher, error) {
	if opts.HTTP == nil {
		return nil, errors.New("fetcher: http renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		http:     opts.HTTP,
		headless: opts.Headless,
		detector: opts.Detector,
		limiter:  opts.Limiter,
		headers:  opts.Headers,
		logger:   logger,
	}, nil
}

// Fetch retrieves url over plain HTTP and falls back to the headless
// renderer when the HTTP path fails, when preferHeadless is set, or when the
// detector flags the response as a client-rendered shell. Failures of every
// configured path are reported as *scraper.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string, preferHeadless bool) (*scraper.Page, error) {
	if err := f.wait(ctx, url); err != nil {
		return nil, &scraper.FetchError{URL: url, Reason: "rate limit", Err: err}
	}
	req := scraper.FetchRequest{URL: url, Headers: f.headers.Clone()}

	var httpErr error
	if !preferHeadless {
		resp, err := f.renderHTTP(ctx, req)
		if err == nil {
			if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
				return parse(resp)
			}
			f.logger.Debug("promoting to headless", zap.String("url", url))
			hresp, herr := f.renderHeadless(ctx, req)
			if herr != nil {
				f.logger.Warn("headless promotion failed; using http response",
					zap.String("url", url), zap.Error(herr))
				return parse(resp)
			}
			return parse(hresp)
		}
		if ctx.Err() != nil {
			return nil, &scraper.FetchError{URL: url, Reason: "canceled", Err: err}
		}
		httpErr = err
		if f.headless == nil {
			return nil, &scraper.FetchError{URL: url, Reason: "http", Err: err}
		}
		f.logger.Info("http fetch failed; falling back to headless",
			zap.String("url", url), zap.Error(err))
	}

	if f.headless == nil {
		return nil, &scraper.FetchError{URL: url, Reason: "headless renderer not configured"}
	}
	hresp, err := f.renderHeadless(ctx, req)
	if err != nil {
		return nil, &scraper.FetchError{URL: url, Reason: "headless", Err: errors.Join(httpErr, err)}
	}
	return parse(hresp)
}

func (f *Fetcher) renderHTTP(ctx context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error) {
	resp, err := f.http.Render(ctx, req)
	if err == nil {
		err = checkStatus(resp)
	}
	observe(pathHTTP, err)
	return resp, err
}

func (f *Fetcher) renderHeadless(ctx context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error) {
	resp, err := f.headless.Render(ctx, req)
	if err == nil {
		err = checkStatus(resp)
	}
	observe(pathHeadless, err)
	resp.UsedHeadless = true
	return resp, err
}

func (f *Fetcher) wait(ctx context.Context, url string) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx, url)
}

func checkStatus(resp scraper.FetchResponse) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func observe(path string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveFetch(path, result)
}

// parse builds the page document and strips script, style, and noscript.
func parse(resp scraper.FetchResponse) (*scraper.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &scraper.FetchError{URL: resp.URL, Reason: "parse", Err: err}
	}
	doc.Find("script, style, noscript").Remove()
	return &scraper.Page{
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		Doc:          doc,
	}, nil
}
