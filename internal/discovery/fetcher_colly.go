package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CollyFetcher implements Fetcher with a fresh Colly collector per call.
// robots.txt is honoured unless IgnoreRobotsTxt is set.
type CollyFetcher struct {
	UserAgent       string
	RequestTimeout  time.Duration
	IgnoreRobotsTxt bool
	MaxBodySize     int // bytes, 0 = unlimited
	DetectCharset   bool
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher() *CollyFetcher {
	return &CollyFetcher{
		UserAgent:      defaultUserAgent,
		RequestTimeout: 15 * time.Second,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		DetectCharset:  true,
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}

	c := colly.NewCollector(opts...)
	// Colly ignores robots.txt by default.
	c.IgnoreRobotsTxt = f.IgnoreRobotsTxt
	if f.Transport != nil {
		c.WithTransport(f.Transport)
	}
	if f.RequestTimeout > 0 {
		c.SetRequestTimeout(f.RequestTimeout)
	}
	return c
}

// Fetch implements the Fetcher interface.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	c := f.buildCollector(ctx)

	type result struct {
		doc *FetchedDocument
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		var res result
		c.OnResponse(func(r *colly.Response) {
			res.doc = &FetchedDocument{
				URL:         r.Request.URL.String(),
				StatusCode:  r.StatusCode,
				ContentType: r.Headers.Get("Content-Type"),
				Body:        r.Body,
				FetchedAt:   time.Now(),
				Headers:     map[string][]string(r.Headers.Clone()),
			}
		})
		c.OnError(func(r *colly.Response, err error) {
			if r != nil && r.StatusCode >= 300 {
				res.err = &StatusError{URL: targetURL, StatusCode: r.StatusCode}
				return
			}
			res.err = fmt.Errorf("fetch %s: %w", targetURL, err)
		})

		if err := c.Visit(targetURL); err != nil && res.err == nil {
			if errors.Is(err, colly.ErrRobotsTxtBlocked) {
				res.err = fmt.Errorf("%s: %w", targetURL, ErrRobotsDisallowed)
			} else {
				res.err = fmt.Errorf("visit %s: %w", targetURL, err)
			}
		}
		if res.doc == nil && res.err == nil {
			res.err = fmt.Errorf("no response received for %s", targetURL)
		}
		resCh <- res
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resCh:
		return res.doc, res.err
	}
}
