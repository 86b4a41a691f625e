package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpConfig tunes the headless renderer.
type ChromedpConfig struct {
	UserAgent      string
	MaxConcurrency int
	PageTimeout    time.Duration
	WaitTimeout    time.Duration
}

// ChromedpRenderer renders pages using headless Chrome via chromedp.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	pageTimeout     time.Duration
	waitTimeout     time.Duration
	userAgent       string
}

// NewChromedpRenderer starts a browser. It returns ErrRendererDisabled when
// MaxConcurrency is not positive.
func NewChromedpRenderer(cfg ChromedpConfig, logger *zap.Logger) (*ChromedpRenderer, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrRendererDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 20 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 8 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		pageTimeout:     cfg.PageTimeout,
		waitTimeout:     cfg.WaitTimeout,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser.
func (r *ChromedpRenderer) Close() {
	if r == nil {
		return
	}
	r.browserCancel()
	r.allocatorCancel()
}

// Render navigates to rawURL in a new tab and returns the DOM snapshot.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL, waitSelector string) (string, error) {
	if r == nil {
		return "", ErrRendererDisabled
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("acquire render slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.pageTimeout)
	defer cancelTask()

	stop := context.AfterFunc(ctx, cancelTask)
	defer stop()

	if err := chromedp.Run(taskCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	if waitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(taskCtx, r.waitTimeout)
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(waitSelector, chromedp.ByQuery)); err != nil {
			r.logger.Debug("container did not appear", zap.String("url", rawURL), zap.Error(err))
		}
		cancelWait()
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", rawURL, err)
	}
	return html, nil
}
