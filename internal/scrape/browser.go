package scrape

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// Browser renders pages in one headless Chrome session.
type Browser struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
	settle      time.Duration
}

// NewBrowser starts headless Chrome. chromePath may be empty to use the default lookup.
func NewBrowser(chromePath string, logger *zap.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(constants.BrowserConfig.UserAgent),
	)
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, errors.NewConfigError("failed to start headless Chrome: " + err.Error())
	}

	logger.Info("Headless browser started")
	return &Browser{
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		settle:      constants.BrowserConfig.ScrollSettle,
	}, nil
}

// RenderedHTML loads url, closes a popup if one shows up, waits for the body, scrolls
// to the bottom to trigger lazy content and returns the resulting document.
func (b *Browser) RenderedHTML(ctx context.Context, url string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		return "", errors.NewTransientError("browser.navigate", "navigation failed", err).WithContext("url", url)
	}

	b.dismissPopup(tabCtx)

	bodyCtx, bodyCancel := context.WithTimeout(tabCtx, constants.BrowserConfig.BodyTimeout)
	defer bodyCancel()
	if err := chromedp.Run(bodyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return "", errors.NewTransientError("browser.wait", "body did not load", err).WithContext("url", url)
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", errors.NewTransientError("browser.render", "failed to read page", err).WithContext("url", url)
	}
	return html, nil
}

func (b *Browser) dismissPopup(ctx context.Context) {
	popupCtx, cancel := context.WithTimeout(ctx, constants.BrowserConfig.PopupTimeout)
	defer cancel()

	selector := constants.BrowserConfig.PopupSelector
	err := chromedp.Run(popupCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		b.logger.Debug("No popup found or unable to close popup")
		return
	}
	b.logger.Info("Popup closed")
}

func (b *Browser) Close() error {
	b.cancel()
	b.allocCancel()
	b.logger.Info("Headless browser stopped")
	return nil
}
