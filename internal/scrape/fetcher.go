package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/pkg/errors"
)

const maxBodyBytes = 32 << 20

// HTTPFetcher downloads pages and documents with browser-like headers. It owns one
// http.Client for its lifetime.
type HTTPFetcher struct {
	client *http.Client
	logger *zap.Logger
}

func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: constants.BrowserConfig.HTTPTimeout},
		logger: logger,
	}
}

// FetchBytes GETs url and returns the body. Non-2xx statuses become API errors.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewInputError("scrape.fetch", fmt.Sprintf("invalid URL %q", url), err)
	}
	req.Header.Set("User-Agent", constants.BrowserConfig.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("scrape.fetch", "request failed", err).WithContext("url", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewTransientError("scrape.fetch", "failed to read body", err).WithContext("url", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, errors.NewAPIError("scrape.fetch", resp.StatusCode, preview)
	}

	f.logger.Debug("Fetched", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}

// RenderedHTML returns the raw HTML. No scripts are executed.
func (f *HTTPFetcher) RenderedHTML(ctx context.Context, url string) (string, error) {
	body, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
