// Package scrape fetches venue pages and documents and turns them into plain text.
package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/pkg/errors"
)

const (
	TextModeFull     = "full"
	TextModeReadable = "readable"
)

// Renderer returns the HTML of a page after any client-side rendering.
type Renderer interface {
	RenderedHTML(ctx context.Context, url string) (string, error)
	Close() error
}

// ByteFetcher downloads raw documents such as PDFs.
type ByteFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Page is one fetched document. HTML is empty for PDFs.
type Page struct {
	URL  string
	HTML string
	Text string
}

type Scraper struct {
	renderer Renderer
	fetcher  ByteFetcher
	textMode string
	logger   *zap.Logger
}

func NewScraper(renderer Renderer, fetcher ByteFetcher, textMode string, logger *zap.Logger) *Scraper {
	if textMode != TextModeReadable {
		textMode = TextModeFull
	}
	return &Scraper{
		renderer: renderer,
		fetcher:  fetcher,
		textMode: textMode,
		logger:   logger,
	}
}

// Fetch loads url as a PDF when it points at one and as a rendered page otherwise.
func (s *Scraper) Fetch(ctx context.Context, url string) (Page, error) {
	if domain.IsPDFURL(url) {
		text, err := s.PDFText(ctx, url)
		if err != nil {
			return Page{}, err
		}
		return Page{URL: url, Text: text}, nil
	}

	html, err := s.renderer.RenderedHTML(ctx, url)
	if err != nil {
		return Page{}, err
	}
	text, err := s.text(html, url)
	if err != nil {
		return Page{}, err
	}
	return Page{URL: url, HTML: html, Text: text}, nil
}

// RenderedHTML returns the page HTML without text extraction.
func (s *Scraper) RenderedHTML(ctx context.Context, url string) (string, error) {
	return s.renderer.RenderedHTML(ctx, url)
}

// PDFText downloads a PDF and extracts its text.
func (s *Scraper) PDFText(ctx context.Context, url string) (string, error) {
	data, err := s.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	text, err := TextFromPDF(data)
	if err != nil {
		return "", errors.NewInputError("scrape.pdf", fmt.Sprintf("unreadable PDF at %s", url), err)
	}
	s.logger.Debug("PDF text extracted", zap.String("url", url), zap.Int("chars", len(text)))
	return text, nil
}

func (s *Scraper) text(html, url string) (string, error) {
	if s.textMode == TextModeReadable {
		return ReadableText(html, url)
	}
	return TextFromHTML(html)
}

func (s *Scraper) Close() error {
	if s.renderer != nil {
		return s.renderer.Close()
	}
	return nil
}
