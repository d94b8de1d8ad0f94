package scrape

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// TextFromHTML returns every visible text node of the page, trimmed, one per line.
func TextFromHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.Join(lines, "\n"), nil
}

// ReadableText extracts the main content of the page. It falls back to TextFromHTML
// when readability finds nothing.
func ReadableText(htmlContent, pageURL string) (string, error) {
	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		base = u
	}

	article, err := readability.FromReader(strings.NewReader(htmlContent), base)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	}
	return TextFromHTML(htmlContent)
}

// FindLinksMatching returns absolute hrefs of anchors whose lower-cased text contains a
// keyword. Results are grouped by keyword in the given order, so the first element is
// the best candidate.
func FindLinksMatching(htmlContent, baseURL string, keywords []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	type anchor struct {
		text string
		href string
	}
	var anchors []anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if resolved, ok := resolve(baseURL, href); ok {
			anchors = append(anchors, anchor{text: strings.ToLower(s.Text()), href: resolved})
		}
	})

	seen := make(map[string]bool)
	var links []string
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)
		for _, a := range anchors {
			if strings.Contains(a.text, keyword) && !seen[a.href] {
				seen[a.href] = true
				links = append(links, a.href)
			}
		}
	}
	return links, nil
}

// FindPDFLinks returns absolute URLs of every anchor pointing at a .pdf file.
func FindPDFLinks(htmlContent, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(href)), ".pdf") {
			return
		}
		if resolved, ok := resolve(baseURL, href); ok && !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	})
	return links, nil
}

func resolve(baseURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
