package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// FetchTimeout is the HTTP timeout for URL content fetches
	FetchTimeout = 30 * time.Second

	// MaxFetchedContentLen caps extracted page text so prompts stay bounded
	MaxFetchedContentLen = 8000

	// User agent for content fetches
	fetchUserAgent = "Model-Council-Fetcher/1.0"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// FetchURLContent fetches a web page and extracts its readable text so it
// can be attached as context to a council question. Page chrome (scripts,
// styles, navigation) is stripped and whitespace collapsed; the result is
// truncated to MaxFetchedContentLen characters.
func FetchURLContent(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := &http.Client{
		Timeout: FetchTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Strip non-content elements before extracting text
	doc.Find("script, style, noscript, iframe, nav, header, footer, aside").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if text == "" {
		return "", fmt.Errorf("no readable content found")
	}

	if len(text) > MaxFetchedContentLen {
		text = text[:MaxFetchedContentLen]
	}

	return text, nil
}
