// Package fetcher downloads sale announcements and their linked documents.
package fetcher

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/microcosm-cc/bluemonday"

	"property_agent/internal/model"
)

// Body size limits for downloaded resources.
const (
	maxIndexSize    = 5 * 1024 * 1024
	maxPageSize     = 5 * 1024 * 1024
	maxDocumentSize = 20 * 1024 * 1024
)

const userAgent = "PropertyAgent/1.0"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher returns the current sale events. Events whose date is in skip are
// returned without downloading their documents.
type Fetcher interface {
	Fetch(ctx context.Context, skip map[string]bool) ([]model.Event, error)
}

// NewSafeClient returns an HTTP client that refuses private, loopback and
// link-local destinations. Linked documents come from remote content, so
// every request goes through it.
func NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

func get(ctx context.Context, client HTTPClient, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

var (
	strictPolicy = bluemonday.StrictPolicy()
	blockTagRe   = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/p|/div|/li|/tr|/h[1-6])\s*>`)
	spaceRunRe   = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// plainText strips markup from an HTML fragment, keeping line structure.
func plainText(fragment string) string {
	withBreaks := blockTagRe.ReplaceAllString(fragment, "\n")
	text := html.UnescapeString(strictPolicy.Sanitize(withBreaks))
	return cleanLines(text)
}

// cleanLines collapses horizontal whitespace and drops empty lines.
func cleanLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
