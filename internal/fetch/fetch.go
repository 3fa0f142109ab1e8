// Package fetch renders linked pages into plain article text for
// classification.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/sym01/htmlsanitizer"

	"newsdesk/internal/newsdesk"
)

var (
	// ErrNoContent means the page rendered but produced no usable text.
	ErrNoContent = errors.New("no content returned for article")
	// ErrUnavailable means the upstream could not be reached at all.
	ErrUnavailable = errors.New("article source unavailable")
)

var _ newsdesk.Fetcher = (*Client)(nil)

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the linked page and extracts its readable text and
// metadata. All returned errors are recoverable: the caller skips the entry
// and may retry it on a later cycle.
func (c *Client) Fetch(ctx context.Context, link string) (newsdesk.Article, error) {
	u, err := url.Parse(link)
	if err != nil {
		return newsdesk.Article{}, fmt.Errorf("error parsing article link: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return newsdesk.Article{}, fmt.Errorf("error building article request: %s", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newsdesk.Article{}, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newsdesk.Article{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// Strip it for readability and sanitize
	parser := readability.NewParser()
	article, err := parser.Parse(resp.Body, u)
	if err != nil {
		return newsdesk.Article{}, fmt.Errorf("error extracting article: %s", err)
	}

	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	sanitizer.AllowList = nil // strip every tag, keep the text
	text, err := sanitizer.SanitizeString(article.Content)
	if err != nil {
		return newsdesk.Article{}, fmt.Errorf("error sanitizing article: %s", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return newsdesk.Article{}, ErrNoContent
	}

	return newsdesk.Article{
		Text:   text,
		Title:  strings.TrimSpace(article.Title),
		Source: canonicalSource(link),
	}, nil
}

// canonicalSource drops tracking query garbage so the same article always
// reports the same source link.
func canonicalSource(link string) string {
	if i := strings.Index(link, "?utm_source"); i >= 0 {
		return link[:i]
	}
	return link
}
