// Package feed fetches and parses RSS and Atom feeds into entries ready for
// the verification pipeline.
package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"newsdesk/internal/newsdesk"
)

// Represents a response from an RSS feed fetch.
type rssFeedResp struct {
	XMLName xml.Name `xml:"rss"`
	Channel []struct {
		Title string `xml:"title"`
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			GUID    string `xml:"guid"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Represents a response from an Atom feed fetch.
type atomFeedResp struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Updated   string `xml:"updated"`
		Published string `xml:"published"`
	} `xml:"entry"`
}

type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch downloads and parses a feed. Entries come back oldest first so the
// pipeline processes them in publication order.
func (c *Client) Fetch(ctx context.Context, url string) ([]newsdesk.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building feed request: %s", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting feed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading feed body: %s", err)
	}

	var entries []newsdesk.FeedEntry
	switch detectFormat(body) {
	case "atom":
		entries, err = parseAtom(body)
	default:
		entries, err = parseRSS(body)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PublishedAt.Before(entries[j].PublishedAt)
	})

	return entries, nil
}

// detectFormat sniffs whether the document is rss or atom.
func detectFormat(body []byte) string {
	if bytes.Contains(body, []byte("<feed")) && !bytes.Contains(body, []byte("<rss")) {
		return "atom"
	}
	return "rss"
}

func parseRSS(body []byte) ([]newsdesk.FeedEntry, error) {
	var feedResp rssFeedResp
	if err := xml.Unmarshal(body, &feedResp); err != nil {
		return nil, fmt.Errorf("error decoding rss feed: %s", err)
	}

	entries := []newsdesk.FeedEntry{}
	for _, channel := range feedResp.Channel {
		for _, item := range channel.Items {
			entries = append(entries, newsdesk.FeedEntry{
				Link:        strings.TrimSpace(item.Link),
				Title:       sanitize(item.Title),
				PublishedAt: parseTime(item.PubDate),
			})
		}
	}

	return entries, nil
}

func parseAtom(body []byte) ([]newsdesk.FeedEntry, error) {
	var feedResp atomFeedResp
	if err := xml.Unmarshal(body, &feedResp); err != nil {
		return nil, fmt.Errorf("error decoding atom feed: %s", err)
	}

	entries := []newsdesk.FeedEntry{}
	for _, entry := range feedResp.Entries {
		link := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		published := entry.Published
		if published == "" {
			published = entry.Updated
		}

		entries = append(entries, newsdesk.FeedEntry{
			Link:        strings.TrimSpace(link),
			Title:       sanitize(entry.Title),
			PublishedAt: parseTime(published),
		})
	}

	return entries, nil
}

// Feed timestamps show up in a handful of layouts.
var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from the string, usually a title.
//
// Also limits the length of the string so there's not a massive chunk of text being output.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}
