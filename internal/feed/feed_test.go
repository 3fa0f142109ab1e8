package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Example Feed</title>
	<item>
		<title>Second &lt;b&gt;Story&lt;/b&gt;</title>
		<link>https://example.com/second</link>
		<pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
	</item>
	<item>
		<title>First Story</title>
		<link> https://example.com/first </link>
		<pubDate>Sun, 01 Jun 2025 10:00:00 +0000</pubDate>
	</item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Example Atom Feed</title>
	<entry>
		<title>Atom Story</title>
		<link rel="self" href="https://example.com/feed.xml"/>
		<link rel="alternate" href="https://example.com/atom-story"/>
		<updated>2025-06-01T10:00:00Z</updated>
	</entry>
	<entry>
		<title>Later Atom Story</title>
		<link href="https://example.com/later"/>
		<published>2025-06-02T10:00:00Z</published>
		<updated>2025-06-03T10:00:00Z</updated>
	</entry>
</feed>`

func TestFetch_RSS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	entries, err := NewClient().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Oldest first, whitespace trimmed, markup stripped from titles.
	assert.Equal(t, "First Story", entries[0].Title)
	assert.Equal(t, "https://example.com/first", entries[0].Link)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), entries[0].PublishedAt)

	assert.Equal(t, "Second Story", entries[1].Title)
	assert.Equal(t, "https://example.com/second", entries[1].Link)
}

func TestFetch_Atom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomFixture))
	}))
	defer server.Close()

	entries, err := NewClient().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// The alternate link wins over self, and updated stands in for a
	// missing published date.
	assert.Equal(t, "Atom Story", entries[0].Title)
	assert.Equal(t, "https://example.com/atom-story", entries[0].Link)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), entries[0].PublishedAt)

	assert.Equal(t, "Later Atom Story", entries[1].Title)
	assert.Equal(t, "https://example.com/later", entries[1].Link)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), entries[1].PublishedAt)
}

func TestFetch_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "rss", detectFormat([]byte(rssFixture)))
	assert.Equal(t, "atom", detectFormat([]byte(atomFixture)))
}

func TestParseTime(t *testing.T) {
	for in, want := range map[string]time.Time{
		"Mon, 02 Jun 2025 10:00:00 +0000": time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		"Mon, 02 Jun 2025 10:00:00 GMT":   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		"2025-06-02T10:00:00Z":            time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		"not a date":                      {},
	} {
		assert.Equal(t, want, parseTime(in), in)
	}
}
