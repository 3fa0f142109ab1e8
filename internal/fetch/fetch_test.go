package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleFixture = `<!DOCTYPE html>
<html>
<head><title>Mempool Policy Changes Land</title></head>
<body>
	<nav><a href="/">home</a></nav>
	<article>
		<h1>Mempool Policy Changes Land</h1>
		<p>The long discussed mempool policy changes have finally landed in the
		main branch after months of review. Maintainers expect the new defaults
		to reduce relay bandwidth for most node operators while keeping the
		fee estimation behavior unchanged for wallets.</p>
		<p>Node operators who run with custom policy flags should review the
		release notes before upgrading, since two of the legacy options were
		removed and one was renamed. The changes ship in the next release
		candidate, which is expected within the coming weeks according to the
		maintainers involved in the review process.</p>
	</article>
</body>
</html>`

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleFixture))
	}))
	defer server.Close()

	article, err := NewClient(5*time.Second).Fetch(context.Background(), server.URL+"/post?utm_source=rss")
	require.NoError(t, err)

	assert.Equal(t, "Mempool Policy Changes Land", article.Title)
	// Markup is stripped and tracking params are dropped from the source.
	assert.Contains(t, article.Text, "mempool policy changes have finally landed")
	assert.False(t, strings.Contains(article.Text, "<"))
	assert.Equal(t, server.URL+"/post", article.Source)
}

func TestFetch_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(5*time.Second).Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCanonicalSource(t *testing.T) {
	assert.Equal(t,
		"https://example.com/post",
		canonicalSource("https://example.com/post?utm_source=rss&utm_medium=feed"))
	assert.Equal(t,
		"https://example.com/post?page=2",
		canonicalSource("https://example.com/post?page=2"))
}
