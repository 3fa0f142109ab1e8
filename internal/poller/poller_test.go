package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/internal/moderation"
	"newsdesk/internal/newsdesk"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/transform"
)

type fakeRepo struct {
	newsdesk.Repository

	sources []newsdesk.FeedSource
	titles  []string
	created []newsdesk.NewsItem
}

func (f *fakeRepo) ActiveFeedSources(ctx context.Context) ([]newsdesk.FeedSource, error) {
	return f.sources, nil
}

func (f *fakeRepo) Glossary(ctx context.Context) ([]newsdesk.Term, error) {
	return []newsdesk.Term{{Original: "mempool", Translation: "мемпул"}}, nil
}

func (f *fakeRepo) TitlesSince(ctx context.Context, since time.Time) ([]string, error) {
	return f.titles, nil
}

func (f *fakeRepo) CreateTombstone(ctx context.Context, t newsdesk.Tombstone) (newsdesk.NewsItem, error) {
	f.titles = append(f.titles, t.Title)
	return newsdesk.NewsItem{ID: 1}, nil
}

func (f *fakeRepo) CreateNewsItem(ctx context.Context, item newsdesk.NewsItem, tags []newsdesk.Tag, reason string, messageID int64) (newsdesk.NewsItem, error) {
	item.ID = int64(len(f.created) + 1)
	f.created = append(f.created, item)
	f.titles = append(f.titles, item.Title)
	return item, nil
}

type fakeFeeds struct {
	entries []newsdesk.FeedEntry
	err     error
}

func (f *fakeFeeds) Fetch(ctx context.Context, url string) ([]newsdesk.FeedEntry, error) {
	return f.entries, f.err
}

type fakeFetcher struct {
	articles map[string]newsdesk.Article
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, link string) (newsdesk.Article, error) {
	f.calls++
	if f.err != nil {
		return newsdesk.Article{}, f.err
	}
	return f.articles[link], nil
}

type fakeClassifier struct {
	duplicate bool
	relevant  bool
	summary   newsdesk.Summary
	transErr  error

	relevanceCalls int
}

func (f *fakeClassifier) CheckRelevance(ctx context.Context, article string) (newsdesk.RelevanceVerdict, error) {
	f.relevanceCalls++
	return newsdesk.RelevanceVerdict{Relevant: f.relevant, Reason: "verdict"}, nil
}

func (f *fakeClassifier) CheckDuplicate(ctx context.Context, title string, recent []string) (bool, error) {
	return f.duplicate, nil
}

func (f *fakeClassifier) Summarize(ctx context.Context, article string) (newsdesk.Summary, error) {
	return f.summary, nil
}

func (f *fakeClassifier) Translate(ctx context.Context, s newsdesk.Summary, glossary []newsdesk.Term) (newsdesk.Translation, error) {
	if f.transErr != nil {
		return newsdesk.Translation{}, f.transErr
	}
	return newsdesk.Translation{
		TitleRU: "Релиз-кандидат Bitcoin Core наконец доступен",
		BodyRU:  "Изменения политики мемпула вошли в основную ветку.",
		TagsRU:  []string{"#релизы"},
	}, nil
}

type fakeNotifier struct {
	posts  []string
	alerts []string
}

func (f *fakeNotifier) PostToModerationChannel(ctx context.Context, text string) (int64, error) {
	f.posts = append(f.posts, text)
	return int64(len(f.posts)), nil
}

func (f *fakeNotifier) AlertAdmins(ctx context.Context, text string) {
	f.alerts = append(f.alerts, text)
}

func (f *fakeNotifier) DeliverToAudience(ctx context.Context, text string, recipients []int64) {}

type fixture struct {
	poller     *Poller
	repo       *fakeRepo
	fetcher    *fakeFetcher
	classifier *fakeClassifier
	notifier   *fakeNotifier
}

func newFixture(t *testing.T, feeds *fakeFeeds, fetcher *fakeFetcher, classifier *fakeClassifier) *fixture {
	t.Helper()

	repo := &fakeRepo{sources: []newsdesk.FeedSource{{ID: 1, URL: "https://example.com/feed.xml"}}}
	notifier := &fakeNotifier{}

	checks := pipeline.New(repo, classifier, notifier)
	stage := transform.New(classifier)
	handoff := moderation.NewHandoff(repo, notifier)

	p, err := New(Config{MaxFetchAttempts: 2}, repo, feeds, fetcher, checks, stage, handoff, notifier)
	require.NoError(t, err)

	return &fixture{poller: p, repo: repo, fetcher: fetcher, classifier: classifier, notifier: notifier}
}

func validSummary() newsdesk.Summary {
	return newsdesk.Summary{
		Title: "Bitcoin Core Release Candidate Finally Lands",
		Body:  "The mempool policy changes have landed in the main branch.",
		Tags:  []string{"#releases"},
	}
}

func freshEntry() newsdesk.FeedEntry {
	return newsdesk.FeedEntry{
		Link:        "https://example.com/rc",
		Title:       "Fallback Title",
		PublishedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestCycle_AcceptedEntry(t *testing.T) {
	entry := freshEntry()
	fetcher := &fakeFetcher{articles: map[string]newsdesk.Article{
		entry.Link: {
			Text:   "raw article text",
			Title:  "Core RC Lands",
			Source: "https://example.com/rc",
		},
	}}
	classifier := &fakeClassifier{relevant: true, summary: validSummary()}
	f := newFixture(t, &fakeFeeds{entries: []newsdesk.FeedEntry{entry}}, fetcher, classifier)

	f.poller.cycle(context.Background())

	// The entry was posted for moderation and persisted once.
	require.Len(t, f.notifier.posts, 1)
	require.Len(t, f.repo.created, 1)
	assert.Equal(t, "Core RC Lands", f.repo.created[0].Title)
	assert.Equal(t, "raw article text", f.repo.created[0].SourceText)
	assert.Empty(t, f.notifier.alerts)

	// A second cycle skips it without touching the classifier again.
	f.poller.cycle(context.Background())
	assert.Equal(t, 1, f.classifier.relevanceCalls)
	assert.Len(t, f.repo.created, 1)
}

func TestCycle_StaleEntry(t *testing.T) {
	entry := freshEntry()
	entry.PublishedAt = time.Now().UTC().Add(-48 * time.Hour)

	fetcher := &fakeFetcher{articles: map[string]newsdesk.Article{
		entry.Link: {Text: "raw", Title: "Old News", Source: entry.Link},
	}}
	classifier := &fakeClassifier{relevant: true, summary: validSummary()}
	f := newFixture(t, &fakeFeeds{entries: []newsdesk.FeedEntry{entry}}, fetcher, classifier)

	f.poller.cycle(context.Background())

	// Rejected before the classifier, nothing written and nothing posted.
	assert.Zero(t, f.classifier.relevanceCalls)
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.notifier.posts)

	// The verdict is terminal for this process lifetime.
	f.poller.cycle(context.Background())
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestCycle_NotRelevantWritesTombstone(t *testing.T) {
	entry := freshEntry()
	fetcher := &fakeFetcher{articles: map[string]newsdesk.Article{
		entry.Link: {Text: "raw", Title: "Token Launch", Source: entry.Link},
	}}
	classifier := &fakeClassifier{relevant: false, summary: validSummary()}
	f := newFixture(t, &fakeFeeds{entries: []newsdesk.FeedEntry{entry}}, fetcher, classifier)

	f.poller.cycle(context.Background())

	assert.Empty(t, f.notifier.posts)
	assert.Empty(t, f.repo.created)
	// The tombstoned title now feeds the existence check.
	assert.Contains(t, f.repo.titles, "Token Launch")
}

func TestCycle_FetchFailureRetriesThenGivesUp(t *testing.T) {
	entry := freshEntry()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	classifier := &fakeClassifier{relevant: true, summary: validSummary()}
	f := newFixture(t, &fakeFeeds{entries: []newsdesk.FeedEntry{entry}}, fetcher, classifier)

	f.poller.cycle(context.Background())
	f.poller.cycle(context.Background())
	// Attempts are exhausted; further cycles skip the link.
	f.poller.cycle(context.Background())

	assert.Equal(t, 2, f.fetcher.calls)
	assert.Len(t, f.notifier.alerts, 2)
	assert.Empty(t, f.repo.created)
}

func TestCycle_TransformFailureStaysEligible(t *testing.T) {
	entry := freshEntry()
	fetcher := &fakeFetcher{articles: map[string]newsdesk.Article{
		entry.Link: {Text: "raw", Title: "Core RC Lands", Source: entry.Link},
	}}
	classifier := &fakeClassifier{relevant: true, summary: validSummary(), transErr: errors.New("model timeout")}
	f := newFixture(t, &fakeFeeds{entries: []newsdesk.FeedEntry{entry}}, fetcher, classifier)

	f.poller.cycle(context.Background())

	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.notifier.posts)
	require.Len(t, f.notifier.alerts, 1)
	assert.Contains(t, f.notifier.alerts[0], "unable to transform")

	// Not marked evaluated: the next cycle tries the whole entry again.
	f.poller.cycle(context.Background())
	assert.Equal(t, 2, f.fetcher.calls)
}

func TestCycle_FeedFailureAlerts(t *testing.T) {
	fetcher := &fakeFetcher{}
	classifier := &fakeClassifier{}
	f := newFixture(t, &fakeFeeds{err: errors.New("dns failure")}, fetcher, classifier)

	f.poller.cycle(context.Background())

	require.Len(t, f.notifier.alerts, 1)
	assert.Contains(t, f.notifier.alerts[0], "unable to read feed")
	assert.Zero(t, f.fetcher.calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{}
	classifier := &fakeClassifier{}
	f := newFixture(t, &fakeFeeds{}, fetcher, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.poller.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
