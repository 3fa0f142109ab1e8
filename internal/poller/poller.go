// Package poller drives the ingestion loop: it reads every active feed
// source, runs each entry through the verification pipeline, and hands
// accepted entries to transformation and moderation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsdesk/internal/moderation"
	"newsdesk/internal/newsdesk"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/transform"
	"newsdesk/logger"
)

// FeedFetcher downloads and parses one feed source.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]newsdesk.FeedEntry, error)
}

type Config struct {
	// Pause between full passes over all sources.
	Interval time.Duration
	// Seen-cache capacity in links.
	CacheSize int
	// Transient fetch failures tolerated per link before it is given up on.
	MaxFetchAttempts int
}

type Poller struct {
	repo     newsdesk.Repository
	feeds    FeedFetcher
	fetcher  newsdesk.Fetcher
	checks   *pipeline.Pipeline
	stage    *transform.Stage
	handoff  *moderation.Handoff
	notifier newsdesk.Notifier

	seen     *seenCache
	interval time.Duration
}

func New(cfg Config, repo newsdesk.Repository, feeds FeedFetcher, fetcher newsdesk.Fetcher,
	checks *pipeline.Pipeline, stage *transform.Stage, handoff *moderation.Handoff,
	notifier newsdesk.Notifier) (*Poller, error) {

	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.MaxFetchAttempts <= 0 {
		cfg.MaxFetchAttempts = 3
	}

	seen, err := newSeenCache(cfg.CacheSize, cfg.MaxFetchAttempts)
	if err != nil {
		return nil, fmt.Errorf("error creating seen cache: %s", err)
	}

	return &Poller{
		repo:     repo,
		feeds:    feeds,
		fetcher:  fetcher,
		checks:   checks,
		stage:    stage,
		handoff:  handoff,
		notifier: notifier,
		seen:     seen,
		interval: cfg.Interval,
	}, nil
}

// Run loops until the context is canceled. A cycle drains every source before
// the pause starts, so cycles never overlap; that is the system's
// backpressure. Entries are processed one at a time. Parallelizing across
// sources while keeping per-source order is a possible extension, not done
// here.
func (p *Poller) Run(ctx context.Context) error {
	for {
		p.cycle(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// cycle runs one full pass over all active sources.
func (p *Poller) cycle(ctx context.Context) {
	slog.Info("starting cycle")

	sources, err := p.repo.ActiveFeedSources(ctx)
	if err != nil {
		slog.Error("error loading feed sources", "error", err)
		return
	}
	glossary, err := p.repo.Glossary(ctx)
	if err != nil {
		slog.Error("error loading glossary", "error", err)
		return
	}

	for _, source := range sources {
		if ctx.Err() != nil {
			return
		}

		entries, err := p.feeds.Fetch(ctx, source.URL)
		if err != nil {
			slog.Error("error fetching feed", "url", source.URL, "error", err)
			p.notifier.AlertAdmins(ctx, fmt.Sprintf("unable to read feed %s: %s", source.URL, err))
			continue
		}

		// Entries arrive oldest first.
		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			if p.seen.Seen(entry.Link) {
				continue
			}
			p.processEntry(ctx, entry, glossary)
		}
	}

	slog.Info("cycle complete")
}

// processEntry runs one entry to a terminal state. Nothing here is allowed to
// take down the loop: errors and panics are contained at this boundary.
func (p *Poller) processEntry(ctx context.Context, entry newsdesk.FeedEntry, glossary []newsdesk.Term) {
	ctx = logger.Ctx(ctx, slog.String("link", entry.Link))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic processing entry", "link", entry.Link, "panic", r)
			p.notifier.AlertAdmins(ctx, fmt.Sprintf("panic while processing %s: %v", entry.Link, r))
		}
	}()

	article, err := p.fetcher.Fetch(ctx, entry.Link)
	if err != nil {
		slog.Error("error fetching article", "link", entry.Link, "error", err)
		p.notifier.AlertAdmins(ctx, fmt.Sprintf("error while getting article %s: %s", entry.Link, err))
		if p.seen.Fail(entry.Link) {
			slog.Warn("giving up on entry after repeated fetch failures", "link", entry.Link)
		}
		return
	}

	title := article.Title
	if title == "" {
		title = entry.Title
	}

	verdict, err := p.checks.Evaluate(ctx, title, article.Source, article.Text, entry.PublishedAt)
	if err != nil {
		// Not durably recorded; leave the entry eligible for the next cycle.
		slog.Error("error evaluating entry", "link", entry.Link, "error", err)
		return
	}
	if verdict.Failed {
		slog.Info("entry rejected", "link", entry.Link, "reason", verdict.Reason)
		p.seen.MarkEvaluated(entry.Link)
		return
	}

	post, err := p.stage.Transform(ctx, article.Text, glossary)
	if err != nil {
		slog.Error("error transforming entry", "link", entry.Link, "error", err)
		tfErr := &transform.Error{}
		if errors.As(err, &tfErr) {
			p.notifier.AlertAdmins(ctx, fmt.Sprintf("unable to transform %s: %s", entry.Link, err))
		}
		return
	}

	if _, err := p.handoff.Submit(ctx, post, verdict, article.Source, title, article.Text); err != nil {
		slog.Error("error submitting entry for moderation", "link", entry.Link, "error", err)
		return
	}

	slog.Info("entry sent to moderation", "link", entry.Link, "title", title)
	p.seen.MarkEvaluated(entry.Link)
}
