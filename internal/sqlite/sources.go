package sqlite

import (
	"context"
	"fmt"

	"newsdesk/internal/newsdesk"
)

// ActiveFeedSources returns the sources the poller should read, in insertion
// order.
func (r Repo) ActiveFeedSources(ctx context.Context) ([]newsdesk.FeedSource, error) {
	const q = `SELECT * FROM feed_sources WHERE active = 1 ORDER BY source_id;`

	var sources []newsdesk.FeedSource
	if err := r.db.SelectContext(ctx, &sources, q); err != nil {
		return nil, fmt.Errorf("error selecting feed sources: %s", err)
	}

	return sources, nil
}

func (r Repo) InsertFeedSource(ctx context.Context, url, kind string) (newsdesk.FeedSource, error) {
	const q = `INSERT INTO feed_sources (url, kind) VALUES (?, ?);`

	res, err := r.db.ExecContext(ctx, q, url, kind)
	if isUniqueViolation(err) {
		return newsdesk.FeedSource{}, fmt.Errorf("feed source already exists: %w", newsdesk.ErrConflict)
	}
	if err != nil {
		return newsdesk.FeedSource{}, fmt.Errorf("error inserting feed source: %s", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return newsdesk.FeedSource{}, fmt.Errorf("error reading feed source id: %s", err)
	}

	var source newsdesk.FeedSource
	if err := r.db.GetContext(ctx, &source, `SELECT * FROM feed_sources WHERE source_id = ?;`, id); err != nil {
		return newsdesk.FeedSource{}, fmt.Errorf("error fetching feed source: %s", err)
	}

	return source, nil
}

// Glossary returns the full translation glossary.
func (r Repo) Glossary(ctx context.Context) ([]newsdesk.Term, error) {
	const q = `SELECT * FROM terms ORDER BY term_id;`

	var terms []newsdesk.Term
	if err := r.db.SelectContext(ctx, &terms, q); err != nil {
		return nil, fmt.Errorf("error selecting terms: %s", err)
	}

	return terms, nil
}

func (r Repo) InsertTerm(ctx context.Context, original, translation string) error {
	const q = `INSERT INTO terms (original, translation) VALUES (?, ?);`

	if _, err := r.db.ExecContext(ctx, q, original, translation); err != nil {
		return fmt.Errorf("error inserting term: %s", err)
	}

	return nil
}
