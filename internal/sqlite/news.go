package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsdesk/internal/newsdesk"
)

// TitlesSince returns the titles of news items created at or after the given
// time, newest first.
func (r Repo) TitlesSince(ctx context.Context, since time.Time) ([]string, error) {
	const q = `SELECT title FROM news WHERE created_at >= ? ORDER BY created_at DESC;`

	var titles []string
	if err := r.db.SelectContext(ctx, &titles, q, since.UTC()); err != nil {
		return nil, fmt.Errorf("error selecting titles: %s", err)
	}

	return titles, nil
}

func (r Repo) NewsItem(ctx context.Context, id int64) (newsdesk.NewsItem, error) {
	const q = `SELECT * FROM news WHERE news_id = ?;`

	var item newsdesk.NewsItem
	err := r.db.GetContext(ctx, &item, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return newsdesk.NewsItem{}, newsdesk.ErrNotFound
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error fetching news item: %s", err)
	}

	return item, nil
}

// CreateTombstone records a rejection durably: a degraded news item plus its
// check result, so the title-existence check catches the entry next time.
func (r Repo) CreateTombstone(ctx context.Context, t newsdesk.Tombstone) (newsdesk.NewsItem, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error beginning tx: %s", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO news (title, body, title_ru, body_ru, source, source_text, slug)
	VALUES (?, ?, ?, ?, ?, ?, ?);`
	res, err := tx.ExecContext(ctx, q,
		t.Title, newsdesk.TombstoneBody, newsdesk.TombstoneBody, newsdesk.TombstoneBody,
		t.Source, t.SourceText, t.Slug,
	)
	if isUniqueViolation(err) {
		return newsdesk.NewsItem{}, fmt.Errorf("tombstone slug taken: %w", newsdesk.ErrConflict)
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error inserting tombstone: %s", err)
	}
	newsID, err := res.LastInsertId()
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error reading tombstone id: %s", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO check_results (news_id, reason) VALUES (?, ?);`,
		newsID, t.Reason,
	); err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error inserting check result: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error committing tombstone: %s", err)
	}

	return r.NewsItem(ctx, newsID)
}

// CreateNewsItem persists the candidate with its tags, check result and
// moderation message in one transaction. A slug or message-id collision rolls
// the whole unit back and surfaces as ErrConflict.
func (r Repo) CreateNewsItem(ctx context.Context, item newsdesk.NewsItem, tags []newsdesk.Tag, reason string, messageID int64) (newsdesk.NewsItem, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error beginning tx: %s", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO news (title, body, title_ru, body_ru, source, source_text, slug)
	VALUES (:title, :body, :title_ru, :body_ru, :source, :source_text, :slug);`
	res, err := tx.NamedExecContext(ctx, q, item)
	if isUniqueViolation(err) {
		return newsdesk.NewsItem{}, fmt.Errorf("news slug taken: %w", newsdesk.ErrConflict)
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error inserting news item: %s", err)
	}
	newsID, err := res.LastInsertId()
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error reading news id: %s", err)
	}

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (news_id, name, name_ru) VALUES (?, ?, ?);`,
			newsID, tag.Name, tag.NameRU,
		); err != nil {
			return newsdesk.NewsItem{}, fmt.Errorf("error inserting tag: %s", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO check_results (news_id, reason) VALUES (?, ?);`,
		newsID, reason,
	); err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error inserting check result: %s", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO moderation_messages (message_id, news_id) VALUES (?, ?);`,
		messageID, newsID,
	)
	if isUniqueViolation(err) {
		return newsdesk.NewsItem{}, fmt.Errorf("moderation message already linked: %w", newsdesk.ErrConflict)
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error inserting moderation message: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error committing news item: %s", err)
	}

	return r.NewsItem(ctx, newsID)
}

func (r Repo) NewsItemByMessageID(ctx context.Context, messageID int64) (newsdesk.NewsItem, error) {
	query, args, err := sq.Select("n.*").
		From("news n").
		Join("moderation_messages m ON m.news_id = n.news_id").
		Where(sq.Eq{"m.message_id": messageID}).
		ToSql()
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error constructing sql: %s", err)
	}

	var item newsdesk.NewsItem
	err = r.db.GetContext(ctx, &item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return newsdesk.NewsItem{}, newsdesk.ErrNotFound
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error fetching news by message id: %s", err)
	}

	return item, nil
}

func (r Repo) Approve(ctx context.Context, newsID int64) error {
	return r.setStatus(ctx, newsID, newsdesk.StatusApproved)
}

func (r Repo) Decline(ctx context.Context, newsID int64) error {
	return r.setStatus(ctx, newsID, newsdesk.StatusDeclined)
}

// setStatus transitions IN_PROGRESS items only. Applying a decision twice is
// rejected with ErrAlreadyDecided rather than silently re-applied.
func (r Repo) setStatus(ctx context.Context, newsID int64, status newsdesk.NewsStatus) error {
	query, args, err := sq.Update("news").
		Set("status", status).
		Where(sq.Eq{"news_id": newsID, "status": newsdesk.StatusInProgress}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating news status: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %s", err)
	}
	if affected == 0 {
		if _, err := r.NewsItem(ctx, newsID); err != nil {
			return err
		}
		return newsdesk.ErrAlreadyDecided
	}

	return nil
}
