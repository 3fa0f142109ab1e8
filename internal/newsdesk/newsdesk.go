// Package newsdesk holds the domain types and service surfaces shared by the
// ingestion pipeline, the moderation handoff, and the storage layer.
package newsdesk

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict       = errors.New("resource already exists")
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyDecided = errors.New("moderation decision already applied")
)

// Body persisted for news items that only exist to record a rejection.
// Anything with this body can never pass the title-existence check again.
const TombstoneBody = "rejected"

type NewsStatus string

const (
	StatusInProgress NewsStatus = "IN_PROGRESS"
	StatusApproved   NewsStatus = "APPROVED"
	StatusDeclined   NewsStatus = "DECLINED"
)

// RejectReason classifies why an entry was turned away by the checks.
type RejectReason string

const (
	ReasonNone        RejectReason = "none"
	ReasonStale       RejectReason = "stale"
	ReasonAlreadySeen RejectReason = "exists"
	ReasonNotRelevant RejectReason = "not_relevant"
	ReasonDuplicate   RejectReason = "duplicate"
)

type (
	// FeedSource is a content feed the poller reads. Read-only during a cycle.
	FeedSource struct {
		ID        int64     `db:"source_id"`
		URL       string    `db:"url"`
		Kind      string    `db:"kind"`
		Active    bool      `db:"active"`
		CreatedAt time.Time `db:"created_at"`
	}

	// FeedEntry is one item emitted by a feed. It is never persisted; the
	// link is its identity for the lifetime of the process.
	FeedEntry struct {
		Link        string
		Title       string
		PublishedAt time.Time
	}

	// CheckVerdict is the outcome of running an entry through the checks.
	// Detail carries the classifier's reasoning for the audit trail.
	CheckVerdict struct {
		Failed bool
		Reason RejectReason
		Detail string
	}

	// NewsItem is the persisted unit: either a moderation candidate or a
	// tombstone recording a rejection. Slug is unique and immutable.
	NewsItem struct {
		ID         int64      `db:"news_id"`
		Title      string     `db:"title"`
		Body       string     `db:"body"`
		TitleRU    string     `db:"title_ru"`
		BodyRU     string     `db:"body_ru"`
		Source     string     `db:"source"`
		SourceText string     `db:"source_text"`
		Slug       string     `db:"slug"`
		Status     NewsStatus `db:"status"`
		CreatedAt  time.Time  `db:"created_at"`
	}

	// Tag is owned by a NewsItem and deleted with it.
	Tag struct {
		ID     int64  `db:"tag_id"`
		NewsID int64  `db:"news_id"`
		Name   string `db:"name"`
		NameRU string `db:"name_ru"`
	}

	// CheckResult is the write-once audit record attached to a NewsItem.
	CheckResult struct {
		ID        int64     `db:"check_id"`
		NewsID    int64     `db:"news_id"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
	}

	// ModerationMessage links a moderation-channel message to its NewsItem
	// so an incoming decision can be resolved back. At most one per item.
	ModerationMessage struct {
		ID        int64 `db:"id"`
		MessageID int64 `db:"message_id"`
		NewsID    int64 `db:"news_id"`
	}

	// Term is a glossary pair consulted during translation.
	Term struct {
		ID          int64  `db:"term_id"`
		Original    string `db:"original"`
		Translation string `db:"translation"`
	}

	// Summary is the structured English brief produced from raw content.
	Summary struct {
		Title string   `json:"title"`
		Body  string   `json:"body"`
		Tags  []string `json:"tags"`
	}

	// Translation is the Russian rendition of a Summary.
	Translation struct {
		TitleRU string   `json:"title_ru"`
		BodyRU  string   `json:"body_ru"`
		TagsRU  []string `json:"tags_ru"`
	}

	// BilingualPost is the full transformed post awaiting moderation.
	BilingualPost struct {
		Summary
		Translation
	}

	// RelevanceVerdict is the classifier's relevance judgement.
	RelevanceVerdict struct {
		Relevant bool   `json:"relevant"`
		Reason   string `json:"reason"`
	}

	// Article is rendered page content returned by the fetcher.
	Article struct {
		Text        string
		Title       string
		Source      string
		PublishedAt time.Time
	}
)

// Tombstone holds the fields needed to durably record a rejection.
type Tombstone struct {
	Title      string
	Source     string
	SourceText string
	Slug       string
	Reason     string
}

type (
	// Repository is the durable store contract.
	Repository interface {
		ActiveFeedSources(ctx context.Context) ([]FeedSource, error)
		Glossary(ctx context.Context) ([]Term, error)
		// TitlesSince returns the titles of all news items created at or
		// after the given time.
		TitlesSince(ctx context.Context, since time.Time) ([]string, error)
		CreateTombstone(ctx context.Context, t Tombstone) (NewsItem, error)
		// CreateNewsItem persists the item, its tags, its check result and
		// its moderation message as a single atomic unit.
		CreateNewsItem(ctx context.Context, item NewsItem, tags []Tag, reason string, messageID int64) (NewsItem, error)
		NewsItemByMessageID(ctx context.Context, messageID int64) (NewsItem, error)
		Approve(ctx context.Context, newsID int64) error
		Decline(ctx context.Context, newsID int64) error
	}

	// Fetcher renders a linked page into text and metadata.
	Fetcher interface {
		Fetch(ctx context.Context, link string) (Article, error)
	}

	// Classifier is the text-understanding backend, one method per
	// capability, each with its own strict input/output schema.
	Classifier interface {
		CheckRelevance(ctx context.Context, article string) (RelevanceVerdict, error)
		// CheckDuplicate reports whether title describes the same event as
		// any of the recent titles.
		CheckDuplicate(ctx context.Context, title string, recent []string) (bool, error)
		Summarize(ctx context.Context, article string) (Summary, error)
		Translate(ctx context.Context, s Summary, glossary []Term) (Translation, error)
	}

	// Notifier delivers messages to the moderation channel, the admins, and
	// the audience.
	Notifier interface {
		// PostToModerationChannel returns the channel message id.
		PostToModerationChannel(ctx context.Context, text string) (int64, error)
		AlertAdmins(ctx context.Context, text string)
		// DeliverToAudience is best-effort; per-recipient failures are
		// logged, not returned.
		DeliverToAudience(ctx context.Context, text string, recipients []int64)
	}
)
