// Package pipeline runs the per-entry verification checks and records
// rejections durably.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"newsdesk/internal/newsdesk"
)

const (
	// Entries older than this are stale and never reach the classifier.
	freshnessWindow = 24 * time.Hour
	// Trailing window for the exact-title existence check.
	existsWindow = 3 * 24 * time.Hour
	// Trailing window of titles handed to the duplicate classifier.
	duplicateWindow = 24 * time.Hour
)

type Pipeline struct {
	repo       newsdesk.Repository
	classifier newsdesk.Classifier
	notifier   newsdesk.Notifier

	now func() time.Time
}

func New(repo newsdesk.Repository, classifier newsdesk.Classifier, notifier newsdesk.Notifier) *Pipeline {
	return &Pipeline{
		repo:       repo,
		classifier: classifier,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Evaluate runs the checks in order, short-circuiting on the first failure:
// freshness, exact-title existence, semantic duplicate, relevance.
//
// Semantic rejections (duplicate, not relevant) are tombstoned so the
// title-existence check catches the entry on any later pass. A non-nil error
// means the entry was not durably recorded and stays eligible for the next
// cycle.
func (p *Pipeline) Evaluate(ctx context.Context, title, source, rawContent string, publishedAt time.Time) (newsdesk.CheckVerdict, error) {
	now := p.now().UTC()

	if now.Sub(publishedAt.UTC()) > freshnessWindow {
		return newsdesk.CheckVerdict{Failed: true, Reason: newsdesk.ReasonStale}, nil
	}

	existing, err := p.repo.TitlesSince(ctx, now.Add(-existsWindow))
	if err != nil {
		return newsdesk.CheckVerdict{}, fmt.Errorf("error loading recent titles: %w", err)
	}
	if slices.Contains(existing, title) {
		return newsdesk.CheckVerdict{Failed: true, Reason: newsdesk.ReasonAlreadySeen}, nil
	}

	verdict := p.classify(ctx, title, rawContent, now)

	if verdict.Failed && isSemanticRejection(verdict.Reason) {
		if err := p.writeTombstone(ctx, title, source, rawContent, verdict); err != nil {
			return verdict, err
		}
	}

	return verdict, nil
}

// classify runs the two classifier stages. Classifier failures reject the
// entry as not relevant: the pipeline fails closed, never open.
func (p *Pipeline) classify(ctx context.Context, title, rawContent string, now time.Time) newsdesk.CheckVerdict {
	recent, err := p.repo.TitlesSince(ctx, now.Add(-duplicateWindow))
	if err != nil {
		slog.Error("error loading duplicate-window titles", "error", err)
		return newsdesk.CheckVerdict{
			Failed: true,
			Reason: newsdesk.ReasonNotRelevant,
			Detail: fmt.Sprintf("store error during duplicate check: %s", err),
		}
	}

	duplicate, err := p.classifier.CheckDuplicate(ctx, title, recent)
	if err != nil {
		slog.Error("duplicate check failed", "title", title, "error", err)
		return newsdesk.CheckVerdict{
			Failed: true,
			Reason: newsdesk.ReasonNotRelevant,
			Detail: fmt.Sprintf("classifier error: %s", err),
		}
	}
	if duplicate {
		return newsdesk.CheckVerdict{Failed: true, Reason: newsdesk.ReasonDuplicate}
	}

	relevance, err := p.classifier.CheckRelevance(ctx, rawContent)
	if err != nil {
		slog.Error("relevance check failed", "title", title, "error", err)
		return newsdesk.CheckVerdict{
			Failed: true,
			Reason: newsdesk.ReasonNotRelevant,
			Detail: fmt.Sprintf("classifier error: %s", err),
		}
	}
	if !relevance.Relevant {
		return newsdesk.CheckVerdict{
			Failed: true,
			Reason: newsdesk.ReasonNotRelevant,
			Detail: relevance.Reason,
		}
	}

	// The justification rides along for the audit trail.
	return newsdesk.CheckVerdict{Reason: newsdesk.ReasonNone, Detail: relevance.Reason}
}

func isSemanticRejection(reason newsdesk.RejectReason) bool {
	return reason == newsdesk.ReasonNotRelevant || reason == newsdesk.ReasonDuplicate
}

// writeTombstone records the rejection. A slug collision is salvaged by
// salting the slug and retrying exactly once; a second collision escalates to
// the admins and drops the entry for this cycle.
func (p *Pipeline) writeTombstone(ctx context.Context, title, source, rawContent string, verdict newsdesk.CheckVerdict) error {
	reason := verdict.Detail
	if reason == "" {
		reason = string(verdict.Reason)
	}

	slug := newsdesk.Slugify(title)
	salted := false

	err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond)), func(ctx context.Context) error {
		_, err := p.repo.CreateTombstone(ctx, newsdesk.Tombstone{
			Title:      title,
			Source:     source,
			SourceText: rawContent,
			Slug:       slug,
			Reason:     reason,
		})
		if errors.Is(err, newsdesk.ErrConflict) && !salted {
			salted = true
			slug = fmt.Sprintf("%s-%s", slug, uuid.NewString())
			slog.Warn("tombstone slug collision, salting", "title", title, "slug", slug)
			p.notifier.AlertAdmins(ctx, fmt.Sprintf("slug collision while recording rejection of %q, retrying with salted slug", title))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		p.notifier.AlertAdmins(ctx, fmt.Sprintf("unable to record rejection of %q: %s", title, err))
		return fmt.Errorf("error writing tombstone: %w", err)
	}

	return nil
}
