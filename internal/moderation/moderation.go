// Package moderation hands accepted posts to the human moderation gate and
// resolves the decisions that come back.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"newsdesk/internal/newsdesk"
)

type Handoff struct {
	repo     newsdesk.Repository
	notifier newsdesk.Notifier

	now func() time.Time
}

func NewHandoff(repo newsdesk.Repository, notifier newsdesk.Notifier) *Handoff {
	return &Handoff{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit posts the rendered bilingual message to the moderation channel and
// then persists the full entity set atomically. The channel post happens
// first: if persistence fails afterwards the admins are alerted and the
// orphaned message is left for manual cleanup.
//
// A slug collision is salvaged with a fresh timestamp suffix and retried
// exactly once; a second collision is fatal for the entry.
func (h *Handoff) Submit(ctx context.Context, post newsdesk.BilingualPost, verdict newsdesk.CheckVerdict, source, baseTitle, rawContent string) (newsdesk.NewsItem, error) {
	messageID, err := h.notifier.PostToModerationChannel(ctx, Render(post, source))
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error posting to moderation channel: %w", err)
	}

	tags := make([]newsdesk.Tag, 0, len(post.Tags))
	for i, tag := range post.Tags {
		tags = append(tags, newsdesk.Tag{Name: tag, NameRU: post.TagsRU[i]})
	}

	var (
		item   newsdesk.NewsItem
		salted bool
	)
	err = retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond)), func(ctx context.Context) error {
		saved, err := h.repo.CreateNewsItem(ctx, newsdesk.NewsItem{
			Title:      baseTitle,
			Body:       post.Body,
			TitleRU:    post.TitleRU,
			BodyRU:     post.BodyRU,
			Source:     source,
			SourceText: rawContent,
			Slug:       h.slug(baseTitle),
			Status:     newsdesk.StatusInProgress,
		}, tags, verdict.Detail, messageID)
		if errors.Is(err, newsdesk.ErrConflict) && !salted {
			salted = true
			slog.Warn("news slug collision, regenerating", "title", baseTitle)
			h.notifier.AlertAdmins(ctx, fmt.Sprintf("slug collision while saving %q, retrying with a fresh slug", baseTitle))
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		item = saved
		return nil
	})
	if err != nil {
		h.notifier.AlertAdmins(ctx, fmt.Sprintf(
			"moderation post %d for %q is not persisted: %s", messageID, baseTitle, err))
		return newsdesk.NewsItem{}, fmt.Errorf("error persisting news item: %w", err)
	}

	return item, nil
}

// slug derives the unique slug: lowercased dashed title plus a timestamp
// suffix. Each call produces a fresh suffix, which is what the salvage retry
// relies on.
func (h *Handoff) slug(baseTitle string) string {
	return fmt.Sprintf("%s-%d", newsdesk.Slugify(baseTitle), h.now().UnixNano())
}

var websiteNameRe = regexp.MustCompile(`https?://(?:www\.)?([^/.]+)`)

// Render builds the moderation-channel message: translated title, translated
// body, hashtags, and a source link labeled with the site name.
func Render(post newsdesk.BilingualPost, source string) string {
	var sb strings.Builder
	sb.WriteString(post.TitleRU)
	sb.WriteString("\n\n")
	sb.WriteString(post.BodyRU)
	if len(post.TagsRU) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(post.TagsRU, "\n"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("<a href='%s'>%s</a>", source, websiteName(source)))

	return sb.String()
}

func websiteName(source string) string {
	m := websiteNameRe.FindStringSubmatch(source)
	if m == nil {
		return source
	}
	return m[1]
}
