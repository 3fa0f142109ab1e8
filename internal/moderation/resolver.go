package moderation

import (
	"context"
	"fmt"

	"newsdesk/internal/newsdesk"
)

// Action is an inbound moderation decision kind.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
)

// ErrUnsupportedAction covers actions outside approve/decline (such as edit).
var ErrUnsupportedAction = fmt.Errorf("unsupported moderation action")

// Resolver applies inbound moderation decisions to their news items.
type Resolver struct {
	repo newsdesk.Repository
}

func NewResolver(repo newsdesk.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve maps a moderation-channel message id back to its news item and
// applies the decision. Only IN_PROGRESS items transition; duplicate webhook
// deliveries surface ErrAlreadyDecided instead of re-applying.
func (r *Resolver) Resolve(ctx context.Context, action Action, messageID int64) (newsdesk.NewsItem, error) {
	item, err := r.repo.NewsItemByMessageID(ctx, messageID)
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error resolving moderation message %d: %w", messageID, err)
	}

	switch action {
	case ActionApprove:
		err = r.repo.Approve(ctx, item.ID)
	case ActionDecline:
		err = r.repo.Decline(ctx, item.ID)
	default:
		return newsdesk.NewsItem{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
	if err != nil {
		return newsdesk.NewsItem{}, fmt.Errorf("error applying %s to news %d: %w", action, item.ID, err)
	}

	return item, nil
}
