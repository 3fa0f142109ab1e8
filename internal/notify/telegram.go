// Package notify delivers messages through the Telegram bot API: moderation
// channel posts, admin alerts, and audience broadcasts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsdesk/internal/newsdesk"
)

var _ newsdesk.Notifier = (*Telegram)(nil)

type Telegram struct {
	baseURL          string
	moderationChatID int64
	adminIDs         []int64
	client           *http.Client
}

// New registers the bot token, the moderation channel, and the admin chats.
func New(botToken string, moderationChatID int64, adminIDs []int64) *Telegram {
	return &Telegram{
		baseURL:          "https://api.telegram.org/bot" + botToken,
		moderationChatID: moderationChatID,
		adminIDs:         adminIDs,
		client:           &http.Client{Timeout: 5 * time.Second},
	}
}

// Inline keyboard attached to every moderation post.
var moderationKeyboard = func() string {
	kb := map[string]any{
		"inline_keyboard": [][]map[string]string{{
			{"text": "✅", "callback_data": "approve"},
			{"text": "✏️", "callback_data": "edit"},
			{"text": "🗑", "callback_data": "decline"},
		}},
	}
	b, _ := json.Marshal(kb)
	return string(b)
}()

// PostToModerationChannel sends the rendered post with the decision keyboard
// and returns the channel message id.
func (t *Telegram) PostToModerationChannel(ctx context.Context, text string) (int64, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(t.moderationChatID, 10))
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("reply_markup", moderationKeyboard)
	form.Set("link_preview_options", `{"is_disabled":true}`)

	var respBody struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := t.send(ctx, form, &respBody); err != nil {
		return 0, fmt.Errorf("error posting to moderation channel: %w", err)
	}
	if !respBody.OK {
		return 0, fmt.Errorf("telegram rejected moderation post")
	}

	return respBody.Result.MessageID, nil
}

// AlertAdmins delivers the text to every admin chat. Failures are logged,
// never returned: alerting must not take down the caller.
func (t *Telegram) AlertAdmins(ctx context.Context, text string) {
	for _, admin := range t.adminIDs {
		form := url.Values{}
		form.Set("chat_id", strconv.FormatInt(admin, 10))
		form.Set("text", text)

		if err := t.send(ctx, form, nil); err != nil {
			slog.Error("error alerting admin", "admin", admin, "error", err)
		}
	}
}

// DeliverToAudience broadcasts best-effort; a blocked or broken recipient is
// logged and skipped.
func (t *Telegram) DeliverToAudience(ctx context.Context, text string, recipients []int64) {
	for _, recipient := range recipients {
		form := url.Values{}
		form.Set("chat_id", strconv.FormatInt(recipient, 10))
		form.Set("text", text)
		form.Set("parse_mode", "HTML")

		if err := t.send(ctx, form, nil); err != nil {
			slog.Error("error delivering to recipient", "recipient", recipient, "error", err)
		}
	}
}

func (t *Telegram) send(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/sendMessage", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
