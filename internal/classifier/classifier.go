// Package classifier implements the text-understanding backend on Claude with
// JSON-schema constrained outputs, one operation per capability.
package classifier

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"newsdesk/internal/newsdesk"
)

//go:embed relevance_prompt.txt
var relevancePrompt string

//go:embed duplicate_prompt.txt
var duplicatePrompt string

//go:embed summarize_prompt.txt
var summarizePrompt string

//go:embed translate_prompt.txt
var translatePrompt string

// Use schemas to constrain each operation's output
var (
	relevanceFormat = anthropic.BetaJSONSchemaOutputFormat(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"relevant": map[string]any{"type": "boolean"},
			"reason":   map[string]any{"type": "string"},
		},
		"required": []string{"relevant", "reason"},
	})
	duplicateFormat = anthropic.BetaJSONSchemaOutputFormat(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duplicate": map[string]any{"type": "boolean"},
		},
		"required": []string{"duplicate"},
	})
	summaryFormat = anthropic.BetaJSONSchemaOutputFormat(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"body":  map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"title", "body", "tags"},
	})
	translationFormat = anthropic.BetaJSONSchemaOutputFormat(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title_ru": map[string]any{"type": "string"},
			"body_ru":  map[string]any{"type": "string"},
			"tags_ru": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"title_ru", "body_ru", "tags_ru"},
	})
)

var _ newsdesk.Classifier = (*Client)(nil)

type Config struct {
	APIKey string
	// CheckModel judges relevance and duplicates; WriteModel produces the
	// summary and the translation.
	CheckModel anthropic.Model
	WriteModel anthropic.Model
}

type Client struct {
	claude     anthropic.Client
	checkModel anthropic.Model
	writeModel anthropic.Model
}

func New(cfg Config) *Client {
	if cfg.CheckModel == "" {
		cfg.CheckModel = anthropic.ModelClaudeHaiku4_5
	}
	if cfg.WriteModel == "" {
		cfg.WriteModel = anthropic.ModelClaudeHaiku4_5
	}

	return &Client{
		claude:     anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		checkModel: cfg.CheckModel,
		writeModel: cfg.WriteModel,
	}
}

func (c *Client) CheckRelevance(ctx context.Context, article string) (newsdesk.RelevanceVerdict, error) {
	var verdict newsdesk.RelevanceVerdict
	err := c.complete(ctx, c.checkModel, relevanceFormat,
		fmt.Sprintf(relevancePrompt, article), &verdict)
	if err != nil {
		return newsdesk.RelevanceVerdict{}, err
	}

	return verdict, nil
}

func (c *Client) CheckDuplicate(ctx context.Context, title string, recent []string) (bool, error) {
	titles, err := json.Marshal(recent)
	if err != nil {
		return false, fmt.Errorf("error marshaling titles: %s", err)
	}

	var out struct {
		Duplicate bool `json:"duplicate"`
	}
	err = c.complete(ctx, c.checkModel, duplicateFormat,
		fmt.Sprintf(duplicatePrompt, title, string(titles)), &out)
	if err != nil {
		return false, err
	}

	return out.Duplicate, nil
}

func (c *Client) Summarize(ctx context.Context, article string) (newsdesk.Summary, error) {
	var summary newsdesk.Summary
	err := c.complete(ctx, c.writeModel, summaryFormat,
		fmt.Sprintf(summarizePrompt, article), &summary)
	if err != nil {
		return newsdesk.Summary{}, err
	}

	return summary, nil
}

func (c *Client) Translate(ctx context.Context, s newsdesk.Summary, glossary []newsdesk.Term) (newsdesk.Translation, error) {
	terms := make([]string, 0, len(glossary))
	for _, term := range glossary {
		terms = append(terms, fmt.Sprintf("%s : %s", term.Original, term.Translation))
	}

	source := fmt.Sprintf("%s\n%s\n\n%s", s.Title, s.Body, strings.Join(s.Tags, " "))

	var translation newsdesk.Translation
	err := c.complete(ctx, c.writeModel, translationFormat,
		fmt.Sprintf(translatePrompt, source, strings.Join(terms, "\n")), &translation)
	if err != nil {
		return newsdesk.Translation{}, err
	}

	return translation, nil
}

// complete sends one user message and unmarshals the schema-constrained
// response into out.
func (c *Client) complete(ctx context.Context, model anthropic.Model, format anthropic.BetaJSONOutputFormatParam, prompt string, out any) error {
	resp, err := c.claude.Beta.Messages.New(ctx, anthropic.BetaMessageNewParams{
		Model: model,
		Betas: []anthropic.AnthropicBeta{
			"structured-outputs-2025-11-13",
		},
		MaxTokens:    2048,
		OutputFormat: format,
		Messages: []anthropic.BetaMessageParam{
			anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(prompt)),
		},
	})
	if err != nil {
		return fmt.Errorf("claude error: %w", err)
	}

	var sb strings.Builder
	for _, content := range resp.Content {
		sb.WriteString(content.Text)
	}
	if err := json.Unmarshal([]byte(sb.String()), out); err != nil {
		return fmt.Errorf("error unmarshaling claude json: %s", err)
	}

	return nil
}
