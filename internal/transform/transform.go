// Package transform turns accepted raw content into a bilingual structured
// post through two chained classifier calls, validating each result against
// its schema.
package transform

import (
	"context"
	"fmt"
	"strings"

	goaway "github.com/TwiN/go-away"
	"github.com/sym01/htmlsanitizer"

	"newsdesk/internal/newsdesk"
)

// Error marks a malformed classifier output. The entry already passed
// relevance, so this is surfaced to admins rather than tombstoned.
type Error struct {
	Stage string // "summarize" or "translate"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transformation failed at %s: %s", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Tag whitelists; translation tags must map 1:1 onto the English set.
var (
	tagWhitelist = map[string]struct{}{
		"#lightning": {}, "#mining": {}, "#economy": {}, "#protocol": {},
		"#releases": {}, "#privacy": {}, "#regulation": {}, "#security": {},
		"#investment": {}, "#scam": {}, "#speculation": {},
	}
	tagWhitelistRU = map[string]struct{}{
		"#лайтнинг": {}, "#майнинг": {}, "#экономика": {}, "#протокол": {},
		"#релизы": {}, "#приватность": {}, "#регуляции": {}, "#безопасность": {},
		"#инвестиции": {}, "#скам": {}, "#спекуляции": {},
	}
)

const (
	titleMinWords = 5
	titleMaxWords = 14
	bodyMaxWords  = 120
	titleMaxRunes = 120
)

type Stage struct {
	classifier newsdesk.Classifier
}

func New(classifier newsdesk.Classifier) *Stage {
	return &Stage{classifier: classifier}
}

// Transform summarizes the raw content and translates the summary with the
// glossary applied. Any malformed intermediate result aborts with an *Error.
func (s *Stage) Transform(ctx context.Context, rawContent string, glossary []newsdesk.Term) (newsdesk.BilingualPost, error) {
	summary, err := s.classifier.Summarize(ctx, rawContent)
	if err != nil {
		return newsdesk.BilingualPost{}, &Error{Stage: "summarize", Err: err}
	}
	if err := validateSummary(summary); err != nil {
		return newsdesk.BilingualPost{}, &Error{Stage: "summarize", Err: err}
	}

	translation, err := s.classifier.Translate(ctx, summary, glossary)
	if err != nil {
		return newsdesk.BilingualPost{}, &Error{Stage: "translate", Err: err}
	}
	if err := validateTranslation(summary, translation); err != nil {
		return newsdesk.BilingualPost{}, &Error{Stage: "translate", Err: err}
	}

	return newsdesk.BilingualPost{Summary: summary, Translation: translation}, nil
}

func validateSummary(s newsdesk.Summary) error {
	title := strings.TrimSpace(stripMarkup(s.Title))
	if title == "" {
		return fmt.Errorf("empty title")
	}
	if n := len(strings.Fields(title)); n < titleMinWords || n > titleMaxWords {
		return fmt.Errorf("title word count %d outside band", n)
	}

	body := strings.TrimSpace(stripMarkup(s.Body))
	if body == "" {
		return fmt.Errorf("empty body")
	}
	if n := len(strings.Fields(body)); n > bodyMaxWords {
		return fmt.Errorf("body word count %d over limit", n)
	}
	if strings.Contains(body, "#") {
		return fmt.Errorf("hashtags outside the tags field")
	}

	if err := validateMarkup(s.Title, s.Body); err != nil {
		return err
	}
	if err := validateTags(s.Tags, tagWhitelist); err != nil {
		return err
	}

	if goaway.IsProfane(title) || goaway.IsProfane(body) {
		return fmt.Errorf("profanity in generated text")
	}

	return nil
}

func validateTranslation(s newsdesk.Summary, t newsdesk.Translation) error {
	title := strings.TrimSpace(stripMarkup(t.TitleRU))
	if title == "" {
		return fmt.Errorf("empty translated title")
	}
	if n := len([]rune(title)); n > titleMaxRunes {
		return fmt.Errorf("translated title length %d over limit", n)
	}
	if strings.TrimSpace(stripMarkup(t.BodyRU)) == "" {
		return fmt.Errorf("empty translated body")
	}

	if err := validateMarkup(t.TitleRU, t.BodyRU); err != nil {
		return err
	}
	if err := validateTags(t.TagsRU, tagWhitelistRU); err != nil {
		return err
	}
	if len(t.TagsRU) != len(s.Tags) {
		return fmt.Errorf("tag cardinality mismatch: %d translated vs %d original", len(t.TagsRU), len(s.Tags))
	}

	return nil
}

func validateTags(tags []string, whitelist map[string]struct{}) error {
	if len(tags) > 2 {
		return fmt.Errorf("too many tags: %d", len(tags))
	}
	for _, tag := range tags {
		if _, ok := whitelist[tag]; !ok {
			return fmt.Errorf("tag %q not in whitelist", tag)
		}
	}
	return nil
}

// The markup subset the moderation channel accepts.
var allowedMarkup = &htmlsanitizer.AllowList{
	Tags: []*htmlsanitizer.Tag{
		{Name: "b"}, {Name: "strong"}, {Name: "i"}, {Name: "em"},
		{Name: "u"}, {Name: "ins"}, {Name: "s"}, {Name: "strike"},
		{Name: "del"}, {Name: "code"}, {Name: "pre"}, {Name: "blockquote"},
		{Name: "tg-spoiler"},
		{Name: "a", URLAttr: []string{"href"}},
		{Name: "span", Attr: []string{"class"}},
	},
}

// validateMarkup rejects any field whose markup falls outside the allowed
// subset: sanitizing with the allowlist must be a no-op.
func validateMarkup(fields ...string) error {
	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	sanitizer.AllowList = allowedMarkup

	for _, field := range fields {
		clean, err := sanitizer.SanitizeString(field)
		if err != nil {
			return fmt.Errorf("error checking markup: %s", err)
		}
		if clean != field {
			return fmt.Errorf("markup outside the allowed subset")
		}
	}

	return nil
}

// stripMarkup removes every tag for word and length counting.
func stripMarkup(s string) string {
	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	sanitizer.AllowList = nil
	out, err := sanitizer.SanitizeString(s)
	if err != nil {
		return s
	}
	return out
}
