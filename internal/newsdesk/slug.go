package newsdesk

import "strings"

// Slugify lowercases a title and joins its words with dashes. Slugs exist for
// uniqueness, not for human-stable URLs; callers append their own uniqueness
// suffix.
func Slugify(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}
