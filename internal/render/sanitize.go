package render

import (
	"regexp"
	"strings"
)

var (
	usernamePattern  = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	emojiPattern     = regexp.MustCompile(`:([a-zA-Z0-9_-]+):`)
	quotePattern     = regexp.MustCompile(`(?m)^>(.*)`)
	quoteLinkPattern = regexp.MustCompile(`\(_(.*)_\)`)
)

// StripMessage removes the parts of a Slack message that should not reach
// the knowledge base: emoji, user mentions, quoted lines and quote links.
func StripMessage(text string) string {
	text = emojiPattern.ReplaceAllString(text, "")
	text = usernamePattern.ReplaceAllString(text, "")
	text = quotePattern.ReplaceAllString(text, "")
	text = quoteLinkPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// MentionedUsers returns the ids of the users mentioned in text, in order.
func MentionedUsers(text string) []string {
	matches := usernamePattern.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}
