package render

import (
	"regexp"
	"strings"
)

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// urlSpan matches the target of a Slack link and bare URLs. Emphasis rules
// leave it untouched.
const urlSpan = `<[^<>|\s]+\||https?://[^\s<>|]+`

type emphasis struct {
	pattern *regexp.Regexp
	marker  string
}

// Links are rewritten first; the emphasis rules then skip every URL.
var emphasisRewrites = []emphasis{
	{regexp.MustCompile(urlSpan + `|\*+([\p{L}\p{N} -]+)\*+`), "*"},
	{regexp.MustCompile(urlSpan + `|_+([\p{L}\p{N} -]+)_+`), "_"},
}

// Translate rewrites the markdown produced by the knowledge base into Slack
// mrkdwn. Doubled emphasis markers collapse to single ones.
func Translate(text string) string {
	text = markdownLink.ReplaceAllString(text, "<$2|$1>")
	for _, em := range emphasisRewrites {
		text = em.apply(text)
	}
	return text
}

func (em emphasis) apply(text string) string {
	matches := em.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		if m[2] < 0 {
			b.WriteString(text[m[0]:m[1]])
		} else {
			b.WriteString(em.marker)
			b.WriteString(text[m[2]:m[3]])
			b.WriteString(em.marker)
		}
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
