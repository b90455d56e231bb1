package render

import (
	"net/url"
	"strings"
)

const (
	fragmentWords     = 4
	textFragmentStart = ":~:text="
)

var fragmentEscaper = strings.NewReplacer("-", "%2D", "&", "%26")

// HighlightURL links to articleURL with a text fragment that highlights quote.
// Long quotes are anchored by their first and last four words. An empty quote
// yields the bare URL.
func HighlightURL(articleURL, quote string) string {
	words := strings.Fields(quote)
	if len(words) == 0 {
		return articleURL
	}

	var directive string
	if len(words) <= 2*fragmentWords {
		directive = textFragmentStart + escapeFragment(strings.Join(words, " "))
	} else {
		start := strings.Join(words[:fragmentWords], " ")
		end := strings.Join(words[len(words)-fragmentWords:], " ")
		directive = textFragmentStart + escapeFragment(start) + "," + escapeFragment(end)
	}

	if strings.Contains(articleURL, "#") {
		return articleURL + directive
	}
	return articleURL + "#" + directive
}

func escapeFragment(s string) string {
	return fragmentEscaper.Replace(url.PathEscape(s))
}
