package render

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"kbs-slackbot/internal/domain"
)

// maxSectionText is the Slack limit for the text of a section block.
const maxSectionText = 3000

// Message is a rendered answer ready to be posted or edited into Slack.
type Message struct {
	// Text is the notification and fallback text.
	Text   string
	Blocks []slack.Block
}

// RenderedCitation is a citation joined with its article.
type RenderedCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Quote   string `json:"quote"`
	Section string `json:"section,omitempty"`
}

// Citations joins the first domain.MaxCitations citations of snap with their
// context documents. A citation pointing at an unknown article is a
// *domain.FormatError.
func Citations(snap domain.AnswerSnapshot) ([]RenderedCitation, error) {
	cites := snap.Citations
	if len(cites) > domain.MaxCitations {
		cites = cites[:domain.MaxCitations]
	}

	out := make([]RenderedCitation, 0, len(cites))
	for i, c := range cites {
		doc, ok := snap.Context[c.ArticleID]
		if !ok {
			return nil, &domain.FormatError{
				Field:  fmt.Sprintf("citations[%d].article", i),
				Reason: fmt.Sprintf("no context document for %q", c.ArticleID),
			}
		}
		title := c.Title
		if title == "" {
			title = doc.Title
		}
		quote := strings.Join(strings.Fields(c.QuotedText), " ")
		out = append(out, RenderedCitation{
			Title:   title,
			URL:     HighlightURL(doc.URL, quote),
			Quote:   quote,
			Section: strings.TrimSpace(c.Section),
		})
	}
	return out, nil
}

// Format renders snap as an answer section followed by a context block with
// the citations. The context block is left out when there are none.
func Format(snap domain.AnswerSnapshot) (Message, error) {
	cites, err := Citations(snap)
	if err != nil {
		return Message{}, err
	}

	answer := Translate(snap.Text)
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, truncate(answer, maxSectionText), false, false),
			nil, nil,
		),
	}
	if len(cites) == 0 {
		return Message{Text: answer, Blocks: blocks}, nil
	}

	elements := make([]slack.MixedElement, 0, len(cites))
	fallback := make([]string, 0, len(cites))
	for _, c := range cites {
		elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType, citationText(c), false, false))
		fallback = append(fallback, fmt.Sprintf("> %s (_<%s|%s>_)", c.Quote, c.URL, c.Title))
	}
	blocks = append(blocks, slack.NewContextBlock("", elements...))

	return Message{
		Text:   answer + "\n\n" + strings.Join(fallback, "\n"),
		Blocks: blocks,
	}, nil
}

// Plain renders text alone in a section block. Used for placeholders and
// apologies.
func Plain(text string) Message {
	return Message{
		Text: text,
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		},
	}
}

func citationText(c RenderedCitation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*<%s|%s>*", c.URL, c.Title)
	if c.Section != "" {
		fmt.Fprintf(&b, " (%s)", c.Section)
	}
	if c.Quote != "" {
		fmt.Fprintf(&b, "\n_%s_", c.Quote)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
