package kbs

import (
	"fmt"
	"strings"

	"kbs-slackbot/internal/domain"
)

// chatEvent is one answer payload, either a streamed event or the whole
// non-streaming response.
type chatEvent struct {
	Answer  *answerPayload   `json:"answer"`
	Context []contextPayload `json:"context"`
}

type answerPayload struct {
	Text      string            `json:"text"`
	Citations []citationPayload `json:"citations"`
}

type citationPayload struct {
	Text    string `json:"text"`
	Article string `json:"article"`
	Title   string `json:"title"`
	Section string `json:"section"`
}

type contextPayload struct {
	Content  string `json:"content"`
	Metadata struct {
		KnowledgeArticleID string `json:"KnowledgeArticleId"`
		URL                string `json:"KnowledgeArticle_QuartoUrl"`
		Title              string `json:"Title"`
	} `json:"metadata"`
}

func (e chatEvent) snapshot() (domain.AnswerSnapshot, error) {
	if e.Answer == nil {
		return domain.AnswerSnapshot{}, &domain.FormatError{Field: "answer", Reason: "missing"}
	}

	citations := make([]domain.Citation, 0, len(e.Answer.Citations))
	for i, c := range e.Answer.Citations {
		if strings.TrimSpace(c.Article) == "" {
			return domain.AnswerSnapshot{}, &domain.FormatError{
				Field:  fmt.Sprintf("answer.citations[%d].article", i),
				Reason: "missing",
			}
		}
		citations = append(citations, domain.Citation{
			QuotedText: c.Text,
			ArticleID:  c.Article,
			Title:      c.Title,
			Section:    c.Section,
		})
	}

	docs := make(map[string]domain.ContextDocument, len(e.Context))
	for i, ctx := range e.Context {
		md := ctx.Metadata
		if strings.TrimSpace(md.KnowledgeArticleID) == "" {
			return domain.AnswerSnapshot{}, &domain.FormatError{
				Field:  fmt.Sprintf("context[%d].metadata.KnowledgeArticleId", i),
				Reason: "missing",
			}
		}
		if strings.TrimSpace(md.URL) == "" {
			return domain.AnswerSnapshot{}, &domain.FormatError{
				Field:  fmt.Sprintf("context[%d].metadata.KnowledgeArticle_QuartoUrl", i),
				Reason: "missing",
			}
		}
		docs[md.KnowledgeArticleID] = domain.ContextDocument{
			ArticleID: md.KnowledgeArticleID,
			Title:     md.Title,
			URL:       md.URL,
		}
	}

	return domain.AnswerSnapshot{
		Text:      e.Answer.Text,
		Citations: citations,
		Context:   docs,
	}, nil
}
