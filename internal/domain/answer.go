package domain

import (
	"errors"
	"fmt"
)

// MaxCitations is the number of citations Slack can display in one context
// block.
const MaxCitations = 10

// AnswerSnapshot is the answer as known so far. Snapshots are cumulative: a
// later snapshot replaces an earlier one.
type AnswerSnapshot struct {
	Text      string
	Citations []Citation
	Context   map[string]ContextDocument
}

// Citation points at a passage of a knowledge article that supports the answer.
type Citation struct {
	QuotedText string
	ArticleID  string
	Title      string
	Section    string
}

// ContextDocument is a knowledge article the answer was built from.
type ContextDocument struct {
	ArticleID string
	Title     string
	URL       string
}

// ErrMalformedAnswer matches every error caused by a knowledge base payload
// that could not be turned into an answer.
var ErrMalformedAnswer = errors.New("malformed answer")

// FormatError reports a knowledge base payload that breaks the record
// contract: a missing required field or a citation without its article.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("format: %s: %s", e.Field, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrMalformedAnswer
}
