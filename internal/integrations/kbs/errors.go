package kbs

import (
	"fmt"

	"kbs-slackbot/internal/domain"
)

// BackendError captures a non-2xx answer from the knowledge base.
type BackendError struct {
	Status    int
	Reason    string
	RequestID string
	Body      string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("kbs: unexpected status %d %s (request %s): %s", e.Status, e.Reason, e.RequestID, e.Body)
}

func (e *BackendError) HTTPStatusCode() int {
	return e.Status
}

// StreamDecodeError is returned when an event payload cannot be decoded into
// an answer snapshot. Line holds the raw payload for diagnostics.
type StreamDecodeError struct {
	Line string
	Err  error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("kbs: decode event: %v", e.Err)
}

// RawPayload returns the payload that failed to decode.
func (e *StreamDecodeError) RawPayload() string {
	return e.Line
}

func (e *StreamDecodeError) Unwrap() error {
	return e.Err
}

func (e *StreamDecodeError) Is(target error) bool {
	return target == domain.ErrMalformedAnswer
}
