package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kbs-slackbot/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorServiceDown  ErrorCode = "SERVICE_DOWN"
	ErrorAuth         ErrorCode = "AUTH_ERROR"
	ErrorBackend      ErrorCode = "BACKEND_ERROR"
	ErrorTimeout      ErrorCode = "TIMEOUT"
	ErrorDecode       ErrorCode = "DECODE_ERROR"
	ErrorPlatform     ErrorCode = "PLATFORM_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// Outcome is the transcript and metrics label for the code.
func (c ErrorCode) Outcome() string {
	return strings.ToLower(string(c))
}

// UserMessage is the apology shown in Slack when a question fails with code.
// Platform and input errors have none.
func UserMessage(code ErrorCode, requestID string) string {
	switch code {
	case ErrorServiceDown:
		return "The knowledge base is not running right now :construction:"
	case ErrorAuth, ErrorBackend:
		return fmt.Sprintf("Oh no! Something went wrong in the knowledge base :scream: (ID: %s)", requestID)
	case ErrorTimeout:
		return fmt.Sprintf("The knowledge base is not responding (ID: %s) :shrug:", requestID)
	case ErrorDecode:
		return fmt.Sprintf("The knowledge base is talking in tongues (ID: %s) :ghost:", requestID)
	default:
		return ""
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// dispatchCode classifies an error from sending the question or reading the
// answer.
func dispatchCode(err error) ErrorCode {
	switch {
	case isTimeout(err):
		return ErrorTimeout
	case errors.Is(err, domain.ErrMalformedAnswer):
		return ErrorDecode
	default:
		return ErrorBackend
	}
}
