package domain

import "time"

// Outcome values recorded for a relayed question.
const (
	OutcomeAnswered      = "answered"
	OutcomeServiceDown   = "service_down"
	OutcomeAuthError     = "auth_error"
	OutcomeBackendError  = "backend_error"
	OutcomeTimeout       = "timeout"
	OutcomeDecodeError   = "decode_error"
	OutcomePlatformError = "platform_error"
)

// Transcript is the record kept for one relayed question.
type Transcript struct {
	RequestID string
	Channel   string
	ThreadTS  string
	Question  string
	Answer    string
	Outcome   string
	Citations int
	Updates   int
	Duration  time.Duration
	CreatedAt time.Time
}
