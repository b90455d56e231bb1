package usecase

import (
	"time"

	"kbs-slackbot/internal/domain"
)

// DefaultUpdateInterval is the minimum time between two edits of the same
// Slack message. Slack starts rejecting edits when they come faster.
const DefaultUpdateInterval = time.Second

// Throttle decides which intermediate snapshots of one answer are worth an
// edit. It is not safe for concurrent use; each question gets its own.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	emitted bool
	last    time.Time
}

func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now}
}

// Due reports whether snap should be emitted now and, if so, records the
// emission.
func (t *Throttle) Due(snap domain.AnswerSnapshot) bool {
	if snap.Text == "" {
		return false
	}
	now := t.now()
	if t.emitted && now.Sub(t.last) < t.interval {
		return false
	}
	t.emitted = true
	t.last = now
	return true
}
