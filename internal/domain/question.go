package domain

// Question is an inbound Slack message the bot has decided to answer.
type Question struct {
	Channel string
	// ThreadTS is the thread the message was posted in, empty for a top-level
	// message.
	ThreadTS string
	TS       string
	User     string
	Text     string
}

// Thread returns the timestamp of the thread the answer belongs in.
func (q Question) Thread() string {
	if q.ThreadTS != "" {
		return q.ThreadTS
	}
	return q.TS
}

// MessageRef identifies a posted Slack message so it can be edited.
type MessageRef struct {
	Channel string
	TS      string
}

// AnswerStream yields cumulative answer snapshots. Each snapshot replaces the
// previous one.
type AnswerStream interface {
	Next() bool
	Snapshot() AnswerSnapshot
	Err() error
	Close() error
}
