package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

// fakeStream yields snapshots; before each one it runs the matching step so
// tests can move the clock between events.
type fakeStream struct {
	snaps  []domain.AnswerSnapshot
	before []func()
	err    error

	pos    int
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.pos >= len(s.snaps) {
		return false
	}
	if s.pos < len(s.before) && s.before[s.pos] != nil {
		s.before[s.pos]()
	}
	s.pos++
	return true
}

func (s *fakeStream) Snapshot() domain.AnswerSnapshot { return s.snaps[s.pos-1] }

func (s *fakeStream) Err() error {
	if s.pos >= len(s.snaps) {
		return s.err
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeMessenger struct {
	mu          sync.Mutex
	placeholder string
	postErr     error
	updateErr   error
	failUpdates int
	updates     []render.Message
}

func (m *fakeMessenger) PostPlaceholder(_ context.Context, channel, _ string, text string) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeholder = text
	if m.postErr != nil {
		return domain.MessageRef{}, m.postErr
	}
	return domain.MessageRef{Channel: channel, TS: "1700000000.000100"}, nil
}

func (m *fakeMessenger) UpdateMessage(_ context.Context, _ domain.MessageRef, msg render.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, msg)
	if m.failUpdates > 0 {
		m.failUpdates--
		return errors.New("slack: ratelimited")
	}
	return m.updateErr
}

type fakeHistory struct {
	turns []domain.ChatTurn
	err   error
}

func (h *fakeHistory) History(context.Context, string, string) ([]domain.ChatTurn, error) {
	return h.turns, h.err
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeKB struct {
	alive     bool
	stream    *fakeStream
	streamErr error
	answer    domain.AnswerSnapshot
	chatErr   error

	chatCalls int
	lastToken string
	lastReqID string
	lastReq   domain.ChatRequest
}

func (k *fakeKB) IsAlive(context.Context) bool { return k.alive }

func (k *fakeKB) StreamChat(_ context.Context, token, requestID string, req domain.ChatRequest) (domain.AnswerStream, error) {
	k.chatCalls++
	k.lastToken, k.lastReqID, k.lastReq = token, requestID, req
	if k.streamErr != nil {
		return nil, k.streamErr
	}
	return k.stream, nil
}

func (k *fakeKB) Chat(_ context.Context, token, requestID string, req domain.ChatRequest) (domain.AnswerSnapshot, error) {
	k.chatCalls++
	k.lastToken, k.lastReqID, k.lastReq = token, requestID, req
	return k.answer, k.chatErr
}

type fakeTranscripts struct {
	saved []domain.Transcript
	err   error
}

func (f *fakeTranscripts) SaveTranscript(_ context.Context, t domain.Transcript) error {
	f.saved = append(f.saved, t)
	return f.err
}

type fakeMetrics struct {
	outcomes []string
	updates  []bool
}

func (f *fakeMetrics) QuestionFinished(outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeMetrics) MessageUpdated(final bool) {
	f.updates = append(f.updates, final)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func textSnap(text string) domain.AnswerSnapshot {
	return domain.AnswerSnapshot{Text: text}
}
