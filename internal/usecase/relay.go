package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
)

var tracer = otel.Tracer("kbs-slackbot/usecase")

type Messenger interface {
	PostPlaceholder(ctx context.Context, channel, threadTS, text string) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg render.Message) error
}

type ThreadHistory interface {
	History(ctx context.Context, channel, threadTS string) ([]domain.ChatTurn, error)
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type KnowledgeBase interface {
	IsAlive(ctx context.Context) bool
	StreamChat(ctx context.Context, token, requestID string, req domain.ChatRequest) (domain.AnswerStream, error)
}

type TranscriptWriter interface {
	SaveTranscript(ctx context.Context, t domain.Transcript) error
}

type Metrics interface {
	QuestionFinished(outcome string, elapsed time.Duration)
	MessageUpdated(final bool)
}

type rawPayloader interface {
	RawPayload() string
}

type nopMetrics struct{}

func (nopMetrics) QuestionFinished(string, time.Duration) {}
func (nopMetrics) MessageUpdated(bool)                    {}

// Relay answers Slack questions with the knowledge base. Each question gets a
// single placeholder message which is then edited with the streamed answer or
// an apology.
type Relay struct {
	messenger   Messenger
	history     ThreadHistory
	tokens      TokenSource
	kb          KnowledgeBase
	transcripts TranscriptWriter
	metrics     Metrics

	interval time.Duration
	now      func() time.Time
	pick     func(n int) int
}

type RelayOption func(*Relay)

// WithTranscripts records the outcome of every question in w.
func WithTranscripts(w TranscriptWriter) RelayOption {
	return func(r *Relay) {
		r.transcripts = w
	}
}

func WithMetrics(m Metrics) RelayOption {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithUpdateInterval sets the minimum time between edits of the answer.
func WithUpdateInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		r.interval = d
	}
}

func NewRelay(m Messenger, h ThreadHistory, tokens TokenSource, kb KnowledgeBase, opts ...RelayOption) (*Relay, error) {
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: thread history must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("usecase: token source must not be nil")
	}
	if kb == nil {
		return nil, errors.New("usecase: knowledge base must not be nil")
	}
	r := &Relay{
		messenger: m,
		history:   h,
		tokens:    tokens,
		kb:        kb,
		metrics:   nopMetrics{},
		interval:  DefaultUpdateInterval,
		now:       time.Now,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Answer relays q to the knowledge base and edits the answer into the thread.
// It returns nil once the answer is shown and a *Error otherwise.
func (r *Relay) Answer(ctx context.Context, q domain.Question) error {
	started := r.now()
	requestID := newRequestID()

	logger := zerolog.Ctx(ctx).With().
		Str("channel", q.Channel).
		Str("thread_ts", q.ThreadTS).
		Str("ts", q.TS).
		Str("user", q.User).
		Str("request_id", requestID).
		Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := tracer.Start(ctx, "relay.answer", trace.WithAttributes(
		attribute.String("slack.channel", q.Channel),
		attribute.String("kbs.request_id", requestID),
	))
	defer span.End()

	question := render.StripMessage(q.Text)
	final, updates, err := r.relay(ctx, q, requestID, question)
	elapsed := r.now().Sub(started)

	outcome := domain.OutcomeAnswered
	var uerr *Error
	if err != nil {
		if !errors.As(err, &uerr) {
			uerr = newError(ErrorBackend, "unclassified", err)
		}
		outcome = uerr.Code.Outcome()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(uerr.Code))

		ev := logger.Error()
		if uerr.Code == ErrorServiceDown {
			ev = logger.Warn()
		}
		ev = ev.Err(err)
		var raw rawPayloader
		if errors.As(err, &raw) {
			ev = ev.Str("kbs_data", raw.RawPayload())
		}
		ev.Str("code", string(uerr.Code)).Str("reason", uerr.Reason).Dur("elapsed", elapsed).Msg("question failed")
	} else {
		logger.Info().
			Int("updates", updates).
			Int("citations", len(final.Citations)).
			Dur("elapsed", elapsed).
			Msg("answered question")
	}
	span.SetAttributes(attribute.String("relay.outcome", outcome), attribute.Int("relay.updates", updates))

	r.metrics.QuestionFinished(outcome, elapsed)
	r.saveTranscript(ctx, domain.Transcript{
		RequestID: requestID,
		Channel:   q.Channel,
		ThreadTS:  q.Thread(),
		Question:  question,
		Answer:    final.Text,
		Outcome:   outcome,
		Citations: min(len(final.Citations), domain.MaxCitations),
		Updates:   updates,
		Duration:  elapsed,
		CreatedAt: started,
	})

	if uerr != nil {
		return uerr
	}
	return nil
}

func (r *Relay) relay(ctx context.Context, q domain.Question, requestID, question string) (domain.AnswerSnapshot, int, error) {
	logger := zerolog.Ctx(ctx)

	// The placeholder would otherwise show up as the last message of the
	// thread.
	history, err := r.history.History(ctx, q.Channel, q.Thread())
	if err != nil {
		return domain.AnswerSnapshot{}, 0, newError(ErrorPlatform, "history_error", err)
	}

	ref, err := r.messenger.PostPlaceholder(ctx, q.Channel, q.Thread(), r.placeholder())
	if err != nil {
		return domain.AnswerSnapshot{}, 0, newError(ErrorPlatform, "placeholder_error", err)
	}

	if !r.kb.IsAlive(ctx) {
		return r.fail(ctx, ref, requestID, newError(ErrorServiceDown, "liveness_failed", nil))
	}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return r.fail(ctx, ref, requestID, newError(ErrorAuth, "token_error", err))
	}

	stream, err := r.kb.StreamChat(ctx, token, requestID, domain.ChatRequest{History: history, Question: question})
	if err != nil {
		return r.fail(ctx, ref, requestID, newError(dispatchCode(err), "dispatch_error", err))
	}
	defer func() { _ = stream.Close() }()

	logger.Info().Int("history", len(history)).Msg("streaming answer to user")
	final, updates, err := ConsumeAnswer(ctx, stream, NewThrottle(r.interval, r.now), func(ctx context.Context, u Update) error {
		return r.emit(ctx, ref, u)
	})
	if err != nil {
		var uerr *Error
		if errors.As(err, &uerr) {
			return final, updates, uerr
		}
		return r.fail(ctx, ref, requestID, newError(dispatchCode(err), "stream_error", err))
	}
	return final, updates, nil
}

func (r *Relay) emit(ctx context.Context, ref domain.MessageRef, u Update) error {
	msg, err := render.Format(u.Snapshot)
	if err != nil {
		return err
	}
	if err := r.messenger.UpdateMessage(ctx, ref, msg); err != nil {
		if u.Final {
			return newError(ErrorPlatform, "final_update_error", err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("intermediate answer update failed")
		return ErrUpdateDropped
	}
	r.metrics.MessageUpdated(u.Final)
	return nil
}

// fail edits the placeholder with the apology for e. This is the only edit
// made for a failed question.
func (r *Relay) fail(ctx context.Context, ref domain.MessageRef, requestID string, e *Error) (domain.AnswerSnapshot, int, error) {
	if err := r.messenger.UpdateMessage(ctx, ref, render.Plain(UserMessage(e.Code, requestID))); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("could not show failure message")
	}
	return domain.AnswerSnapshot{}, 0, e
}

func (r *Relay) placeholder() string {
	return placeholderPhrases[r.pick(len(placeholderPhrases))]
}

func (r *Relay) saveTranscript(ctx context.Context, t domain.Transcript) {
	if r.transcripts == nil {
		return
	}
	if err := r.transcripts.SaveTranscript(ctx, t); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("could not save transcript")
	}
}

var newRequestID = func() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
