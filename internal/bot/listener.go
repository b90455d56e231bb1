// Package bot receives Slack events over Socket Mode and hands questions to
// the answer relay.
package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"kbs-slackbot/internal/domain"
)

type Answerer interface {
	Answer(ctx context.Context, q domain.Question) error
}

type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// Listener acknowledges every Socket Mode envelope and answers each question
// in its own goroutine.
type Listener struct {
	client   *socketmode.Client
	acker    acker
	router   *Router
	answerer Answerer

	inflight sync.WaitGroup
}

func NewListener(client *socketmode.Client, router *Router, answerer Answerer) (*Listener, error) {
	if client == nil {
		return nil, errors.New("bot: socket mode client must not be nil")
	}
	if router == nil {
		return nil, errors.New("bot: router must not be nil")
	}
	if answerer == nil {
		return nil, errors.New("bot: answerer must not be nil")
	}
	return &Listener{client: client, acker: client, router: router, answerer: answerer}, nil
}

// Run connects to Slack and blocks until ctx is done. Answers in flight keep
// running; use Wait to let them finish.
func (l *Listener) Run(ctx context.Context) error {
	return l.run(ctx, l.client.Events, l.client.RunContext)
}

// run returns only after the event loop has stopped, so no answer is started
// once it is done.
func (l *Listener) run(ctx context.Context, events <-chan socketmode.Event, connect func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.consume(ctx, events)
	}()

	err := connect(ctx)
	cancel()
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Wait blocks until every answer started by the listener is done.
func (l *Listener) Wait() {
	l.inflight.Wait()
}

func (l *Listener) consume(ctx context.Context, events <-chan socketmode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			l.handle(ctx, evt)
		}
	}
}

func (l *Listener) handle(ctx context.Context, evt socketmode.Event) {
	logger := zerolog.Ctx(ctx)
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.Info().Msg("connecting to slack")
	case socketmode.EventTypeConnected:
		logger.Info().Msg("connected to slack")
	case socketmode.EventTypeConnectionError:
		logger.Warn().Msg("slack connection failed, retrying")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			l.acker.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		l.dispatch(ctx, apiEvent.InnerEvent.Data)
	default:
		if evt.Request != nil {
			l.acker.Ack(*evt.Request)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, inner interface{}) {
	var q domain.Question
	switch ev := inner.(type) {
	case *slackevents.AppMentionEvent:
		zerolog.Ctx(ctx).Info().
			Str("channel", ev.Channel).
			Str("thread_ts", ev.ThreadTimeStamp).
			Str("ts", ev.TimeStamp).
			Str("user", ev.User).
			Msg("app mention from user")
		q = l.router.Mention(ev)
	case *slackevents.MessageEvent:
		var ok bool
		if q, ok = l.router.Message(ctx, ev); !ok {
			return
		}
	default:
		return
	}

	// Answers outlive the event loop so shutdown can drain them.
	answerCtx := context.WithoutCancel(ctx)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		// Failures are logged and shown to the user by the relay.
		_ = l.answerer.Answer(answerCtx, q)
	}()
}
