package bot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack/slackevents"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
)

const channelTypeIM = "im"

type SlackLookup interface {
	AppIDForUser(ctx context.Context, userID string) (string, error)
	AppPostedInThread(ctx context.Context, channel, threadTS, appID string) (bool, error)
}

// Router decides which Slack events are questions for the bot.
type Router struct {
	appID  string
	lookup SlackLookup
}

func NewRouter(appID string, lookup SlackLookup) (*Router, error) {
	if appID == "" {
		return nil, errors.New("bot: app id must not be empty")
	}
	if lookup == nil {
		return nil, errors.New("bot: slack lookup must not be nil")
	}
	return &Router{appID: appID, lookup: lookup}, nil
}

// Mention turns an @-mention of the bot into a question.
func (r *Router) Mention(ev *slackevents.AppMentionEvent) domain.Question {
	return domain.Question{
		Channel:  ev.Channel,
		ThreadTS: ev.ThreadTimeStamp,
		TS:       ev.TimeStamp,
		User:     ev.User,
		Text:     ev.Text,
	}
}

// Message reports whether a plain message should be answered: direct
// messages outside threads and replies in threads the bot takes part in.
// Messages that mention the bot are left to Mention so they are answered
// once.
func (r *Router) Message(ctx context.Context, ev *slackevents.MessageEvent) (domain.Question, bool) {
	logger := zerolog.Ctx(ctx).With().
		Str("channel", ev.Channel).
		Str("channel_type", ev.ChannelType).
		Str("thread_ts", ev.ThreadTimeStamp).
		Str("ts", ev.TimeStamp).
		Str("user", ev.User).
		Logger()

	if ev.Text == "" || ev.SubType != "" || ev.BotID != "" {
		return domain.Question{}, false
	}
	if r.mentionsBot(ctx, &logger, ev.Text) {
		return domain.Question{}, false
	}

	q := domain.Question{
		Channel:  ev.Channel,
		ThreadTS: ev.ThreadTimeStamp,
		TS:       ev.TimeStamp,
		User:     ev.User,
		Text:     ev.Text,
	}
	if ev.ChannelType == channelTypeIM && ev.ThreadTimeStamp == "" {
		logger.Info().Msg("direct message from user")
		return q, true
	}
	if ev.ThreadTimeStamp == "" {
		return domain.Question{}, false
	}

	posted, err := r.lookup.AppPostedInThread(ctx, ev.Channel, ev.ThreadTimeStamp, r.appID)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read thread")
		return domain.Question{}, false
	}
	if !posted {
		return domain.Question{}, false
	}
	logger.Info().Msg("follow-up question in thread")
	return q, true
}

func (r *Router) mentionsBot(ctx context.Context, logger *zerolog.Logger, text string) bool {
	for _, userID := range render.MentionedUsers(text) {
		appID, err := r.lookup.AppIDForUser(ctx, userID)
		if err != nil {
			logger.Warn().Err(err).Str("mentioned", userID).Msg("could not look up mentioned user")
			continue
		}
		if appID == r.appID {
			return true
		}
	}
	return false
}
