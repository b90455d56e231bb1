// Package slackapi adapts the Slack Web API to the operations the bot needs:
// posting and editing answers, reading thread history and resolving apps.
package slackapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
)

const repliesPageSize = 200

type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

type Client struct {
	api slackAPI
}

func New(api slackAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("slackapi: api must not be nil")
	}
	return &Client{api: api}, nil
}

// PostPlaceholder posts text as a reply in the thread and returns a reference
// for later edits.
func (c *Client) PostPlaceholder(ctx context.Context, channel, threadTS, text string) (domain.MessageRef, error) {
	ch, ts, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("slackapi: post message: %w", err)
	}
	return domain.MessageRef{Channel: ch, TS: ts}, nil
}

func (c *Client) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg render.Message) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, ref.Channel, ref.TS,
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionBlocks(msg.Blocks...),
	)
	if err != nil {
		return fmt.Errorf("slackapi: update message %s: %w", ref.TS, err)
	}
	return nil
}

// History returns the thread as chat turns, oldest first, without its last
// message (the question being asked). Messages posted by an app are
// assistant turns.
func (c *Client) History(ctx context.Context, channel, threadTS string) ([]domain.ChatTurn, error) {
	msgs, err := c.replies(ctx, channel, threadTS)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	turns := make([]domain.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, chatTurn(m))
	}
	return turns, nil
}

// AppIDForUser returns the app id behind a (bot) user, or "" for people.
func (c *Client) AppIDForUser(ctx context.Context, userID string) (string, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slackapi: user info %s: %w", userID, err)
	}
	return u.Profile.ApiAppID, nil
}

// AppPostedInThread reports whether appID has posted in the thread.
func (c *Client) AppPostedInThread(ctx context.Context, channel, threadTS, appID string) (bool, error) {
	msgs, err := c.replies(ctx, channel, threadTS)
	if err != nil {
		return false, err
	}
	for _, m := range msgs {
		if messageAppID(m) == appID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) replies(ctx context.Context, channel, threadTS string) ([]slack.Message, error) {
	var (
		all    []slack.Message
		cursor string
	)
	for {
		msgs, hasMore, next, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channel,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     repliesPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("slackapi: conversation replies %s/%s: %w", channel, threadTS, err)
		}
		all = append(all, msgs...)
		if !hasMore || next == "" {
			return all, nil
		}
		cursor = next
	}
}

func chatTurn(m slack.Message) domain.ChatTurn {
	if messageAppID(m) == "" {
		return domain.ChatTurn{Role: domain.RoleHuman, Content: render.StripMessage(m.Text)}
	}
	content := m.Text
	if len(m.Blocks.BlockSet) > 0 {
		if section, ok := m.Blocks.BlockSet[0].(*slack.SectionBlock); ok && section.Text != nil {
			content = section.Text.Text
		}
	}
	return domain.ChatTurn{Role: domain.RoleAssistant, Content: content}
}

func messageAppID(m slack.Message) string {
	if m.BotProfile != nil {
		return m.BotProfile.AppID
	}
	return ""
}
