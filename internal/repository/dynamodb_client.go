package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kbs-slackbot/internal/domain"
)

const (
	pkPrefixThread = "THREAD#"
	skPrefixReq    = "REQ#"
	ttlDuration    = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table holding question transcripts.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// threadPK returns the partition key shared by every question in a thread.
func threadPK(channel, threadTS string) string {
	return pkPrefixThread + channel + ":" + threadTS
}

// reqSK orders the questions of a thread by time.
func reqSK(createdAt time.Time, requestID string) string {
	return skPrefixReq + createdAt.UTC().Format(time.RFC3339Nano) + "#" + requestID
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// SaveTranscript writes the record of one relayed question. A request is
// written once.
func (c *Client) SaveTranscript(ctx context.Context, t domain.Transcript) error {
	if t.RequestID == "" || t.Channel == "" || t.ThreadTS == "" {
		return errors.New("repository: SaveTranscript: request id, channel and thread are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.transcriptItem(t),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTranscript: %w", err)
	}
	return nil
}

func (c *Client) transcriptItem(t domain.Transcript) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: threadPK(t.Channel, t.ThreadTS)},
		"SK":         &types.AttributeValueMemberS{Value: reqSK(t.CreatedAt, t.RequestID)},
		"requestId":  &types.AttributeValueMemberS{Value: t.RequestID},
		"channel":    &types.AttributeValueMemberS{Value: t.Channel},
		"threadTs":   &types.AttributeValueMemberS{Value: t.ThreadTS},
		"question":   &types.AttributeValueMemberS{Value: t.Question},
		"answer":     &types.AttributeValueMemberS{Value: t.Answer},
		"outcome":    &types.AttributeValueMemberS{Value: t.Outcome},
		"citations":  numAttr(int64(t.Citations)),
		"updates":    numAttr(int64(t.Updates)),
		"durationMs": numAttr(t.Duration.Milliseconds()),
		"createdAt":  &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":        numAttr(c.ttlValue()),
	}
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
