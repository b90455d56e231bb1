package kbs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"kbs-slackbot/internal/domain"
)

const (
	defaultBaseURL = "http://nks-kbs"

	alivePath      = "/is_alive"
	chatPath       = "/api/v1/chat"
	streamChatPath = "/api/v1/stream/chat"

	requestIDHeader = "X-Request-ID"
)

var tracer = otel.Tracer("kbs-slackbot/kbs")

// Client talks to the knowledge base service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	aliveClient *http.Client
}

type Option func(*Client)

// WithHTTPClient sets the client used for chat calls. Its Timeout bounds the
// whole call including reading a streamed body.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAnswerTimeout bounds how long a chat call, streamed body included, may
// take.
func WithAnswerTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithLivenessTimeout bounds the /is_alive probe.
func WithLivenessTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.aliveClient = &http.Client{Timeout: d}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("kbs: base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		aliveClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// IsAlive probes the liveness endpoint. Any status but 200, and any transport
// error or timeout, counts as down.
func (c *Client) IsAlive(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "kbs.is_alive", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(alivePath), nil)
	if err != nil {
		span.RecordError(err)
		return false
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.aliveClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "liveness probe failed")
		return false
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	return res.StatusCode == http.StatusOK
}

// StreamChat starts a streamed answer. A non-2xx status is returned as
// *BackendError before any event is read. The caller must Close the stream.
func (c *Client) StreamChat(ctx context.Context, token, requestID string, in domain.ChatRequest) (domain.AnswerStream, error) {
	ctx, span := tracer.Start(ctx, "kbs.stream_chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kbs.request_id", requestID)),
	)

	res, err := c.post(ctx, streamChatPath, token, requestID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream chat request failed")
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	return newStream(res.Body, span), nil
}

// Chat asks the non-streaming endpoint and returns the complete answer.
func (c *Client) Chat(ctx context.Context, token, requestID string, in domain.ChatRequest) (domain.AnswerSnapshot, error) {
	ctx, span := tracer.Start(ctx, "kbs.chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kbs.request_id", requestID)),
	)
	defer span.End()

	res, err := c.post(ctx, chatPath, token, requestID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat request failed")
		return domain.AnswerSnapshot{}, err
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		span.RecordError(err)
		return domain.AnswerSnapshot{}, fmt.Errorf("kbs: read response body: %w", err)
	}

	snap, err := decodeEvent(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return domain.AnswerSnapshot{}, err
	}
	return snap, nil
}

func (c *Client) post(ctx context.Context, path, token, requestID string, in domain.ChatRequest) (*http.Response, error) {
	if in.History == nil {
		in.History = []domain.ChatTurn{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("kbs: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kbs: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kbs: request failed: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &BackendError{
			Status:    res.StatusCode,
			Reason:    reasonPhrase(res),
			RequestID: requestID,
			Body:      string(buf),
		}
	}
	return res, nil
}

func reasonPhrase(res *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	}
	return reason
}

func decodeEvent(raw []byte) (domain.AnswerSnapshot, error) {
	var ev chatEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.AnswerSnapshot{}, &StreamDecodeError{Line: string(raw), Err: err}
	}
	snap, err := ev.snapshot()
	if err != nil {
		return domain.AnswerSnapshot{}, &StreamDecodeError{Line: string(raw), Err: err}
	}
	return snap, nil
}
