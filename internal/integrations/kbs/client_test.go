package kbs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kbs-slackbot/internal/domain"
)

const streamBody = "data: {\"answer\":{\"text\":\"Hei\",\"citations\":[]},\"context\":[]}\n" +
	"\n" +
	": keep-alive\n" +
	"data: {\"answer\":{\"text\":\"Hei der\",\"citations\":[{\"text\":\"sitat\",\"article\":\"KA-1\",\"title\":\"Tittel\",\"section\":\"Del\"}]}," +
	"\"context\":[{\"content\":\"...\",\"metadata\":{\"KnowledgeArticleId\":\"KA-1\",\"KnowledgeArticle_QuartoUrl\":\"https://kb.example/a\",\"Title\":\"Artikkel\"}}]}\r\n"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_DefaultsAndValidation(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)

	c, err = NewClient("https://kbs.example/ ")
	require.NoError(t, err)
	require.Equal(t, "https://kbs.example", c.baseURL)

	_, err = NewClient("ftp://kbs")
	require.Error(t, err)
}

func TestIsAlive(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, false},
		{"unavailable", http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, alivePath, r.URL.Path)
				require.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tc.status)
			})
			require.Equal(t, tc.want, c.IsAlive(context.Background()))
		})
	}
}

func TestIsAlive_Unreachable(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithLivenessTimeout(100*time.Millisecond))
	require.NoError(t, err)
	require.False(t, c.IsAlive(context.Background()))
}

func TestIsAlive_TimeoutCountsAsDown(t *testing.T) {
	done := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}, WithLivenessTimeout(50*time.Millisecond))
	defer close(done)
	require.False(t, c.IsAlive(context.Background()))
}

func TestStreamChat_SendsRequestAndParsesEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, streamChatPath, r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "req-1", r.Header.Get(requestIDHeader))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hva er X?", body["question"])
		history := body["history"].([]any)
		require.Len(t, history, 1)
		require.Equal(t, map[string]any{"role": "ai", "content": "forrige svar"}, history[0])

		_, _ = io.WriteString(w, streamBody)
	})

	stream, err := c.StreamChat(context.Background(), "tok", "req-1", domain.ChatRequest{
		Question: "Hva er X?",
		History:  []domain.ChatTurn{{Role: domain.RoleAssistant, Content: "forrige svar"}},
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var got []domain.AnswerSnapshot
	for stream.Next() {
		got = append(got, stream.Snapshot())
	}
	require.NoError(t, stream.Err())
	require.Len(t, got, 2)
	require.Equal(t, "Hei", got[0].Text)
	require.Equal(t, "Hei der", got[1].Text)
	require.Equal(t, []domain.Citation{{QuotedText: "sitat", ArticleID: "KA-1", Title: "Tittel", Section: "Del"}}, got[1].Citations)
	require.Equal(t, domain.ContextDocument{ArticleID: "KA-1", Title: "Artikkel", URL: "https://kb.example/a"}, got[1].Context["KA-1"])
}

func TestStreamChat_EmptyHistoryIsArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"history":[]`)
		_, _ = io.WriteString(w, streamBody)
	})
	stream, err := c.StreamChat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	require.NoError(t, err)
	require.NoError(t, stream.Close())
}

func TestStreamChat_NonSuccessStatusIsBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	})

	_, err := c.StreamChat(context.Background(), "tok", "req-9", domain.ChatRequest{Question: "q"})
	var be *BackendError
	require.ErrorAs(t, err, &be)
	require.Equal(t, http.StatusInternalServerError, be.Status)
	require.Equal(t, http.StatusInternalServerError, be.HTTPStatusCode())
	require.Equal(t, "Internal Server Error", be.Reason)
	require.Equal(t, "req-9", be.RequestID)
	require.Equal(t, "boom", be.Body)
}

func TestStreamChat_InvalidEventIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"answer\":{\"text\":\"ok\",\"citations\":[]},\"context\":[]}\ndata: {not json}\n")
	})

	stream, err := c.StreamChat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	require.True(t, stream.Next())
	require.Equal(t, "ok", stream.Snapshot().Text)
	require.False(t, stream.Next())

	var de *StreamDecodeError
	require.ErrorAs(t, stream.Err(), &de)
	require.Equal(t, "{not json}", de.Line)
	require.False(t, stream.Next())
}

func TestStreamChat_MissingContextURLIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `data: {"answer":{"text":"x","citations":[]},"context":[{"metadata":{"KnowledgeArticleId":"KA-1"}}]}`+"\n")
	})

	stream, err := c.StreamChat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	require.False(t, stream.Next())
	var fe *domain.FormatError
	require.ErrorAs(t, stream.Err(), &fe)
	require.True(t, strings.Contains(fe.Field, "KnowledgeArticle_QuartoUrl"))
}

func TestStreamChat_TimeoutWhileReading(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"answer\":{\"text\":\"a\",\"citations\":[]},\"context\":[]}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithAnswerTimeout(100*time.Millisecond))
	defer close(release)

	stream, err := c.StreamChat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	require.True(t, stream.Next())
	require.False(t, stream.Next())
	var te interface{ Timeout() bool }
	require.ErrorAs(t, stream.Err(), &te)
	require.True(t, te.Timeout())
}

func TestChat_ReturnsSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, chatPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"answer":{"text":"Svar","citations":[]},"context":[]}`)
	})

	snap, err := c.Chat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	require.NoError(t, err)
	require.Equal(t, "Svar", snap.Text)
	require.Empty(t, snap.Citations)
}

func TestChat_MissingAnswerIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"context":[]}`)
	})

	_, err := c.Chat(context.Background(), "tok", "req-1", domain.ChatRequest{Question: "q"})
	var de *StreamDecodeError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, err, domain.ErrMalformedAnswer)
}
