package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
	"kbs-slackbot/internal/usecase"
)

type stubUseCase struct {
	out usecase.AskOutput
	err error
	in  usecase.AskInput
}

func (s *stubUseCase) Ask(_ context.Context, in usecase.AskInput) (usecase.AskOutput, error) {
	s.in = in
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/ask",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.AskOutput{
		Answer:    "*svar*",
		Citations: []render.RenderedCitation{{Title: "Artikkel", URL: "https://kb/a#:~:text=x", Quote: "x"}},
		RequestID: "req-1",
	}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(
		`{"question":"Hva er X?","history":[{"role":"human","content":"hei"},{"role":"ai","content":"hallo"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.AskInput{
		Question: "Hva er X?",
		History: []domain.ChatTurn{
			{Role: domain.RoleHuman, Content: "hei"},
			{Role: domain.RoleAssistant, Content: "hallo"},
		},
	}, uc.in)

	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, "*svar*", out.Answer)
	require.Equal(t, "req-1", out.RequestID)
	require.Len(t, out.Citations, 1)
	require.Equal(t, "Artikkel", out.Citations[0].Title)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_NoCitationsIsEmptyArray(t *testing.T) {
	h, err := NewHandler(&stubUseCase{out: usecase.AskOutput{Answer: "ok", RequestID: "req-1"}})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"question":"q"}`))
	require.NoError(t, err)
	require.Contains(t, resp.Body, `"citations":[]`)
}

func TestHandle_InvalidBody(t *testing.T) {
	uc := &stubUseCase{}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_json", out.Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_question"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "service down", err: &usecase.Error{Code: usecase.ErrorServiceDown, Reason: "liveness_failed"}, status: http.StatusServiceUnavailable, code: string(usecase.ErrorServiceDown)},
		{name: "timeout", err: &usecase.Error{Code: usecase.ErrorTimeout, Reason: "chat_error"}, status: http.StatusGatewayTimeout, code: string(usecase.ErrorTimeout)},
		{name: "auth", err: &usecase.Error{Code: usecase.ErrorAuth, Reason: "token_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorAuth)},
		{name: "backend", err: &usecase.Error{Code: usecase.ErrorBackend, Reason: "chat_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorBackend)},
		{name: "decode", err: &usecase.Error{Code: usecase.ErrorDecode, Reason: "citation_join_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorDecode)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err, out: usecase.AskOutput{RequestID: "req-7"}}
			h, err := NewHandler(uc)
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(`{"question":"Hva er X?"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, "req-7", out.RequestID)
		})
	}
}

func TestHandle_ErrorCarriesUserMessage(t *testing.T) {
	uc := &stubUseCase{
		err: &usecase.Error{Code: usecase.ErrorTimeout, Reason: "chat_error"},
		out: usecase.AskOutput{RequestID: "abc"},
	}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"question":"q"}`))
	require.NoError(t, err)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "The knowledge base is not responding (ID: abc) :shrug:", out.Message)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{out: usecase.AskOutput{Answer: "ok", RequestID: "req-1"}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent(`{"question":"Hva er X?"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
