package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
	"kbs-slackbot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type Handler struct {
	asker Asker
}

type askRequest struct {
	Question string            `json:"question"`
	History  []domain.ChatTurn `json:"history"`
}

type askResponse struct {
	Answer    string                    `json:"answer"`
	Citations []render.RenderedCitation `json:"citations"`
	RequestID string                    `json:"requestId"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func NewHandler(asker Asker) (*Handler, error) {
	if asker == nil {
		return nil, errors.New("handler: asker must not be nil")
	}
	return &Handler{asker: asker}, nil
}

// Handle serves POST /ask behind API Gateway.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := zerolog.Ctx(ctx).With().Str("correlation_id", correlationID).Logger()
	ctx = logger.WithContext(ctx)

	var req askRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.Debug().Err(err).Msg("invalid request body")
		return respond(http.StatusBadRequest, correlationID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "invalid_json",
		}), nil
	}

	out, err := h.asker.Ask(ctx, usecase.AskInput{Question: req.Question, History: req.History})
	if err != nil {
		var uerr *usecase.Error
		if !errors.As(err, &uerr) {
			logger.Error().Err(err).Msg("unexpected ask error")
			return respond(http.StatusInternalServerError, correlationID, errorResponse{
				Error:     "INTERNAL",
				RequestID: out.RequestID,
			}), nil
		}
		return respond(statusFor(uerr.Code), correlationID, errorResponse{
			Error:     string(uerr.Code),
			Reason:    uerr.Reason,
			Message:   usecase.UserMessage(uerr.Code, out.RequestID),
			RequestID: out.RequestID,
		}), nil
	}

	citations := out.Citations
	if citations == nil {
		citations = []render.RenderedCitation{}
	}
	return respond(http.StatusOK, correlationID, askResponse{
		Answer:    out.Answer,
		Citations: citations,
		RequestID: out.RequestID,
	}), nil
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorServiceDown:
		return http.StatusServiceUnavailable
	case usecase.ErrorTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
