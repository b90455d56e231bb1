package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kbs-slackbot/internal/domain"
	"kbs-slackbot/internal/render"
)

const (
	defaultMaxQuestion = 2000
	maxHistoryTurns    = 50
)

type ChatKnowledgeBase interface {
	IsAlive(ctx context.Context) bool
	Chat(ctx context.Context, token, requestID string, req domain.ChatRequest) (domain.AnswerSnapshot, error)
}

// AskService answers a single question with the non-streaming endpoint of the
// knowledge base.
type AskService struct {
	tokens         TokenSource
	kb             ChatKnowledgeBase
	metrics        Metrics
	maxQuestionLen int
	now            func() time.Time
}

type AskInput struct {
	Question string
	History  []domain.ChatTurn
}

type AskOutput struct {
	Answer    string
	Citations []render.RenderedCitation
	RequestID string
}

func NewAskService(tokens TokenSource, kb ChatKnowledgeBase, metrics Metrics, maxQuestionLen int) (*AskService, error) {
	if tokens == nil {
		return nil, errors.New("usecase: token source must not be nil")
	}
	if kb == nil {
		return nil, errors.New("usecase: knowledge base must not be nil")
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if maxQuestionLen <= 0 {
		maxQuestionLen = defaultMaxQuestion
	}
	return &AskService{
		tokens:         tokens,
		kb:             kb,
		metrics:        metrics,
		maxQuestionLen: maxQuestionLen,
		now:            time.Now,
	}, nil
}

// Ask returns the formatted answer to in. Failures are *Error.
func (s *AskService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	started := s.now()
	requestID := newRequestID()
	logger := zerolog.Ctx(ctx).With().Str("request_id", requestID).Logger()

	out, err := s.ask(logger.WithContext(ctx), requestID, in)
	outcome := domain.OutcomeAnswered
	var uerr *Error
	if errors.As(err, &uerr) {
		outcome = uerr.Code.Outcome()
		logger.Warn().Err(err).Str("code", string(uerr.Code)).Msg("ask failed")
	}
	// Rejected input never reached the knowledge base.
	if uerr == nil || uerr.Code != ErrorInvalidInput {
		s.metrics.QuestionFinished(outcome, s.now().Sub(started))
	}
	out.RequestID = requestID
	return out, err
}

func (s *AskService) ask(ctx context.Context, requestID string, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if len(question) > s.maxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}
	if len(in.History) > maxHistoryTurns {
		return AskOutput{}, newError(ErrorInvalidInput, "history_too_long", nil)
	}
	for _, turn := range in.History {
		if turn.Role != domain.RoleHuman && turn.Role != domain.RoleAssistant {
			return AskOutput{}, newError(ErrorInvalidInput, "invalid_history_role", nil)
		}
	}

	if !s.kb.IsAlive(ctx) {
		return AskOutput{}, newError(ErrorServiceDown, "liveness_failed", nil)
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return AskOutput{}, newError(ErrorAuth, "token_error", err)
	}

	history := in.History
	if history == nil {
		history = []domain.ChatTurn{}
	}
	snap, err := s.kb.Chat(ctx, token, requestID, domain.ChatRequest{History: history, Question: question})
	if err != nil {
		return AskOutput{}, newError(dispatchCode(err), "chat_error", err)
	}
	if strings.TrimSpace(snap.Text) == "" {
		return AskOutput{}, newError(ErrorDecode, "empty_answer", domain.ErrMalformedAnswer)
	}

	cites, err := render.Citations(snap)
	if err != nil {
		return AskOutput{}, newError(ErrorDecode, "citation_join_error", err)
	}
	return AskOutput{
		Answer:    render.Translate(snap.Text),
		Citations: cites,
	}, nil
}
