package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers questions: retrieve, generate, then record the turn.
type QueryService struct {
	retriever      *Retriever
	synthesizer    *Synthesizer
	conversations  *ConversationService
	defaultTopK    int
	scoreThreshold float64
}

// NewQueryService creates a query service. defaults supplies TopK and
// ScoreThreshold when a request leaves them unset.
func NewQueryService(
	retriever *Retriever,
	synthesizer *Synthesizer,
	conversations *ConversationService,
	defaults domain.RetrievalSettings,
) *QueryService {
	topK := defaults.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &QueryService{
		retriever:      retriever,
		synthesizer:    synthesizer,
		conversations:  conversations,
		defaultTopK:    topK,
		scoreThreshold: defaults.ScoreThreshold,
	}
}

// Ask answers req.Query from the documents readable in req.Scope.
//
// Cancellation is honoured until generation starts. From then on the
// request runs to completion so that an answer is never generated
// without being recorded. A failed generation records nothing.
func (s *QueryService) Ask(ctx context.Context, req driving.AskRequest) (*driving.AskResponse, error) {
	logger.Section("Ask")

	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	history, err := s.conversations.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	sources, err := s.retriever.Retrieve(ctx, query, s.retrieveOptions(req))
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	genCtx := context.WithoutCancel(ctx)

	answer, err := s.synthesizer.Synthesize(genCtx, query, history, sources)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := domain.Message{Role: domain.RoleUser, Content: query, CreatedAt: now}
	assistant := domain.Message{Role: domain.RoleAssistant, Content: answer.Text, Sources: answer.Sources, CreatedAt: now}
	if err := s.conversations.AppendTurn(genCtx, conversationID, user, assistant); err != nil {
		return nil, fmt.Errorf("record conversation: %w", err)
	}

	return &driving.AskResponse{
		Answer:         answer.Text,
		Sources:        answer.Sources,
		Citations:      answer.Citations,
		ConversationID: conversationID,
		HasContext:     answer.HasContext,
	}, nil
}

// Search retrieves sources without generating an answer.
func (s *QueryService) Search(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Source, error) {
	if opts.TopK <= 0 {
		opts.TopK = s.defaultTopK
	}
	return s.retriever.Retrieve(ctx, query, opts)
}

func (s *QueryService) retrieveOptions(req driving.AskRequest) domain.RetrieveOptions {
	opts := domain.RetrieveOptions{
		Scope:          req.Scope,
		TopK:           req.TopK,
		ScoreThreshold: s.scoreThreshold,
		UseRerank:      req.UseRerank,
	}
	if opts.TopK <= 0 {
		opts.TopK = s.defaultTopK
	}
	if req.ScoreThreshold != nil {
		opts.ScoreThreshold = *req.ScoreThreshold
	}
	return opts
}
