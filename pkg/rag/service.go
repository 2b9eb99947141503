package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/chunk"

	"go.uber.org/zap"
)

// FactSource loads a company's stored facts.
type FactSource interface {
	Facts(ctx context.Context, companyID uint) ([]models.FinancialFact, error)
}

// Answer is the result of one question.
type Answer struct {
	Text               string
	Company            string
	Sources            []chunk.Chunk
	ConversationLength int
	NoData             bool
}

type Config struct {
	TopK        int
	MemoryTurns int
}

// Service answers questions about one company's facts.
type Service struct {
	facts     FactSource
	index     *Index
	retriever *Retriever
	generator Generator
	memory    *Memory
	log       *zap.Logger
}

// NewService wires the answering pipeline. index and generator may be nil: a
// nil index falls back to recency-based retrieval, a nil generator makes Ask
// return ErrNotConfigured once facts exist.
func NewService(facts FactSource, index *Index, generator Generator, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		facts:     facts,
		index:     index,
		retriever: NewRetriever(index, cfg.TopK, log),
		generator: generator,
		memory:    NewMemory(cfg.MemoryTurns),
		log:       log.Named("rag"),
	}
}

// Configured reports whether answers can be generated.
func (s *Service) Configured() bool { return s.generator != nil }

// IndexReady reports whether a vector index is attached.
func (s *Service) IndexReady() bool { return s.index != nil }

func (s *Service) Memory() *Memory { return s.memory }

// Ask answers question for company on behalf of p. A company without facts
// gets NoDataResponse and no provider is called.
func (s *Service) Ask(ctx context.Context, p access.Principal, company models.Company, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if err := p.Require(company.ID); err != nil {
		return nil, err
	}
	log := s.log.With(zap.Uint("company_id", company.ID), zap.Uint("user_id", p.UserID))

	facts, err := s.facts.Facts(ctx, company.ID)
	if err != nil {
		ChatRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load facts: %w", err)
	}
	chunks := chunk.Build(facts)
	if len(chunks) == 0 {
		ChatRequests.WithLabelValues("no_data").Inc()
		return &Answer{
			Text:               NoDataResponse(company.Name),
			Company:            company.Name,
			NoData:             true,
			ConversationLength: len(s.memory.History(p.UserID, company.ID)),
		}, nil
	}
	if s.generator == nil {
		return nil, ErrNotConfigured
	}

	selected, err := s.retriever.Retrieve(ctx, company.ID, question, chunks)
	if err != nil {
		ChatRequests.WithLabelValues("unavailable").Inc()
		log.Warn("retrieval failed", zap.Error(err))
		return nil, unavailable(err)
	}

	prompt := BuildPrompt(company, selected, s.memory.History(p.UserID, company.ID), question)
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		ChatRequests.WithLabelValues("unavailable").Inc()
		log.Warn("generation failed", zap.Error(err))
		return nil, unavailable(err)
	}

	n := s.memory.Append(p.UserID, company.ID, question, text)
	ChatRequests.WithLabelValues("answered").Inc()
	log.Info("question answered", zap.Int("sources", len(selected)))
	return &Answer{
		Text:               text,
		Company:            company.Name,
		Sources:            selected,
		ConversationLength: n,
	}, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
}

// Invalidate marks the company's index stale after its facts changed.
func (s *Service) Invalidate(companyID uint) {
	if s.index != nil {
		s.index.Invalidate(companyID)
	}
}

// Drop forgets everything derived from a company.
func (s *Service) Drop(companyID uint) error {
	if s.index == nil {
		return nil
	}
	return s.index.Drop(companyID)
}
