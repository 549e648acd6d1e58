package query

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/audit"
	"github.com/marketwire/quotefeed/internal/store"
	"github.com/marketwire/quotefeed/pkg/models"
)

// Service is the stateless read path: it returns the latest stored quote
// for a symbol or store.ErrNotFound. Every lookup is audited.
type Service struct {
	store  store.QuoteStore
	audit  *audit.Sink
	logger *zap.Logger
}

func NewService(st store.QuoteStore, sink *audit.Sink, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		audit:  sink,
		logger: logger,
	}
}

func (s *Service) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := s.store.Get(ctx, symbol)

	switch {
	case err == nil:
		s.audit.Record(audit.Event{Kind: "query", Symbol: symbol, Outcome: "ok"})
	case errors.Is(err, store.ErrNotFound):
		s.audit.Record(audit.Event{Kind: "query", Symbol: symbol, Outcome: "not_found"})
	default:
		s.audit.Record(audit.Event{Kind: "query", Symbol: symbol, Outcome: "error", Detail: err.Error()})
		s.logger.Error("Store read error", zap.String("symbol", symbol), zap.Error(err))
	}

	return q, err
}
