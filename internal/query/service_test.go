package query_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marketwire/quotefeed/internal/audit"
	"github.com/marketwire/quotefeed/internal/query"
	"github.com/marketwire/quotefeed/internal/store"
	"github.com/marketwire/quotefeed/pkg/models"
)

func newService(t *testing.T) (*query.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(time.Minute)
	sink := audit.New(zapcore.AddSync(io.Discard), 64)
	t.Cleanup(func() {
		sink.Close()
		st.Close()
	})
	return query.NewService(st, sink, zap.NewNop()), st
}

func TestService_GetQuote(t *testing.T) {
	svc, st := newService(t)

	want := models.Quote{Symbol: "AAPL", Bid: 150.25, Ask: 150.75, SeqID: 1}
	st.Put(context.Background(), want)

	got, err := svc.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if got != want {
		t.Errorf("GetQuote returned %+v, want %+v", got, want)
	}
}

func TestService_GetQuoteNotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.GetQuote(context.Background(), "TXN_99")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
