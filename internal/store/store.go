package store

import (
	"context"
	"errors"

	"github.com/marketwire/quotefeed/pkg/models"
)

// ErrNotFound is returned by Get when a symbol has no live quote,
// either because it was never written or because its TTL elapsed.
// Absence is an expected outcome, not a fault.
var ErrNotFound = errors.New("quote not found")

// QuoteStore holds the latest quote per symbol with a short TTL and
// publishes every write to a feed that the hub consumes.
type QuoteStore interface {
	// Put overwrites the entry for q.Symbol and resets its expiry to now+ttl,
	// then publishes q on the symbol's feed channel.
	Put(ctx context.Context, q models.Quote) error

	// Get returns the live quote for symbol or ErrNotFound. It never returns
	// a stale quote.
	Get(ctx context.Context, symbol string) (models.Quote, error)

	// SubscribeToFeed starts delivery of published quotes for symbol to the
	// RunPubSub loop.
	SubscribeToFeed(ctx context.Context, symbol string) error

	// UnsubscribeFromFeed stops delivery for symbol.
	UnsubscribeFromFeed(ctx context.Context, symbol string) error

	// RunPubSub is a blocking loop that invokes onQuote for every published
	// quote on a subscribed channel until the store is closed or ctx is done.
	RunPubSub(ctx context.Context, onQuote func(q models.Quote))

	Close() error
}
