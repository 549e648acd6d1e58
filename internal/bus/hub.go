package bus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/pkg/models"
)

var (
	ErrNoSymbols = errors.New("subscription needs at least one symbol")
	ErrHubClosed = errors.New("hub is closed")
)

// UpstreamFeed is the part of the quote store the hub drives: it subscribes
// to a symbol's feed channel while at least one session wants it.
type UpstreamFeed interface {
	SubscribeToFeed(ctx context.Context, symbol string) error
	UnsubscribeFromFeed(ctx context.Context, symbol string) error
}

// Hub fans each published quote out to every current subscriber of its
// symbol. Publish never blocks on a consumer; a slow subscription drops.
type Hub struct {
	subscribers map[string]map[*Subscription]struct{}
	refCount    map[string]int

	upstream UpstreamFeed // nil when the publisher feeds the hub directly
	buffer   int
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

func NewHub(upstream UpstreamFeed, buffer int, logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		refCount:    make(map[string]int),
		upstream:    upstream,
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a new session for the given symbols. The symbol set is
// fixed for the life of the subscription; subscribe again to change it.
// Repeated symbols collapse into one registration so refcounts stay balanced.
func (h *Hub) Subscribe(symbols ...string) (*Subscription, error) {
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := newSubscription(h, symbols, h.buffer)
	for _, sym := range symbols {
		if h.subscribers[sym] == nil {
			h.subscribers[sym] = make(map[*Subscription]struct{})
		}
		h.subscribers[sym][sub] = struct{}{}

		// Manage upstream subscription (ref counting)
		h.refCount[sym]++
		if h.refCount[sym] == 1 && h.upstream != nil {
			if err := h.upstream.SubscribeToFeed(context.Background(), sym); err != nil {
				h.logger.Error("Failed to subscribe upstream", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}
	sub.state.Store(int32(StateActive))

	return sub, nil
}

// Publish delivers q to every current subscriber of q.Symbol, in call order.
// It returns without waiting on any consumer.
func (h *Hub) Publish(q models.Quote) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[q.Symbol] {
		sub.deliver(q)
	}
}

// remove deregisters sub from every symbol it was registered for.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sym := range sub.symbols {
		if set, ok := h.subscribers[sym]; ok {
			if _, registered := set[sub]; !registered {
				continue
			}
			delete(set, sub)
			h.decreaseRefCount(sym)
		}
	}
}

// Close shuts the hub down and closes every remaining subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	seen := make(map[*Subscription]struct{})
	for _, set := range h.subscribers {
		for sub := range set {
			seen[sub] = struct{}{}
		}
	}
	h.mu.Unlock()

	// Subscription.Close re-enters the hub lock via remove.
	for sub := range seen {
		_ = sub.Close()
	}
}

// dedupe keeps the first occurrence of each symbol, preserving order.
func dedupe(symbols []string) []string {
	out := symbols[:0:0]
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// decreaseRefCount must be called with the write lock held.
func (h *Hub) decreaseRefCount(symbol string) {
	h.refCount[symbol]--
	if h.refCount[symbol] <= 0 {
		if h.upstream != nil {
			if err := h.upstream.UnsubscribeFromFeed(context.Background(), symbol); err != nil {
				h.logger.Error("Failed to unsubscribe upstream", zap.String("symbol", symbol), zap.Error(err))
			}
		}
		delete(h.refCount, symbol)
		delete(h.subscribers, symbol)
	}
}
