package store

import (
	"context"
	"sync"
	"time"

	"github.com/marketwire/quotefeed/pkg/models"
)

// Compile-time check to ensure MemoryStore implements QuoteStore
var _ QuoteStore = (*MemoryStore)(nil)

type entry struct {
	quote  models.Quote
	expiry time.Time
}

// MemoryStore is an in-process QuoteStore with the same contract as the
// Redis adapter: one live entry per symbol, absence after expiry, and a
// pub/sub feed for subscribed symbols. Used for single-binary runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]entry
	feedSubs map[string]bool
	feed     chan models.Quote
	ttl      time.Duration
	now      func() time.Time
	done     chan struct{}
	closeOne sync.Once
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	m := &MemoryStore{
		entries:  make(map[string]entry),
		feedSubs: make(map[string]bool),
		feed:     make(chan models.Quote, 1024),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go m.janitor()
	return m
}

// janitor sweeps expired entries so the map does not grow with dead symbols.
// Correctness does not depend on it; Get checks expiry on every read.
func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for sym, e := range m.entries {
				if !now.Before(e.expiry) {
					delete(m.entries, sym)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *MemoryStore) Put(ctx context.Context, q models.Quote) error {
	m.mu.Lock()
	m.entries[q.Symbol] = entry{quote: q, expiry: m.now().Add(m.ttl)}
	subscribed := m.feedSubs[q.Symbol]
	m.mu.Unlock()

	if subscribed {
		select {
		case m.feed <- q:
		default:
			// Feed buffer full: drop rather than block the writer.
		}
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, symbol string) (models.Quote, error) {
	m.mu.RLock()
	e, ok := m.entries[symbol]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiry) {
		return models.Quote{}, ErrNotFound
	}
	return e.quote, nil
}

func (m *MemoryStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedSubs[symbol] = true
	return nil
}

func (m *MemoryStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.feedSubs, symbol)
	return nil
}

func (m *MemoryStore) RunPubSub(ctx context.Context, onQuote func(q models.Quote)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case q := <-m.feed:
			onQuote(q)
		}
	}
}

func (m *MemoryStore) Close() error {
	m.closeOne.Do(func() { close(m.done) })
	return nil
}
