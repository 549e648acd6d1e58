package bus

import (
	"sync"
	"sync/atomic"

	"github.com/marketwire/quotefeed/pkg/models"
)

// State tracks a subscription's lifecycle.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is a consumer-owned handle on the hub's fan-out for a fixed
// set of symbols. Events arrive on C() in per-symbol publish order until the
// consumer calls Close. Delivery is best effort: when the buffer is full the
// newest event is dropped and the drop counter incremented.
type Subscription struct {
	hub     *Hub
	symbols []string
	ch      chan models.Quote
	state   atomic.Int32
	dropped atomic.Uint64
	once    sync.Once
}

func newSubscription(h *Hub, symbols []string, buffer int) *Subscription {
	return &Subscription{
		hub:     h,
		symbols: symbols,
		ch:      make(chan models.Quote, buffer),
	}
}

// C returns the delivery channel. It is closed when the subscription is;
// events buffered before close remain readable until drained.
func (s *Subscription) C() <-chan models.Quote { return s.ch }

// Symbols returns the symbol set fixed at subscribe time.
func (s *Subscription) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Dropped reports how many events were discarded because the consumer
// could not keep up.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Close deregisters the subscription from every symbol and closes the
// delivery channel. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		// remove holds the hub's write lock, so no delivery can be in
		// flight once it returns; closing the channel after that is safe.
		s.hub.remove(s)
		close(s.ch)
	})
	return nil
}

// deliver is called by the hub with its read lock held.
func (s *Subscription) deliver(q models.Quote) {
	if s.State() == StateClosed {
		return
	}
	select {
	case s.ch <- q:
	default:
		s.dropped.Add(1)
	}
}
