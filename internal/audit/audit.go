// Package audit appends one structured, timestamped line per recorded event
// to an append-only log. Recording is best effort and never blocks the
// request path: events travel through a bounded channel and are dropped,
// counted, when the writer falls behind.
package audit

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is a single audit record.
type Event struct {
	Kind    string // "query", "subscribe", "downstream"
	Symbol  string
	Outcome string // "ok", "not_found", "timeout", ...
	Detail  string
}

type Sink struct {
	logger  *zap.Logger
	ch      chan Event
	mu      sync.RWMutex // guards closed and the channel close
	closed  bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

// Open creates a sink appending to the file at path.
func Open(path string, buffer int) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return New(zapcore.AddSync(f), buffer), nil
}

// New creates a sink writing JSON lines to ws.
func New(ws zapcore.WriteSyncer, buffer int) *Sink {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, zap.InfoLevel)

	s := &Sink{
		logger: zap.New(core),
		ch:     make(chan Event, buffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues the event without blocking. When the buffer is full the
// event is counted as dropped instead.
func (s *Sink) Record(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded under pressure.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting events, drains what is buffered and syncs the log.
func (s *Sink) Close() error {
	s.once.Do(func() {
		// The write lock waits out every in-flight Record, so the channel
		// is closed only once no send can still be selected.
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	s.wg.Wait()
	return s.logger.Sync()
}

func (s *Sink) run() {
	defer s.wg.Done()
	for e := range s.ch {
		s.logger.Info(e.Kind,
			zap.String("symbol", e.Symbol),
			zap.String("outcome", e.Outcome),
			zap.String("detail", e.Detail))
	}
}
