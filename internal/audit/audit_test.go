package audit_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/marketwire/quotefeed/internal/audit"
)

// syncBuffer is a WriteSyncer over a bytes.Buffer safe for the writer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSink_RecordsOneLinePerEvent(t *testing.T) {
	buf := &syncBuffer{}
	s := audit.New(buf, 16)

	s.Record(audit.Event{Kind: "query", Symbol: "AAPL", Outcome: "ok"})
	s.Record(audit.Event{Kind: "query", Symbol: "TXN_99", Outcome: "not_found"})

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 audit lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"symbol":"AAPL"`) || !strings.Contains(lines[0], `"outcome":"ok"`) {
		t.Errorf("First line missing fields: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"outcome":"not_found"`) {
		t.Errorf("Second line missing outcome: %s", lines[1])
	}
	if !strings.Contains(lines[0], `"ts"`) {
		t.Errorf("Audit lines must be timestamped: %s", lines[0])
	}
}

func TestSink_DropsInsteadOfBlocking(t *testing.T) {
	// Unstarted-reader trick is not possible since New starts the writer,
	// so use a zero-capacity channel path: buffer 1 and a flood.
	buf := &syncBuffer{}
	s := audit.New(buf, 1)
	defer s.Close()

	for i := 0; i < 10000; i++ {
		s.Record(audit.Event{Kind: "query", Symbol: "AAPL", Outcome: "ok"})
	}
	// The point is that Record returned at all; drops are merely likely here.
	_ = s.Dropped()
}

func TestSink_RecordAfterCloseIsSafe(t *testing.T) {
	buf := &syncBuffer{}
	s := audit.New(buf, 4)
	s.Close()

	s.Record(audit.Event{Kind: "query", Symbol: "AAPL", Outcome: "ok"})
	if s.Dropped() == 0 {
		t.Error("Record after close should count as dropped")
	}
}

func TestSink_ConcurrentRecordAndClose(t *testing.T) {
	// Run with `go test -race ./...`
	for i := 0; i < 200; i++ {
		s := audit.New(&syncBuffer{}, 2)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					s.Record(audit.Event{Kind: "query", Symbol: "AAPL", Outcome: "ok"})
				}
			}()
		}
		s.Close()
		wg.Wait()
	}
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)
