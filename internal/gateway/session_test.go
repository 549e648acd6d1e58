package gateway

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marketwire/quotefeed/internal/bus"
	"github.com/marketwire/quotefeed/pkg/models"
)

func newPipeSession(t *testing.T, buffer int, logger *zap.Logger) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := &Session{
		conn:         server,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		logger:       logger,
		validSymbols: map[string]bool{"AAPL": true},
		subs:         make(map[string]*bus.Subscription),
		writeWait:    time.Second,
		pongWait:     time.Minute,
		pingPeriod:   time.Hour,
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return s, client
}

func readTextFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		header, err := ws.ReadHeader(conn)
		if err != nil {
			t.Fatalf("Read frame header: %v", err)
		}
		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			t.Fatalf("Read frame payload: %v", err)
		}
		if header.OpCode == ws.OpText {
			return payload
		}
	}
}

func TestSession_ControlReplySurvivesFullBuffer(t *testing.T) {
	s, client := newPipeSession(t, 1, zap.NewNop())

	s.sendBytes([]byte(`{"type":"quote","data":{"symbol":"AAPL"}}`)) // fills the buffer
	s.sendBytes([]byte(`{"type":"quote","data":{"symbol":"TSLA"}}`)) // data path drops

	go s.sendAck("42", "success", "Subscribed to [AAPL]")
	go s.writePump()

	var first WSResponse
	if err := json.Unmarshal(readTextFrame(t, client), &first); err != nil {
		t.Fatalf("Bad first frame: %v", err)
	}
	if first.Type != "quote" {
		t.Fatalf("Expected buffered quote first, got %+v", first)
	}

	var ack WSResponse
	if err := json.Unmarshal(readTextFrame(t, client), &ack); err != nil {
		t.Fatalf("Bad ack frame: %v", err)
	}
	if ack.Type != "ack" || ack.ID != "42" {
		t.Errorf("Expected ack for request 42, got %+v", ack)
	}
}

func TestSession_ControlSendReturnsAfterWriterExit(t *testing.T) {
	s, client := newPipeSession(t, 1, zap.NewNop())
	s.sendBytes([]byte(`{"type":"quote"}`)) // fills the buffer

	go s.writePump()
	client.Close() // next write fails, writePump exits and closes done

	done := make(chan struct{})
	go func() {
		s.sendError("7", "late reply")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sendError blocked after writer exited")
	}
}

func TestSession_PumpLogsDeliveryLatency(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, _ := newPipeSession(t, 8, zap.New(core))

	h := bus.NewHub(nil, 8, zap.NewNop())
	defer h.Close()

	sub, err := h.Subscribe("AAPL")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	s.pumps.Add(1)
	go s.pump(sub)

	h.Publish(models.Quote{
		Symbol:    "AAPL",
		Bid:       100,
		Ask:       101,
		Timestamp: time.Now().Add(-time.Second).UnixMicro(),
		SeqID:     1,
	})
	sub.Close()
	s.pumps.Wait()

	entries := logs.FilterMessage("Quote delivered").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one delivery log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	lat, ok := fields["latency"].(time.Duration)
	if !ok {
		t.Fatalf("Expected latency field, got %v", fields)
	}
	if lat < time.Second {
		t.Errorf("Expected latency >= 1s for a second-old quote, got %v", lat)
	}
}
