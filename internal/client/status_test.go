package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/marketwire/quotefeed/internal/audit"
	"github.com/marketwire/quotefeed/internal/client"
)

func newSink(t *testing.T) *audit.Sink {
	t.Helper()
	s := audit.New(zapcore.AddSync(io.Discard), 64)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatusClient_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quotes/AAPL" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"AAPL","bid":100.00,"ask":100.50,"timestamp":1000000000,"seq_id":5}`))
	}))
	defer server.Close()

	c := client.NewStatusClient(server.URL, time.Second, newSink(t))
	res := c.Check(context.Background(), "AAPL")

	if !res.Success {
		t.Fatalf("Expected success, got %+v", res)
	}
	if res.Kind != client.KindOK {
		t.Errorf("Expected KindOK, got %s", res.Kind)
	}
	if res.Quote == nil || res.Quote.Bid != 100.00 || res.Quote.Ask != 100.50 {
		t.Errorf("Quote payload mismatch: %+v", res.Quote)
	}
}

func TestStatusClient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"quote_not_found","message":"No live quote for symbol TXN_99"}`))
	}))
	defer server.Close()

	c := client.NewStatusClient(server.URL, time.Second, newSink(t))
	res := c.Check(context.Background(), "TXN_99")

	if res.Success {
		t.Fatal("Expected failure result for 404")
	}
	if res.Kind != client.KindNotFound {
		t.Errorf("Expected KindNotFound, got %s", res.Kind)
	}
	if res.Err != "not found" {
		t.Errorf("Expected error %q, got %q", "not found", res.Err)
	}
	if res.Quote != nil {
		t.Error("Not-found result must not carry a quote payload")
	}
}

func TestStatusClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := client.NewStatusClient(server.URL, 50*time.Millisecond, newSink(t))
	res := c.Check(context.Background(), "AAPL")

	if res.Success {
		t.Fatal("Expected failure result for timeout")
	}
	if res.Kind != client.KindTimeout {
		t.Errorf("Expected KindTimeout, got %s", res.Kind)
	}
}

func TestStatusClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Connection refused from here on

	c := client.NewStatusClient(server.URL, time.Second, newSink(t))
	res := c.Check(context.Background(), "AAPL")

	if res.Success {
		t.Fatal("Expected failure result for unreachable endpoint")
	}
	if res.Kind != client.KindTransportError {
		t.Errorf("Expected KindTransportError, got %s", res.Kind)
	}
}

func TestStatusClient_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := client.NewStatusClient(server.URL, time.Second, newSink(t))
	res := c.Check(context.Background(), "AAPL")

	if res.Success {
		t.Fatal("Expected failure result for 502")
	}
	if res.Kind != client.KindUnexpectedStatus {
		t.Errorf("Expected KindUnexpectedStatus, got %s", res.Kind)
	}
	if res.Err != "unexpected status: 502" {
		t.Errorf("Status should be surfaced verbatim, got %q", res.Err)
	}
}
