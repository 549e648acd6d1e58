// Package client implements the normalized downstream-call pattern used by
// consumers of the quote query endpoint: every outcome, expected or not,
// comes back as one Result shape with a Success flag, never as a raised
// transport error the caller has to type-switch on.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/marketwire/quotefeed/internal/audit"
	"github.com/marketwire/quotefeed/pkg/models"
)

// Kind classifies the outcome of a downstream call.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindTimeout
	KindTransportError
	KindUnexpectedStatus
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindTransportError:
		return "transport_error"
	case KindUnexpectedStatus:
		return "unexpected_status"
	}
	return "unknown"
}

// Result is the single shape every call returns. Callers branch on Success
// or Kind, never on transport-specific failure types.
type Result struct {
	Success bool          `json:"success"`
	Symbol  string        `json:"symbol"`
	Quote   *models.Quote `json:"quote,omitempty"`
	Kind    Kind          `json:"-"`
	Err     string        `json:"error,omitempty"`
}

// StatusClient fetches the current quote for a symbol from a quote query
// endpoint and normalizes the response.
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
	audit      *audit.Sink
}

func NewStatusClient(baseURL string, timeout time.Duration, sink *audit.Sink) *StatusClient {
	return &StatusClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		audit: sink,
	}
}

// Check calls GET {base}/v1/quotes/{symbol}. Status 200 maps to a success
// payload, 404 to a not-found result, a deadline to a timeout result, any
// other transport failure to a transport-error result and any other status
// is surfaced verbatim as unexpected. Check itself never returns an error.
func (c *StatusClient) Check(ctx context.Context, symbol string) Result {
	endpoint := fmt.Sprintf("%s/v1/quotes/%s", c.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return c.fail(symbol, KindTransportError, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return c.fail(symbol, KindTimeout, "gateway timeout")
		}
		return c.fail(symbol, KindTransportError, err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var q models.Quote
		if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
			return c.fail(symbol, KindTransportError, "malformed quote payload: "+err.Error())
		}
		c.audit.Record(audit.Event{Kind: "downstream", Symbol: symbol, Outcome: "ok"})
		return Result{Success: true, Symbol: symbol, Quote: &q, Kind: KindOK}
	case http.StatusNotFound:
		return c.fail(symbol, KindNotFound, "not found")
	default:
		return c.fail(symbol, KindUnexpectedStatus, fmt.Sprintf("unexpected status: %d", resp.StatusCode))
	}
}

func (c *StatusClient) fail(symbol string, kind Kind, msg string) Result {
	c.audit.Record(audit.Event{Kind: "downstream", Symbol: symbol, Outcome: kind.String(), Detail: msg})
	return Result{Success: false, Symbol: symbol, Kind: kind, Err: msg}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
