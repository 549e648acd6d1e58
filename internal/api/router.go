package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/bus"
	"github.com/marketwire/quotefeed/internal/gateway"
	"github.com/marketwire/quotefeed/internal/query"
	"github.com/marketwire/quotefeed/internal/store"
)

// NewRouter wires the query endpoint, health check and websocket upgrade
// onto a chi router with request logging.
func NewRouter(qs *query.Service, hub *bus.Hub, logger *zap.Logger, validSymbols map[string]bool) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/quotes/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
		if symbol == "" {
			WriteError(w, http.StatusBadRequest, "symbol_required", "symbol path parameter is required")
			return
		}

		q, err := qs.GetQuote(r.Context(), symbol)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "quote_not_found", fmt.Sprintf("No live quote for symbol %s", symbol))
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal_error", "quote lookup failed")
			return
		}

		WriteJSON(w, http.StatusOK, q)
	})

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}

		session := gateway.NewSession(conn, hub, qs, logger, validSymbols)
		session.Start()
	})

	return r
}

// statusRecorder captures the response code for the logging middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade still works behind the
// logging middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func requestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Debug("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
