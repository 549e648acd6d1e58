package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/bus"
	"github.com/marketwire/quotefeed/internal/query"
)

const (
	maxMessageSize = 512 * 1024
)

// Session bridges one websocket connection onto hub subscriptions. Each
// subscribed symbol gets its own bus subscription and a pump goroutine
// forwarding quote events into the connection's send buffer. A full send
// buffer drops the event rather than stall the hub.
type Session struct {
	conn         net.Conn
	hub          *bus.Hub
	query        *query.Service
	send         chan []byte
	done         chan struct{} // closed when writePump exits
	logger       *zap.Logger
	validSymbols map[string]bool

	mu   sync.Mutex
	subs map[string]*bus.Subscription

	pumps     sync.WaitGroup
	closeOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewSession(conn net.Conn, h *bus.Hub, qs *query.Service, logger *zap.Logger, validSymbols map[string]bool) *Session {
	return &Session{
		conn:         conn,
		hub:          h,
		query:        qs,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		logger:       logger,
		validSymbols: validSymbols,
		subs:         make(map[string]*bus.Subscription),
		writeWait:    5 * time.Second,
		pongWait:     60 * time.Second,
		pingPeriod:   50 * time.Second,
	}
}

func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

func (s *Session) ID() string { return s.conn.RemoteAddr().String() }

// sendJSON is the data path: quote events drop when the buffer is full.
func (s *Session) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		s.sendBytes(b)
	}
}

func (s *Session) sendBytes(b []byte) {
	select {
	case s.send <- b:
	default:
		// Drop message if buffer full (backpressure)
	}
}

// sendControl is the control path: acks and error replies wait for buffer
// space instead of dropping, so a client command always gets its reply while
// the connection is alive.
func (s *Session) sendControl(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.send <- b:
	case <-s.done:
	}
}

func (s *Session) handleCommand(req WSRequest) {
	switch req.Action {
	case ActionSubscribe:
		s.handleSubscribe(req)
	case ActionUnsubscribe:
		s.handleUnsubscribe(req)
	case ActionUnsubscribeAll:
		s.handleUnsubscribeAll(req)
	default:
		s.sendError(req.ID, "Unknown action: "+req.Action)
	}
}

func (s *Session) handleSubscribe(req WSRequest) {
	s.mu.Lock()

	var accepted []string
	for _, sym := range req.Payload.Symbols {
		if !s.validSymbols[sym] {
			continue
		}
		// Idempotency: ignore if already subscribed
		if _, ok := s.subs[sym]; ok {
			continue
		}

		sub, err := s.hub.Subscribe(sym)
		if err != nil {
			s.logger.Error("Hub subscribe failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		s.subs[sym] = sub
		accepted = append(accepted, sym)

		s.pumps.Add(1)
		go s.pump(sub)
	}
	s.mu.Unlock()

	if len(accepted) == 0 {
		s.sendError(req.ID, "No valid/new symbols provided")
		return
	}

	s.sendAck(req.ID, "success", fmt.Sprintf("Subscribed to %v", accepted))

	// Send snapshots so a new subscriber sees the current quote before the
	// next tick arrives.
	go func(targets []string) {
		for _, sym := range targets {
			q, err := s.query.GetQuote(context.Background(), sym)
			if err != nil {
				continue
			}
			s.sendJSON(WSResponse{Type: "quote", Data: q})
		}
	}(accepted)
}

func (s *Session) handleUnsubscribe(req WSRequest) {
	s.mu.Lock()
	var removed []string
	for _, sym := range req.Payload.Symbols {
		if sub, ok := s.subs[sym]; ok {
			_ = sub.Close()
			delete(s.subs, sym)
			removed = append(removed, sym)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.sendAck(req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		s.sendError(req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
	}
}

func (s *Session) handleUnsubscribeAll(req WSRequest) {
	s.mu.Lock()
	for sym, sub := range s.subs {
		_ = sub.Close()
		delete(s.subs, sym)
	}
	s.mu.Unlock()

	s.sendAck(req.ID, "success", "Unsubscribed from all symbols")
}

// pump forwards one subscription's events into the send buffer. It exits
// when the subscription is closed and its channel drained.
func (s *Session) pump(sub *bus.Subscription) {
	defer s.pumps.Done()

	for q := range sub.C() {
		b, err := json.Marshal(WSResponse{Type: "quote", Data: q})
		if err != nil {
			continue
		}
		s.sendBytes(b)
		s.logger.Debug("Quote delivered",
			zap.String("symbol", q.Symbol),
			zap.Int64("seq_id", q.SeqID),
			zap.Duration("latency", time.Since(q.Time())))
	}
}

// teardown closes every subscription, waits for the pumps to drain and only
// then closes the send channel so no pump writes into a closed channel.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for sym, sub := range s.subs {
			_ = sub.Close()
			delete(s.subs, sym)
		}
		s.mu.Unlock()

		s.pumps.Wait()
		close(s.send)
	})
}

func (s *Session) sendAck(id, status, msg string) {
	s.sendControl(WSResponse{Type: "ack", ID: id, Status: status, Message: msg})
}

func (s *Session) sendError(id, msg string) {
	s.sendControl(WSResponse{Type: "error", ID: id, Message: msg})
}

func (s *Session) readPump() {
	defer func() {
		s.teardown()
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

	for {
		header, err := ws.ReadHeader(s.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			s.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			s.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			var req WSRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				s.sendControl(WSResponse{Type: "error", Message: "Invalid JSON"})
				continue
			}

			for i, sym := range req.Payload.Symbols {
				req.Payload.Symbols[i] = strings.ToUpper(strings.TrimSpace(sym))
			}

			s.handleCommand(req)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if !ok {
				s.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(s.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
