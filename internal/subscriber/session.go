// Package subscriber adapts live client connections to the channel registry.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"pushgate/internal/registry"
	"pushgate/pkg/domain"
)

const (
	actionSubscribe = "subscribe"

	defaultOutboundBuffer = 8
)

var (
	ErrSessionClosed = errors.New("subscriber session closed")
	ErrSessionBusy   = errors.New("subscriber session outbound buffer full")
)

// Registrar is the part of the registry a session mutates.
type Registrar interface {
	Register(id domain.TransactionID, ch registry.Channel)
	UnregisterIfMatches(id domain.TransactionID, ch registry.Channel) bool
}

type controlMessage struct {
	Action        string `json:"action"`
	TransactionID string `json:"transactionId"`
}

// Session wraps one subscriber connection. It implements registry.Channel:
// deliveries are queued on Outbound for the transport to write.
//
// Lock order is session then registry. The registry never holds its own lock
// while calling Send, so the order cannot invert.
type Session struct {
	id        domain.SessionID
	registrar Registrar
	logger    *slog.Logger

	mu         sync.Mutex
	closed     bool
	subscribed map[domain.TransactionID]struct{}
	out        chan registry.Delivery
}

func NewSession(registrar Registrar, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := domain.NewSessionID()
	return &Session{
		id:         id,
		registrar:  registrar,
		logger:     logger.With("session_id", id.String()),
		subscribed: make(map[domain.TransactionID]struct{}),
		out:        make(chan registry.Delivery, defaultOutboundBuffer),
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

// Outbound yields deliveries in arrival order. It is closed by Close.
func (s *Session) Outbound() <-chan registry.Delivery { return s.out }

// Send queues d without blocking.
func (s *Session) Send(_ context.Context, d registry.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.out <- d:
		return nil
	default:
		return ErrSessionBusy
	}
}

// HandleMessage applies one inbound control message. Anything that is not a
// well-formed subscribe request is ignored without a reply.
func (s *Session) HandleMessage(ctx context.Context, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.DebugContext(ctx, "ignoring malformed control message", "error", err)
		return
	}
	if msg.Action != actionSubscribe {
		s.logger.DebugContext(ctx, "ignoring control message", "action", msg.Action)
		return
	}
	id, err := domain.ParseTransactionID(msg.TransactionID)
	if err != nil {
		s.logger.DebugContext(ctx, "ignoring subscribe with invalid transaction id", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.subscribed[id] = struct{}{}
	s.registrar.Register(id, s)
	s.logger.DebugContext(ctx, "subscribed", "transaction_id", id)
}

// Close unregisters every binding this session still owns and closes
// Outbound. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id := range s.subscribed {
		s.registrar.UnregisterIfMatches(id, s)
	}
	s.subscribed = nil
	close(s.out)
}

// Subscriptions returns how many transaction ids the session has subscribed to.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribed)
}
