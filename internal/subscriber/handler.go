package subscriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"pushgate/internal/platform/metrics"
	"pushgate/internal/registry"
)

// Handler serves the WebSocket subscriber endpoint.
type Handler struct {
	registrar      Registrar
	logger         *slog.Logger
	metrics        *metrics.Metrics
	originPatterns []string
	writeTimeout   time.Duration
	readLimit      int64
}

type HandlerOption func(*Handler)

// WithOriginPatterns restricts cross-origin upgrades. Without patterns only
// same-origin browsers (and non-browser clients) may connect.
func WithOriginPatterns(patterns []string) HandlerOption {
	return func(h *Handler) { h.originPatterns = patterns }
}

func WithWriteTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func WithReadLimit(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(registrar Registrar, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		registrar:    registrar,
		logger:       logger,
		writeTimeout: 5 * time.Second,
		readLimit:    4096,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/ws", h.HandleSubscribe)
}

// HandleSubscribe upgrades the request and runs the session until either side
// closes the connection.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	// Frames are bounded by readMessage instead, which drops oversized
	// messages and keeps the connection open.
	conn.SetReadLimit(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := NewSession(h.registrar, h.logger)
	defer session.Close()

	// The session leaves the registry before the close handshake so a
	// resolution never lands on a socket that is going away.
	closeConn := func(code websocket.StatusCode, reason string) {
		session.Close()
		_ = conn.Close(code, reason)
	}

	h.metrics.AddActiveSubscribers(1)
	defer h.metrics.AddActiveSubscribers(-1)
	h.logger.DebugContext(ctx, "subscriber connected", "session_id", session.ID().String())

	readErr := make(chan error, 1)
	go func() {
		for {
			typ, data, err := h.readMessage(ctx, conn)
			if err != nil {
				readErr <- err
				return
			}
			if data == nil {
				h.logger.DebugContext(ctx, "discarding oversized control message",
					"session_id", session.ID().String(),
					"limit", h.readLimit,
				)
				continue
			}
			if typ != websocket.MessageText {
				continue
			}
			session.HandleMessage(ctx, data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			closeConn(websocket.StatusGoingAway, "server shutting down")
			return
		case err := <-readErr:
			h.logClosed(ctx, session, err)
			closeConn(websocket.StatusNormalClosure, "closed")
			return
		case d, ok := <-session.Outbound():
			if !ok {
				closeConn(websocket.StatusNormalClosure, "closed")
				return
			}
			if err := h.write(ctx, conn, d); err != nil {
				h.logger.WarnContext(ctx, "subscriber write failed",
					"session_id", session.ID().String(),
					"error", err,
				)
				closeConn(websocket.StatusInternalError, "write_failed")
				return
			}
		}
	}
}

// readMessage returns the next message, or nil data when it was larger than
// the read limit. Oversized messages are drained so the next read starts on a
// frame boundary.
func (h *Handler) readMessage(ctx context.Context, conn *websocket.Conn) (websocket.MessageType, []byte, error) {
	typ, r, err := conn.Reader(ctx)
	if err != nil {
		return 0, nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, h.readLimit+1))
	if err != nil {
		return 0, nil, err
	}
	if int64(len(data)) <= h.readLimit {
		return typ, data, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return 0, nil, err
	}
	return typ, nil, nil
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, d registry.Delivery) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, d)
}

func (h *Handler) logClosed(ctx context.Context, session *Session, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		h.logger.DebugContext(ctx, "subscriber disconnected", "session_id", session.ID().String())
		return
	}
	h.logger.InfoContext(ctx, "subscriber connection ended",
		"session_id", session.ID().String(),
		"close_status", int(status),
		"error", err,
	)
}
