package relay

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/session"
	"github.com/lexiqai/caption-gateway/internal/stt"
	"github.com/lexiqai/caption-gateway/internal/translate"
)

// Handler upgrades client connections to websockets and runs one recognition
// session per connection
type Handler struct {
	recognizer    stt.Recognizer
	translator    translate.Translator
	sessionConfig session.Config
	drainTimeout  time.Duration
	writeTimeout  time.Duration
	upgrader      websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closing  bool
	inflight sync.WaitGroup
}

// NewHandler creates a websocket handler sharing recognizer and translator
// across connections
func NewHandler(recognizer stt.Recognizer, translator translate.Translator, cfg *config.Config) *Handler {
	h := &Handler{
		recognizer:    recognizer,
		translator:    translator,
		sessionConfig: session.ConfigFrom(cfg),
		drainTimeout:  cfg.DrainTimeout(),
		writeTimeout:  time.Duration(cfg.WriteTimeout) * time.Second,
		conns:         make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return h
}

// originChecker accepts requests whose Origin host is listed. "*" accepts
// any origin, and requests without an Origin header are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	hosts := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}
		if origin != "" {
			hosts[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithCorrelationID(middleware.GetReqID(r.Context()))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	if !h.track(conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(time.Second))
		return
	}
	defer h.untrack(conn)

	connectionID := uuid.NewString()
	logger = logger.With().
		Str("connection_id", connectionID).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	metrics := observability.NewConnectionMetrics(connectionID)
	metrics.RecordConnectionStart()

	sender := newConnSender(conn, h.writeTimeout)
	lifecycle := NewLifecycle(session.Deps{
		Recognizer: h.recognizer,
		Translator: h.translator,
		Sender:     sender,
		Logger:     logger,
		Metrics:    metrics,
	}, h.sessionConfig, h.drainTimeout)
	lifecycle.Open(context.WithoutCancel(r.Context()))

	logger.Info().Msg("Client connected")

	// A session that ends on its own closes the socket, which ends the read
	// loop below.
	readDone := make(chan struct{})
	go func() {
		select {
		case <-lifecycle.Done():
			sender.Close(websocket.CloseNormalClosure, "session ended")
			conn.Close()
		case <-readDone:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			}
			break
		}
		lifecycle.OnMessage(messageType, data)
	}
	close(readDone)

	lifecycle.OnClose()
	sender.Close(websocket.CloseNormalClosure, "")

	logger.Info().
		Str("state", lifecycle.Session().State().String()).
		Msg("Client disconnected")
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.inflight.Add(1)
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.inflight.Done()
}

// ActiveConnections returns the number of open client connections
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown stops accepting connections and ends the open ones. Each
// connection drains its session as on a client disconnect. It returns
// ctx.Err() if the connections are still open when ctx ends.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for conn := range h.conns {
		// Unblocks ReadMessage; the handler then runs OnClose.
		conn.SetReadDeadline(time.Now())
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
