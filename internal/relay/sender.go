package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by Send once the connection is closing
var ErrConnectionClosed = errors.New("connection closed")

// connSender serializes writes to a websocket connection. gorilla/websocket
// supports one concurrent writer.
type connSender struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

func newConnSender(conn *websocket.Conn, writeTimeout time.Duration) *connSender {
	return &connSender{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes data as one text message
func (s *connSender) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and rejects further sends. Only the first call
// writes.
func (s *connSender) Close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
