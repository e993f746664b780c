package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// WebSocket sends each write as one text frame. Headers are recorded but
// never sent, the upgrade response having already gone out.
type WebSocket struct {
	conn *websocket.Conn

	mu      sync.Mutex
	headers map[string]string
	closed  bool
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn, headers: make(map[string]string)}
}

func (t *WebSocket) SetChunked(bool) {}

func (t *WebSocket) PutHeader(name, value string) {
	t.mu.Lock()
	t.headers[name] = value
	t.mu.Unlock()
}

// Header returns a recorded header value.
func (t *WebSocket) Header(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headers[name]
}

func (t *WebSocket) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure frame and closes the connection. Only the
// first call acts.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return t.conn.Close()
}
