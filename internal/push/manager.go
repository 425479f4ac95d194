// Package push keeps a websocket open to the editor server and dispatches
// its file notifications. A dropped connection is redialled after a fixed
// delay, forever, until the context is cancelled.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youruser/mmedit/internal/logging"
)

const (
	TypeFileUpdated   = "file_updated"
	TypeSync          = "sync"
	TypeUpdateSuccess = "update_success"
	TypeError         = "error"

	TypeRequestSync = "request_sync"
	TypeNodeUpdate  = "node_update"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	writeWait             = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("push channel not connected")
	log             = logging.Get()
)

// Message is a notification from the server.
type Message struct {
	Type    string          `json:"type"`
	Path    string          `json:"path,omitempty"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Tree    json.RawMessage `json:"tree,omitempty"`
}

// RequestSync asks the server for a "sync" message carrying the tree.
type RequestSync struct {
	Type string `json:"type"`
}

// NodeUpdate asks the server to rewrite text in one file. LineNumber is
// 1-based; without it the first occurrence in the file is replaced.
type NodeUpdate struct {
	Type       string `json:"type"`
	FilePath   string `json:"file_path"`
	LineNumber *int   `json:"line_number,omitempty"`
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
}

// Handler receives decoded server messages.
type Handler func(Message)

// StatusFunc is called with true after each successful dial and false
// after each disconnect.
type StatusFunc func(connected bool)

// Manager owns the websocket connection.
type Manager struct {
	url     string
	dialer  *websocket.Dialer
	handler Handler
	status  StatusFunc

	// ReconnectDelay is the wait between a disconnect and the next dial.
	ReconnectDelay time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewManager(url string, handler Handler, status StatusFunc) *Manager {
	if status == nil {
		status = func(bool) {}
	}
	return &Manager{
		url:            url,
		dialer:         websocket.DefaultDialer,
		handler:        handler,
		status:         status,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// Connected reports whether a connection is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Run dials, reads until the connection drops, waits ReconnectDelay and
// dials again. It returns ctx.Err() once ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Push dial %s failed: %v", m.url, err)
			m.status(false)
		} else {
			m.serve(ctx, conn)
		}

		log.Debug("Push reconnecting in %s", m.ReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.ReconnectDelay):
		}
	}
}

// serve reads frames from conn until it fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	log.Info("Push connected: %s", m.url)
	m.status(true)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Info("Push disconnected: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("Push: skipping malformed frame: %v", err)
			continue
		}
		if m.handler != nil {
			m.handler(msg)
		}
	}

	close(done)
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
	conn.Close()

	m.status(false)
}

// Send writes v as a JSON text frame on the live connection.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// RequestSync asks the server to send the current tree.
func (m *Manager) RequestSync() error {
	return m.Send(RequestSync{Type: TypeRequestSync})
}
