package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	accepts  int
	received []map[string]any
	conns    chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{conns: make(chan *websocket.Conn, 4)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ts.mu.Lock()
		ts.accepts++
		ts.mu.Unlock()
		ts.conns <- conn

		for {
			var in map[string]any
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, in)
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type statusLog struct {
	mu  sync.Mutex
	got []bool
	ch  chan bool
}

func newStatusLog() *statusLog { return &statusLog{ch: make(chan bool, 64)} }

func (s *statusLog) record(connected bool) {
	s.mu.Lock()
	s.got = append(s.got, connected)
	s.mu.Unlock()
	select {
	case s.ch <- connected:
	default:
	}
}

func waitStatus(t *testing.T, s *statusLog, want bool) {
	t.Helper()
	select {
	case got := <-s.ch:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for status %v", want)
	}
}

func TestManagerDispatchesMessages(t *testing.T) {
	ts := newTestServer(t)
	msgs := make(chan Message, 4)
	status := newStatusLog()

	m := NewManager(ts.wsURL(), func(msg Message) { msgs <- msg }, status.record)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	waitStatus(t, status, true)
	conn := <-ts.conns

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "file_updated", "path": "a/requirements.md", "content": "new"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "sync", "tree": map[string]any{"title": "T"}}))

	first := <-msgs
	assert.Equal(t, Message{Type: TypeFileUpdated, Path: "a/requirements.md", Content: "new"}, first, "malformed frame is skipped")

	second := <-msgs
	assert.Equal(t, TypeSync, second.Type)
	var tree struct{ Title string }
	require.NoError(t, json.Unmarshal(second.Tree, &tree))
	assert.Equal(t, "T", tree.Title)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManagerReconnects(t *testing.T) {
	ts := newTestServer(t)
	status := newStatusLog()

	m := NewManager(ts.wsURL(), nil, status.record)
	m.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitStatus(t, status, true)
	conn := <-ts.conns
	conn.Close()

	waitStatus(t, status, false)
	waitStatus(t, status, true)
	<-ts.conns

	ts.mu.Lock()
	assert.Equal(t, 2, ts.accepts)
	ts.mu.Unlock()
}

func TestManagerSend(t *testing.T) {
	ts := newTestServer(t)
	status := newStatusLog()
	m := NewManager(ts.wsURL(), nil, status.record)

	assert.ErrorIs(t, m.RequestSync(), ErrNotConnected)
	assert.False(t, m.Connected())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	waitStatus(t, status, true)
	<-ts.conns

	require.True(t, m.Connected())
	require.NoError(t, m.RequestSync())
	line := 3
	require.NoError(t, m.Send(NodeUpdate{Type: TypeNodeUpdate, FilePath: "a.md", LineNumber: &line, OldText: "x", NewText: "y"}))

	require.Eventually(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return len(ts.received) == 2
	}, 5*time.Second, 10*time.Millisecond)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	assert.Equal(t, "request_sync", ts.received[0]["type"])
	assert.Equal(t, "node_update", ts.received[1]["type"])
	assert.Equal(t, float64(3), ts.received[1]["line_number"])
}

func TestManagerDialFailureRetries(t *testing.T) {
	status := newStatusLog()
	m := NewManager("ws://127.0.0.1:1/ws", nil, status.record)
	m.ReconnectDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitStatus(t, status, false)
	waitStatus(t, status, false)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
