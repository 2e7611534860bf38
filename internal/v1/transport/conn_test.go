package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWsConn records frames written by the pump. Reads block until the
// connection is closed.
type fakeWsConn struct {
	mu       sync.Mutex
	written  []writtenFrame
	closed   bool
	failNext bool

	readUnblock chan struct{}
}

type writtenFrame struct {
	messageType int
	data        []byte
}

func newFakeWsConn() *fakeWsConn {
	return &fakeWsConn{readUnblock: make(chan struct{})}
}

func (f *fakeWsConn) ReadMessage() (int, []byte, error) {
	<-f.readUnblock
	return 0, nil, errors.New("connection closed")
}

func (f *fakeWsConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("broken pipe")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.written = append(f.written, writtenFrame{messageType: messageType, data: buf})
	return nil
}

func (f *fakeWsConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.readUnblock)
	}
	return nil
}

func (f *fakeWsConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWsConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeWsConn) frames() []writtenFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]writtenFrame, len(f.written))
	copy(out, f.written)
	return out
}

func TestConnIdentity(t *testing.T) {
	a := NewConn(newFakeWsConn())
	b := NewConn(newFakeWsConn())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestWritePumpPreservesOrder(t *testing.T) {
	ws := newFakeWsConn()
	conn := NewConn(ws)

	require.NoError(t, conn.SendRaw([]byte(`"first"`)))
	require.NoError(t, conn.SendRaw([]byte(`"second"`)))
	require.NoError(t, conn.SendRaw([]byte(`"third"`)))
	conn.Close()

	conn.WritePump()

	frames := ws.frames()
	require.Len(t, frames, 4)
	assert.Equal(t, `"first"`, string(frames[0].data))
	assert.Equal(t, `"second"`, string(frames[1].data))
	assert.Equal(t, `"third"`, string(frames[2].data))
	for _, frame := range frames[:3] {
		assert.Equal(t, websocket.TextMessage, frame.messageType)
	}
}

func TestCloseEmitsCloseFrame(t *testing.T) {
	ws := newFakeWsConn()
	conn := NewConn(ws)

	conn.Close()
	conn.WritePump()

	frames := ws.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, websocket.CloseMessage, frames[0].messageType)
	assert.True(t, ws.isClosed())
}

func TestSendRawAfterCloseFails(t *testing.T) {
	conn := NewConn(newFakeWsConn())
	conn.Close()

	assert.Error(t, conn.SendRaw([]byte(`"late"`)))
}

func TestCloseIsIdempotent(t *testing.T) {
	ws := newFakeWsConn()
	conn := NewConn(ws)

	conn.Close()
	conn.Close()
	conn.WritePump()

	require.Len(t, ws.frames(), 1)
}

func TestWritePumpStopsOnWriteFailure(t *testing.T) {
	ws := newFakeWsConn()
	ws.failNext = true
	conn := NewConn(ws)

	require.NoError(t, conn.SendRaw([]byte(`"doomed"`)))

	done := make(chan struct{})
	go func() {
		conn.WritePump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit after write failure")
	}
	assert.True(t, ws.isClosed())
	assert.Error(t, conn.SendRaw([]byte(`"after"`)))
}

func TestSendInjectsAck(t *testing.T) {
	ws := newFakeWsConn()
	conn := NewConn(ws)

	require.NoError(t, conn.Send(map[string]any{"type": "Result", "data": 3}, "req-9"))
	conn.Close()
	conn.WritePump()

	frames := ws.frames()
	require.NotEmpty(t, frames)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frames[0].data, &decoded))
	assert.Equal(t, "req-9", decoded["ack"])
}

func TestSendAndCloseDeliversThenCloses(t *testing.T) {
	ws := newFakeWsConn()
	conn := NewConn(ws)

	conn.SendAndClose(map[string]any{"type": "Error"})
	conn.WritePump()

	frames := ws.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, websocket.TextMessage, frames[0].messageType)
	assert.Equal(t, websocket.CloseMessage, frames[1].messageType)
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://play.example.com"}

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"no origin header", "", true},
		{"allowed origin", "http://localhost:3000", true},
		{"allowed https origin", "https://play.example.com", true},
		{"scheme mismatch", "https://localhost:3000", false},
		{"host mismatch", "http://evil.example.com", false},
		{"port mismatch", "http://localhost:9999", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			err := validateOrigin(req, allowed)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
