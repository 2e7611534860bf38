package room

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// mockConn records every frame it receives so tests can assert on the
// fan-out each seat observed.
type mockConn struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	closeOut bool // SendAndClose was called
	failSend bool // make SendRaw report a dead connection
}

func newMockConn() *mockConn {
	return &mockConn{id: uuid.NewString()}
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(msg any, ack string) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.SendRaw(frame)
}

func (m *mockConn) SendRaw(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend || m.closed {
		return errors.New("connection closed")
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.frames = append(m.frames, buf)
	return nil
}

func (m *mockConn) SendAndClose(msg any) {
	_ = m.Send(msg, "")
	m.mu.Lock()
	m.closeOut = true
	m.closed = true
	m.mu.Unlock()
}

func (m *mockConn) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// messageTypes decodes the recorded frames down to their "type" tags, the
// usual thing a test wants to assert on.
func (m *mockConn) messageTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.frames))
	for _, frame := range m.frames {
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &msg); err == nil {
			types = append(types, msg.Type)
		}
	}
	return types
}
