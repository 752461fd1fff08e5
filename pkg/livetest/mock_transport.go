// Package livetest drives live components in tests without a browser or
// a WebSocket connection.
package livetest

import (
	"sync"

	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/js"
)

// MockTransport implements core.Transport and records every push.
type MockTransport struct {
	Sent   []core.Message
	Closed bool

	errorToSend error
	mu          sync.Mutex
}

// NewMockTransport creates a connected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send records a sent message.
func (m *MockTransport) Send(msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.errorToSend != nil {
		return m.errorToSend
	}
	if m.Closed {
		return core.ErrSocketClosed
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Close marks the transport as closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsConnected returns the connection status.
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Closed
}

// SetError makes every following Send fail with err.
func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorToSend = err
}

// SentMessages returns all sent messages.
func (m *MockTransport) SentMessages() []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Message, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// Reset forgets sent messages.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}

// Commands returns every client command pushed so far, in order.
func (m *MockTransport) Commands() js.Commands {
	var out js.Commands
	for _, msg := range m.SentMessages() {
		if msg.Event != js.PushEvent {
			continue
		}
		list, _ := msg.Payload["commands"].([]any)
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			op, _ := entry["op"].(string)
			args, _ := entry["args"].(map[string]any)
			out = append(out, js.Command{Op: op, Args: args})
		}
	}
	return out
}
