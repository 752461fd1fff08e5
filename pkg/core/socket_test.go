package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	connected bool
	messages  []Message
	mu        sync.Mutex
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrSocketClosed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func TestNewSocket(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if socket.ID() != "test-id" {
		t.Errorf("expected ID 'test-id', got '%s'", socket.ID())
	}
	if socket.Topic() != "lv:test-id" {
		t.Errorf("expected topic 'lv:test-id', got '%s'", socket.Topic())
	}
	if !socket.IsConnected() {
		t.Error("expected socket to be connected")
	}
}

func TestSocket_Push(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.Push("commands", map[string]any{"key": "value"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Event != "commands" || messages[0].Topic != "lv:test-id" {
		t.Errorf("unexpected message %+v", messages[0])
	}
}

func TestSocket_Send_Closed(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	socket.Close()

	if err := socket.Send(Message{Event: "test"}); err != ErrSocketClosed {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
}

func TestSocket_Send_Concurrent(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				socket.Send(Message{Event: "test", Payload: map[string]any{"id": id, "n": j}})
			}
		}(i)
	}
	wg.Wait()

	if got := len(transport.Messages()); got != goroutines*perGoroutine {
		t.Errorf("expected %d messages, got %d", goroutines*perGoroutine, got)
	}
}

func TestSocket_LastActivity(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	initial := socket.LastActivity()

	time.Sleep(5 * time.Millisecond)
	socket.Send(Message{Event: "test"})

	if !socket.LastActivity().After(initial) {
		t.Error("expected LastActivity to be updated after Send")
	}
}

func TestSocket_Post(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if err := socket.Post("early"); err != ErrSocketClosed {
		t.Errorf("expected ErrSocketClosed before wiring, got %v", err)
	}

	var got []any
	socket.SetInfoPoster(func(msg any) bool {
		got = append(got, msg)
		return len(got) < 2
	})

	if err := socket.Post("first"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := socket.Post("second"); !errors.Is(err, ErrInboxFull) {
		t.Errorf("expected ErrInboxFull, got %v", err)
	}
	if len(got) != 2 || got[0] != "first" {
		t.Errorf("unexpected posted messages %v", got)
	}

	socket.Close()
	if err := socket.Post("late"); err != ErrSocketClosed {
		t.Errorf("expected ErrSocketClosed after close, got %v", err)
	}
}

func TestSocket_SendDiff(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.SendDiff(&DiffPayload{Version: 1}); err != nil {
		t.Fatalf("empty diff: %v", err)
	}
	if len(transport.Messages()) != 0 {
		t.Fatal("expected empty diff to be skipped")
	}

	payload := &DiffPayload{Version: 2, HTMLSlots: map[string]string{"pages": "<div>x</div>"}}
	if err := socket.SendDiff(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 || messages[0].Event != "diff" {
		t.Fatalf("expected one diff message, got %+v", messages)
	}
	if _, ok := messages[0].Payload["f"]; ok {
		t.Error("expected no full render in slot diff")
	}
	if messages[0].Payload["v"] != uint64(2) {
		t.Errorf("expected version 2, got %v", messages[0].Payload["v"])
	}
}

func TestSocketManager(t *testing.T) {
	sm := NewSocketManager()
	a := NewSocket("a", NewMockTransport())
	b := NewSocket("b", NewMockTransport())
	sm.Add(a)
	sm.Add(b)

	if sm.Count() != 2 {
		t.Fatalf("expected 2 sockets, got %d", sm.Count())
	}
	if s, ok := sm.Get("a"); !ok || s != a {
		t.Error("expected to find socket a")
	}

	sm.Remove("a")
	if _, ok := sm.Get("a"); ok {
		t.Error("expected socket a to be removed")
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !sm.IsShutdown() || sm.Count() != 0 {
		t.Error("expected manager to be empty and shut down")
	}
	if b.IsConnected() {
		t.Error("expected socket b to be closed on shutdown")
	}
}

func TestSocketManager_CleanupInactive(t *testing.T) {
	sm := NewSocketManager()
	stale := NewSocket("stale", NewMockTransport())
	stale.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	sm.Add(stale)
	sm.Add(NewSocket("fresh", NewMockTransport()))

	if removed := sm.CleanupInactive(time.Minute); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := sm.Get("fresh"); !ok {
		t.Error("expected fresh socket to survive")
	}
}

func TestBuildContext(t *testing.T) {
	socket := NewSocket("ctx", NewMockTransport())
	ctx := BuildContext(context.Background(), socket, Session{"remote_addr": "10.0.0.1"}, Params{"hash": "#home"})

	if SocketFromContext(ctx) != socket {
		t.Error("expected socket in context")
	}
	if SessionFromContext(ctx).GetString("remote_addr") != "10.0.0.1" {
		t.Error("expected session in context")
	}
	if ParamsFromContext(ctx).Get("hash") != "#home" {
		t.Error("expected params in context")
	}
	if SocketFromContext(context.Background()) != nil {
		t.Error("expected nil socket in empty context")
	}
}

func TestTimeoutConfig_Validate(t *testing.T) {
	if err := DefaultTimeoutConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	cfg := DefaultTimeoutConfig()
	cfg.WebSocketRead = cfg.PingInterval
	if err := cfg.Validate(); err != ErrReadBelowPing {
		t.Errorf("expected ErrReadBelowPing, got %v", err)
	}
}
