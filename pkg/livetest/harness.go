package livetest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/dise/partnerportal/pkg/core"
)

// Harness mounts a component on a mock socket. Messages the component
// posts to itself are queued and delivered by Drain, in order, the way
// the session loop would.
type Harness struct {
	t         testing.TB
	component core.Component
	transport *MockTransport
	socket    *core.Socket
	rendered  string

	inbox []any
	mu    sync.Mutex
}

// Mount creates and mounts a component for testing.
func Mount(t testing.TB, comp core.Component, params core.Params, session core.Session) *Harness {
	t.Helper()

	if params == nil {
		params = core.Params{}
	}
	if session == nil {
		session = core.Session{}
	}

	h := &Harness{
		t:         t,
		component: comp,
		transport: NewMockTransport(),
	}
	h.socket = core.NewSocket("test-socket", h.transport)
	h.socket.SetInfoPoster(func(msg any) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.inbox = append(h.inbox, msg)
		return true
	})

	if setter, ok := comp.(interface{ SetSocket(*core.Socket) }); ok {
		setter.SetSocket(h.socket)
	}

	ctx := core.BuildContext(context.Background(), h.socket, session, params)
	if err := comp.Mount(ctx, params, session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(func() {
		comp.Terminate(context.Background(), core.TerminateNormal)
	})

	h.render()
	return h
}

// Event sends an event and re-renders. Handler errors fail the test.
func (h *Harness) Event(event string, payload map[string]any) *Harness {
	h.t.Helper()
	if err := h.TryEvent(event, payload); err != nil {
		h.t.Errorf("HandleEvent(%s) failed: %v", event, err)
	}
	return h
}

// TryEvent sends an event, re-renders and returns the handler error.
func (h *Harness) TryEvent(event string, payload map[string]any) error {
	h.t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	err := h.component.HandleEvent(context.Background(), event, payload)
	h.render()
	return err
}

// Info delivers an info message and re-renders.
func (h *Harness) Info(msg any) *Harness {
	h.t.Helper()
	if err := h.component.HandleInfo(context.Background(), msg); err != nil {
		h.t.Errorf("HandleInfo failed: %v", err)
	}
	h.render()
	return h
}

// Pending returns the number of queued info messages.
func (h *Harness) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inbox)
}

// Drain delivers queued info messages until none are left, including
// messages queued while draining.
func (h *Harness) Drain() *Harness {
	h.t.Helper()
	for {
		h.mu.Lock()
		if len(h.inbox) == 0 {
			h.mu.Unlock()
			return h
		}
		msg := h.inbox[0]
		h.inbox = h.inbox[1:]
		h.mu.Unlock()
		h.Info(msg)
	}
}

func (h *Harness) render() {
	h.t.Helper()
	ctx := context.Background()
	renderer := h.component.Render(ctx)
	if renderer == nil {
		h.t.Fatalf("Render returned nil")
	}

	var buf bytes.Buffer
	if err := renderer.Render(ctx, &buf); err != nil {
		h.t.Fatalf("Render failed: %v", err)
	}
	h.rendered = buf.String()
}

// Rendered returns the current rendered HTML.
func (h *Harness) Rendered() string {
	return h.rendered
}

// Transport returns the mock transport behind the socket.
func (h *Harness) Transport() *MockTransport {
	return h.transport
}

// Socket returns the component's socket.
func (h *Harness) Socket() *core.Socket {
	return h.socket
}

// Component returns the component under test.
func (h *Harness) Component() core.Component {
	return h.component
}
