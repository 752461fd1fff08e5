package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/logging"
	"github.com/dise/partnerportal/pkg/protocol"
)

// MockComponent implements core.Component for testing.
type MockComponent struct {
	core.BaseComponent

	mu              sync.Mutex
	mountParams     core.Params
	count           int
	terminateReason core.TerminateReason
	terminated      chan struct{}
}

func NewMockComponent() *MockComponent {
	return &MockComponent{terminated: make(chan struct{})}
}

func (c *MockComponent) Name() string {
	return "MockComponent"
}

func (c *MockComponent) Mount(ctx context.Context, params core.Params, session core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mountParams = params
	return nil
}

func (c *MockComponent) Render(ctx context.Context) core.Renderer {
	c.mu.Lock()
	count := c.count
	c.mu.Unlock()
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div><h1 data-slot="title">Mock Content</h1><span data-slot="count">%d</span></div>`, count)
		return err
	})
}

func (c *MockComponent) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "inc":
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
		return nil
	case "later":
		return c.Socket().Post("tick")
	case "boom":
		panic("boom")
	default:
		return errors.New("unknown event")
	}
}

func (c *MockComponent) HandleInfo(ctx context.Context, msg any) error {
	if msg == "tick" {
		c.mu.Lock()
		c.count += 10
		c.mu.Unlock()
	}
	return nil
}

func (c *MockComponent) Terminate(ctx context.Context, reason core.TerminateReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.terminated:
	default:
		c.terminateReason = reason
		close(c.terminated)
	}
	return nil
}

func newTestRouter() *Router {
	return New(Options{Logger: logging.NopLogger{}})
}

func TestRouter_Live_InitialHTTPRender(t *testing.T) {
	r := newTestRouter()

	var component *MockComponent
	h := r.Live(func() core.Component {
		component = NewMockComponent()
		return component
	})

	req := httptest.NewRequest(http.MethodGet, "/?foo=bar", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if component.mountParams["foo"] != "bar" {
		t.Errorf("expected query params on mount, got %v", component.mountParams)
	}
	if !strings.Contains(rec.Body.String(), "Mock Content") {
		t.Errorf("expected body to contain 'Mock Content', got '%s'", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected Content-Type text/html, got '%s'", ct)
	}
}

type nilRenderComponent struct{ core.BaseComponent }

func (nilRenderComponent) Render(ctx context.Context) core.Renderer { return nil }

func TestRouter_ErrorHandler(t *testing.T) {
	r := newTestRouter()

	var got error
	r.SetErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
		got = err
		http.Error(w, "Custom Error", http.StatusTeapot)
	})

	h := r.Live(func() core.Component { return &nilRenderComponent{} })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !errors.Is(got, ErrNilRenderer) {
		t.Errorf("expected ErrNilRenderer, got %v", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected custom status, got %d", rec.Code)
	}
}

func TestRouter_extractParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?foo=bar&baz=123", nil)
	params := extractParams(req)

	if params["foo"] != "bar" || params["baz"] != "123" {
		t.Errorf("unexpected params %v", params)
	}
}

func TestRouter_isWebSocketRequest(t *testing.T) {
	tests := []struct {
		name     string
		upgrade  string
		expected bool
	}{
		{"WebSocket request", "websocket", true},
		{"WebSocket request uppercase", "WebSocket", true},
		{"Normal request", "", false},
		{"Other upgrade", "h2c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			if got := isWebSocketRequest(req); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSafeCall_RecoversPanic(t *testing.T) {
	err := safeCall(func() error { panic("kaboom") })
	if !errors.Is(err, ErrComponentPanic) {
		t.Fatalf("expected ErrComponentPanic, got %v", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("expected panic value in error, got %v", err)
	}
}

// wsClient is a minimal JSON-codec client for end-to-end tests.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	ref  int
}

func dial(t *testing.T, ctx context.Context, url string) *wsClient {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), &websocket.DialOptions{
		Subprotocols: []string{"portal.json"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(ctx context.Context, event string, payload map[string]any) string {
	c.t.Helper()
	c.ref++
	ref := fmt.Sprint(c.ref)
	msg := protocol.EventMessage("lv:test", event, payload).WithRef(ref)
	data, _ := json.Marshal(msg)
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
	return ref
}

func (c *wsClient) read(ctx context.Context) *protocol.Message {
	c.t.Helper()
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	return &msg
}

func TestRouter_WebSocketSession(t *testing.T) {
	r := newTestRouter()

	components := make(chan *MockComponent, 2)
	srv := httptest.NewServer(r.Live(func() core.Component {
		c := NewMockComponent()
		components <- c
		return c
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := dial(t, ctx, srv.URL)
	defer client.conn.CloseNow()
	comp := <-components

	// Events before join are rejected.
	client.send(ctx, "inc", nil)
	if reply := client.read(ctx); reply.Payload["status"] != "error" {
		t.Fatalf("expected error reply before join, got %+v", reply)
	}

	client.send(ctx, "phx_join", map[string]any{"hash": "#SignageOS-ChromeOS"})
	reply := client.read(ctx)
	if reply.Event != "phx_reply" || reply.Payload["status"] != "ok" {
		t.Fatalf("unexpected join reply %+v", reply)
	}
	resp := reply.Payload["response"].(map[string]any)
	if !strings.Contains(resp["rendered"].(string), `data-slot="count">0<`) {
		t.Errorf("expected rendered page in join reply, got %v", resp["rendered"])
	}
	if comp.mountParams["hash"] != "#SignageOS-ChromeOS" {
		t.Errorf("expected join payload in mount params, got %v", comp.mountParams)
	}

	// Only the changed slot is pushed.
	client.send(ctx, "inc", nil)
	diff := client.read(ctx)
	if diff.Event != "diff" {
		t.Fatalf("expected diff, got %+v", diff)
	}
	slots := diff.Payload["s"].(map[string]any)
	if len(slots) != 1 || slots["count"] != "1" {
		t.Errorf("expected only count slot, got %v", slots)
	}

	// Info posted from the component goes through the same loop.
	client.send(ctx, "later", nil)
	diff = client.read(ctx)
	if diff.Event != "diff" {
		t.Fatalf("expected diff after info, got %+v", diff)
	}
	if got := diff.Payload["s"].(map[string]any)["count"]; got != "11" {
		t.Errorf("expected count 11 after tick, got %v", got)
	}

	// Panics become error replies and keep the session alive.
	ref := client.send(ctx, "boom", nil)
	reply = client.read(ctx)
	if reply.Ref != ref || reply.Payload["status"] != "error" {
		t.Errorf("expected error reply for panic, got %+v", reply)
	}

	ref = client.send(ctx, "heartbeat", nil)
	if reply = client.read(ctx); reply.Ref != ref || reply.Payload["status"] != "ok" {
		t.Errorf("expected heartbeat reply, got %+v", reply)
	}

	if r.Sessions().Count() != 1 || r.Sockets().Count() != 1 {
		t.Errorf("expected one session and socket, got %d/%d", r.Sessions().Count(), r.Sockets().Count())
	}

	client.send(ctx, "phx_leave", nil)
	select {
	case <-comp.terminated:
	case <-ctx.Done():
		t.Fatal("component was not terminated")
	}
	if comp.terminateReason != core.TerminateNormal {
		t.Errorf("expected normal termination, got %v", comp.terminateReason)
	}
}

func TestRouter_Shutdown(t *testing.T) {
	r := newTestRouter()

	components := make(chan *MockComponent, 1)
	srv := httptest.NewServer(r.Live(func() core.Component {
		c := NewMockComponent()
		components <- c
		return c
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := dial(t, ctx, srv.URL)
	defer client.conn.CloseNow()
	comp := <-components

	client.send(ctx, "phx_join", nil)
	client.read(ctx)
	// Answer the server's close handshake without reading data.
	client.conn.CloseRead(ctx)

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	<-comp.terminated
	if comp.terminateReason != core.TerminateShutdown {
		t.Errorf("expected shutdown termination, got %v", comp.terminateReason)
	}
	if r.Sessions().Count() != 0 {
		t.Errorf("expected no sessions after shutdown, got %d", r.Sessions().Count())
	}

	// New upgrades are refused.
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatal("expected dial to fail after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after shutdown, got %v", resp)
	}
}

func TestSessionManager(t *testing.T) {
	sm := NewSessionManager(&SessionManagerConfig{MaxSessions: 2, SessionTTL: time.Minute})

	s1 := NewSession("socket-1", NewMockComponent(), nil, nil, 0)
	s2 := NewSession("socket-2", NewMockComponent(), nil, nil, 0)
	s1.lastActivity = time.Now().Add(-time.Hour)

	sm.Add(s1)
	sm.Add(s2)

	if got, ok := sm.GetBySocket("socket-2"); !ok || got != s2 {
		t.Error("expected to find session by socket ID")
	}

	// Cap reached: the idle session is evicted.
	s3 := NewSession("socket-3", NewMockComponent(), nil, nil, 0)
	if evicted := sm.Add(s3); evicted != s1 {
		t.Errorf("expected s1 evicted, got %v", evicted)
	}
	if sm.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", sm.Count())
	}

	expired := sm.Expired(time.Now().Add(2 * time.Minute))
	if len(expired) != 2 || sm.Count() != 0 {
		t.Errorf("expected all sessions expired, got %d left %d", len(expired), sm.Count())
	}
}

func TestSession_PostAndStop(t *testing.T) {
	s := NewSession("socket-1", NewMockComponent(), nil, nil, 1)

	if !s.post("a") {
		t.Error("expected first post to be queued")
	}
	if s.post("b") {
		t.Error("expected post to fail on a full inbox")
	}

	s.Stop(core.TerminateTimeout)
	s.Stop(core.TerminateShutdown)
	if reason := <-s.stopCh; reason != core.TerminateTimeout {
		t.Errorf("expected first stop reason to win, got %v", reason)
	}

	close(s.done)
	<-s.inbox
	if s.post("c") {
		t.Error("expected post to fail after the loop ended")
	}
}
