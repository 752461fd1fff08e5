// Package router serves live components over HTTP and WebSocket.
//
// A plain GET renders the mounted component as a full page. A WebSocket
// upgrade on the same path starts a session: one goroutine owns the
// component and serialises join, events, heartbeats and info messages
// posted through the socket. After every change the component is
// re-rendered and only the changed data-slot regions are pushed.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/logging"
	"github.com/dise/partnerportal/pkg/pool"
	"github.com/dise/partnerportal/pkg/protocol"
	"github.com/dise/partnerportal/pkg/transport"
)

// Common router errors.
var (
	ErrNilRenderer    = errors.New("component returned nil renderer")
	ErrNotJoined      = errors.New("event before join")
	ErrComponentPanic = errors.New("component panicked")
	ErrShuttingDown   = errors.New("router is shutting down")
)

// ErrorHandler handles errors during the initial HTTP render.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Options configures a Router.
type Options struct {
	Timeouts    core.TimeoutConfig
	WebSocket   *transport.WebSocketConfig
	Codecs      *protocol.CodecRegistry
	MaxSessions int
	InboxSize   int
	Logger      logging.Logger
}

// Router hosts live sessions.
type Router struct {
	opts            Options
	transportConfig *transport.Config
	sessions        *SessionManager
	sockets         *core.SocketManager
	errorHandler    ErrorHandler
	logger          logging.Logger

	closing   atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a router. Zero options take the defaults.
func New(opts Options) *Router {
	if opts.Timeouts == (core.TimeoutConfig{}) {
		opts.Timeouts = core.DefaultTimeoutConfig()
	}
	if opts.Codecs == nil {
		opts.Codecs = protocol.DefaultCodecRegistry
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}

	tc := transport.DefaultConfig()
	tc.ReadTimeout = opts.Timeouts.WebSocketRead
	tc.WriteTimeout = opts.Timeouts.WebSocketWrite
	tc.PingInterval = opts.Timeouts.PingInterval

	smc := DefaultSessionManagerConfig()
	smc.SessionTTL = opts.Timeouts.SessionTTL
	if opts.MaxSessions > 0 {
		smc.MaxSessions = opts.MaxSessions
	}

	return &Router{
		opts:            opts,
		transportConfig: tc,
		sessions:        NewSessionManager(smc),
		sockets:         core.NewSocketManager(),
		logger:          opts.Logger,
		stopCh:          make(chan struct{}),
		errorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		},
	}
}

// SetErrorHandler sets the error handler.
func (r *Router) SetErrorHandler(handler ErrorHandler) {
	r.errorHandler = handler
}

// Sessions returns the session manager.
func (r *Router) Sessions() *SessionManager {
	return r.sessions
}

// Sockets returns the socket manager.
func (r *Router) Sockets() *core.SocketManager {
	return r.sockets
}

// Live returns the handler for a live component. factory is called once
// per page load and once per WebSocket session.
func (r *Router) Live(factory func() core.Component) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if isWebSocketRequest(req) {
			r.handleWebSocket(w, req, factory())
			return
		}
		r.renderPage(w, req, factory())
	})
}

// renderPage renders a component for a plain HTTP request.
func (r *Router) renderPage(w http.ResponseWriter, req *http.Request, component core.Component) {
	ctx := req.Context()
	params := extractParams(req)
	session := extractSession(req)

	err := safeCall(func() error { return component.Mount(ctx, params, session) })
	if err != nil {
		r.errorHandler(w, req, err)
		return
	}
	defer component.Terminate(ctx, core.TerminateNormal)

	html, err := r.render(ctx, component)
	if err != nil {
		r.errorHandler(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// handleWebSocket upgrades the request and starts a session loop.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request, component core.Component) {
	log := logging.L(req.Context())

	if r.closing.Load() {
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	ws := transport.NewWebSocketTransport(r.transportConfig, r.opts.WebSocket, r.opts.Codecs, r.logger)
	if err := ws.Upgrade(w, req); err != nil {
		log.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	socketID := uuid.NewString()
	socket := core.NewSocket(socketID, socketTransport{tr: ws})

	sess := NewSession(socketID, component, extractParams(req), extractSession(req), r.opts.InboxSize)
	sess.Socket = socket
	sess.Transport = ws
	socket.SetInfoPoster(sess.post)

	if sc, ok := component.(interface{ SetSocket(*core.Socket) }); ok {
		sc.SetSocket(socket)
	}

	if evicted := r.sessions.Add(sess); evicted != nil {
		log.Warn("session cap reached, evicting idle session", logging.String("session", evicted.ID))
		evicted.Stop(core.TerminateTimeout)
	}
	r.sockets.Add(socket)

	// The connection outlives the HTTP request, so the session context
	// starts from Background rather than req.Context().
	ctx := core.BuildContext(context.Background(), socket, sess.Session, sess.Params)
	ctx = logging.ContextWithLogger(ctx, r.logger.With(
		logging.String("session", sess.ID),
		logging.String("component", component.Name()),
	))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, sess)
	}()
}

// run is the session loop. It is the only goroutine that touches the
// component.
func (r *Router) run(ctx context.Context, sess *Session) {
	reason := core.TerminateNormal
	defer func() { r.finish(ctx, sess, reason) }()

	recv := sess.Transport.Receive()
	for {
		select {
		case msg := <-recv:
			sess.UpdateActivity()
			sess.Socket.UpdateActivity()

			switch msg.Event {
			case "heartbeat", "phx_heartbeat":
				r.sendReply(sess, msg.Ref, nil)

			case "phx_join":
				r.handleJoin(ctx, sess, msg)

			case "phx_leave":
				return

			default:
				if !sess.mounted {
					r.sendError(sess, msg.Ref, ErrNotJoined)
					continue
				}
				if err := r.dispatchEvent(ctx, sess, msg); err != nil {
					logging.L(ctx).Warn("event failed", logging.String("event", msg.Event), logging.Err(err))
					r.sendError(sess, msg.Ref, err)
					continue
				}
				r.renderAndSendDiff(ctx, sess)
			}

		case info := <-sess.inbox:
			if !sess.mounted {
				continue
			}
			if err := safeCall(func() error { return sess.Component.HandleInfo(ctx, info) }); err != nil {
				logging.L(ctx).Warn("info failed", logging.String("info", fmt.Sprintf("%T", info)), logging.Err(err))
				continue
			}
			r.renderAndSendDiff(ctx, sess)

		case reason = <-sess.stopCh:
			return

		case <-r.stopCh:
			reason = core.TerminateShutdown
			return

		case <-sess.Transport.Done():
			return
		}
	}
}

// handleJoin mounts the component with the join parameters and replies
// with the full render.
func (r *Router) handleJoin(ctx context.Context, sess *Session, msg *protocol.Message) {
	if sess.mounted {
		r.sendError(sess, msg.Ref, errors.New("already joined"))
		return
	}
	sess.joinRef = msg.Ref
	if msg.JoinRef != "" {
		sess.joinRef = msg.JoinRef
	}

	for k, v := range msg.Payload {
		if s, ok := v.(string); ok {
			sess.Params[k] = s
		}
	}

	if err := safeCall(func() error { return sess.Component.Mount(ctx, sess.Params, sess.Session) }); err != nil {
		logging.L(ctx).Error("mount failed", logging.Err(err))
		r.sendError(sess, msg.Ref, err)
		return
	}
	sess.mounted = true

	html, err := r.render(ctx, sess.Component)
	if err != nil {
		r.sendError(sess, msg.Ref, err)
		return
	}
	rememberSlots(sess, html)

	r.sendReply(sess, msg.Ref, map[string]any{
		"rendered": html,
		"session":  sess.ID,
	})
}

// dispatchEvent runs one event under the configured timeout.
func (r *Router) dispatchEvent(ctx context.Context, sess *Session, msg *protocol.Message) error {
	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeouts.ComponentEvent)
	defer cancel()

	start := time.Now()
	err := safeCall(func() error { return sess.Component.HandleEvent(ctx, msg.Event, payload) })
	if elapsed := time.Since(start); elapsed > r.opts.Timeouts.ComponentEvent {
		logging.L(ctx).Warn("slow event handler",
			logging.String("event", msg.Event),
			logging.Duration("elapsed", elapsed),
		)
	}
	return err
}

// renderAndSendDiff renders the component and pushes the changed slots.
func (r *Router) renderAndSendDiff(ctx context.Context, sess *Session) {
	html, err := r.render(ctx, sess.Component)
	if err != nil {
		logging.L(ctx).Error("render failed", logging.Err(err))
		return
	}
	if err := sess.Socket.SendDiff(buildDiff(sess, html)); err != nil {
		logging.L(ctx).Debug("diff not delivered", logging.Err(err))
	}
}

func (r *Router) render(ctx context.Context, component core.Component) (string, error) {
	var html string
	err := safeCall(func() error {
		renderer := component.Render(ctx)
		if renderer == nil {
			return ErrNilRenderer
		}
		buf := pool.GetBuffer()
		defer pool.PutBuffer(buf)
		if err := renderer.Render(ctx, buf); err != nil {
			return err
		}
		html = buf.String()
		return nil
	})
	return html, err
}

// finish terminates the component and releases the session.
func (r *Router) finish(ctx context.Context, sess *Session, reason core.TerminateReason) {
	close(sess.done)

	if err := safeCall(func() error { return sess.Component.Terminate(ctx, reason) }); err != nil {
		logging.L(ctx).Warn("terminate failed", logging.Err(err))
	}

	r.sessions.Remove(sess.ID)
	r.sockets.Remove(sess.SocketID)
	sess.Socket.Close()

	logging.L(ctx).Debug("session ended", logging.String("reason", reason.String()))
}

func (r *Router) sendReply(sess *Session, ref string, response map[string]any) {
	msg := protocol.OkReply(ref, sess.Topic, response).WithJoinRef(sess.joinRef)
	if err := sess.Transport.Send(msg); err != nil {
		r.logger.Debug("reply not delivered", logging.String("session", sess.ID), logging.Err(err))
	}
}

func (r *Router) sendError(sess *Session, ref string, err error) {
	msg := protocol.ErrorReply(ref, sess.Topic, err.Error()).WithJoinRef(sess.joinRef)
	if sendErr := sess.Transport.Send(msg); sendErr != nil {
		r.logger.Debug("error reply not delivered", logging.String("session", sess.ID), logging.Err(sendErr))
	}
}

// Run expires idle sessions until ctx is done or the router shuts down.
func (r *Router) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Timeouts.SessionCleanup)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, sess := range r.sessions.Expired(now) {
				sess.Stop(core.TerminateTimeout)
			}
		case <-r.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Shutdown stops accepting sessions, terminates the running ones and
// waits for their loops to finish.
func (r *Router) Shutdown(ctx context.Context) error {
	r.closing.Store(true)
	r.closeOnce.Do(func() { close(r.stopCh) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return r.sockets.Shutdown(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// safeCall turns a component panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrComponentPanic, p)
		}
	}()
	return fn()
}

// extractSession captures request data the component may need later.
func extractSession(req *http.Request) core.Session {
	session := core.Session{
		"remote_addr": req.RemoteAddr,
		"user_agent":  req.UserAgent(),
	}
	if id := middleware.GetReqID(req.Context()); id != "" {
		session["request_id"] = id
	}
	return session
}

// extractParams extracts query parameters.
func extractParams(req *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

// isWebSocketRequest checks if this is a WebSocket upgrade request.
func isWebSocketRequest(req *http.Request) bool {
	return strings.Contains(strings.ToLower(req.Header.Get("Upgrade")), "websocket")
}
