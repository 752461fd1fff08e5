package router

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/transport"
)

// Session binds one component instance to one WebSocket connection.
// Every field below the mutex is owned by the session loop.
type Session struct {
	// ID is the unique session identifier
	ID string

	// SocketID is the ID of the associated socket
	SocketID string

	// Topic is the protocol topic of the session
	Topic string

	// Component is the live component instance
	Component core.Component

	// Socket is the component's handle on the connection
	Socket *core.Socket

	// Transport is the underlying connection
	Transport transport.Transport

	// Params are the URL parameters merged with the join payload
	Params core.Params

	// Session holds request data captured at upgrade time
	Session core.Session

	// CreatedAt is when the session was created
	CreatedAt time.Time

	inbox      chan any
	stopCh     chan core.TerminateReason
	done       chan struct{}
	stopOnce   sync.Once

	lastActivity time.Time
	mu           sync.RWMutex

	joinRef    string
	mounted    bool
	version    uint64
	slotHashes map[string]uint64
}

// NewSession creates a new session.
func NewSession(socketID string, comp core.Component, params core.Params, session core.Session, inboxSize int) *Session {
	if params == nil {
		params = make(core.Params)
	}
	if session == nil {
		session = make(core.Session)
	}
	if inboxSize <= 0 {
		inboxSize = 64
	}
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		SocketID:     socketID,
		Topic:        "lv:" + socketID,
		Component:    comp,
		Params:       params,
		Session:      session,
		CreatedAt:    now,
		inbox:        make(chan any, inboxSize),
		stopCh:       make(chan core.TerminateReason, 1),
		done:         make(chan struct{}),
		lastActivity: now,
	}
}

// post queues an info message for the session loop.
func (s *Session) post(msg any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- msg:
		return true
	default:
		return false
	}
}

// Stop asks the session loop to terminate with reason. Only the first
// request counts.
func (s *Session) Stop(reason core.TerminateReason) {
	s.stopOnce.Do(func() {
		s.stopCh <- reason
	})
}

// Done is closed once the session loop has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// UpdateActivity records client activity.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SessionManager tracks all active live sessions.
type SessionManager struct {
	sessions    map[string]*Session
	bySocket    map[string]*Session
	maxSessions int
	sessionTTL  time.Duration
	mu          sync.RWMutex
}

// SessionManagerConfig configures the session manager.
type SessionManagerConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
}

// DefaultSessionManagerConfig returns the default configuration.
func DefaultSessionManagerConfig() *SessionManagerConfig {
	return &SessionManagerConfig{
		MaxSessions: 10000,
		SessionTTL:  30 * time.Minute,
	}
}

// NewSessionManager creates a session manager.
func NewSessionManager(config *SessionManagerConfig) *SessionManager {
	if config == nil {
		config = DefaultSessionManagerConfig()
	}
	return &SessionManager{
		sessions:    make(map[string]*Session),
		bySocket:    make(map[string]*Session),
		maxSessions: config.MaxSessions,
		sessionTTL:  config.SessionTTL,
	}
}

// Add registers a session. When the cap is reached the least recently
// active session is unregistered and returned so the caller can stop it.
func (m *SessionManager) Add(s *Session) (evicted *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		evicted = m.evictOldestLocked()
	}
	m.sessions[s.ID] = s
	m.bySocket[s.SocketID] = s
	return evicted
}

// Get returns a session by ID.
func (m *SessionManager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// GetBySocket returns a session by socket ID.
func (m *SessionManager) GetBySocket(socketID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySocket[socketID]
	return s, ok
}

// Remove unregisters a session.
func (m *SessionManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		delete(m.bySocket, s.SocketID)
		delete(m.sessions, sessionID)
	}
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of all sessions.
func (m *SessionManager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

// Expired unregisters and returns sessions idle for longer than the TTL.
func (m *SessionManager) Expired(now time.Time) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.sessionTTL {
			delete(m.bySocket, s.SocketID)
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	return expired
}

// evictOldestLocked must be called with the lock held.
func (m *SessionManager) evictOldestLocked() *Session {
	var oldest *Session
	for _, s := range m.sessions {
		if oldest == nil || s.LastActivity().Before(oldest.LastActivity()) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.bySocket, oldest.SocketID)
		delete(m.sessions, oldest.ID)
	}
	return oldest
}
