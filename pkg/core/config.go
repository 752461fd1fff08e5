package core

import (
	"time"
)

// TimeoutConfig configures timeouts for live sessions.
type TimeoutConfig struct {
	// ComponentEvent bounds HandleEvent and HandleInfo calls.
	ComponentEvent time.Duration

	// WebSocketRead is the read timeout for WebSocket connections.
	WebSocketRead time.Duration

	// WebSocketWrite is the write timeout for WebSocket connections.
	WebSocketWrite time.Duration

	// PingInterval is how often the server pings idle connections.
	PingInterval time.Duration

	// SessionCleanup is the interval for cleaning up inactive sessions.
	SessionCleanup time.Duration

	// SessionTTL is how long a session may stay idle.
	SessionTTL time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ComponentEvent: 3 * time.Second,
		WebSocketRead:  60 * time.Second,
		WebSocketWrite: 10 * time.Second,
		PingInterval:   30 * time.Second,
		SessionCleanup: 5 * time.Minute,
		SessionTTL:     30 * time.Minute,
	}
}

// Validate validates the configuration.
func (c TimeoutConfig) Validate() error {
	if c.ComponentEvent <= 0 {
		return configError("ComponentEvent timeout must be positive")
	}
	if c.WebSocketRead <= c.PingInterval {
		return ErrReadBelowPing
	}
	if c.WebSocketWrite <= 0 {
		return configError("WebSocketWrite timeout must be positive")
	}
	return nil
}

// Configuration errors.
var (
	ErrReadBelowPing = configError("WebSocketRead must exceed PingInterval")
)

type configError string

func (e configError) Error() string { return string(e) }
