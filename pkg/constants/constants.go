// Package constants defines application-wide constants for timeouts and intervals.
package constants

import "time"

// Time-related constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// RedisHealthCheckInterval is how often a degraded Redis is re-checked
	RedisHealthCheckInterval = 10 * time.Second

	// SchemaSetupTimeout bounds startup DDL against CockroachDB and Cassandra
	SchemaSetupTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Moderator constants
const (
	// BreakerFailureThreshold consecutive Gemini failures open the breaker
	BreakerFailureThreshold = 3

	// BreakerCooldown is how long Gemini is skipped once the breaker opens
	BreakerCooldown = 30 * time.Second
)
