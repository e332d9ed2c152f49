// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// RedisHealthCheckInterval is how often the Redis connection is probed
	RedisHealthCheckInterval = 10 * time.Second

	// AccessTokenDuration is the lifetime assumed for tokens issued by this service's JWT manager
	AccessTokenDuration = 15 * time.Minute
)

// Database connection retry
const (
	DBConnectMaxRetries = 5
	DBConnectBaseDelay  = 1 * time.Second
	DBConnectMaxDelay   = 30 * time.Second
)

// Call-related constants
const (
	// RingTimeout is how long a call may ring before it is cancelled
	RingTimeout = 30 * time.Second

	// ProfileRefreshTimeout bounds a single profile lookup during a presence broadcast
	ProfileRefreshTimeout = 2 * time.Second

	// ProfileRefreshConcurrency caps parallel profile lookups per broadcast
	ProfileRefreshConcurrency = 8
)

// Presence constants
const (
	// PresenceTTL is how long a mirrored presence key survives without a refresh
	PresenceTTL = 5 * time.Minute

	// ProfileCacheTTL is how long a looked-up profile is reused
	ProfileCacheTTL = time.Minute

	// ProfileCacheSize is the maximum number of cached profiles
	ProfileCacheSize = 10000

	// ProfileCacheCleanupInterval is how often expired profiles are swept
	ProfileCacheCleanupInterval = 5 * time.Minute

	// ProfileBreakerThreshold consecutive store failures stop profile lookups
	ProfileBreakerThreshold = 5

	// ProfileBreakerCooldown is how long profile lookups stay suspended
	ProfileBreakerCooldown = 30 * time.Second
)

// WebSocket limits
const (
	// DefaultMaxConnections is the default cap on concurrent signaling sockets
	DefaultMaxConnections = 1000

	// DefaultSendBuffer is the per-connection outbound queue length
	DefaultSendBuffer = 256

	// ConnectRateLimit caps signaling connection attempts per user per ConnectRateWindow
	ConnectRateLimit  = 30
	ConnectRateWindow = time.Minute

	// MaxInboundMessageSize caps a single inbound frame (SDP offers can be large)
	MaxInboundMessageSize = 64 * 1024
)

// Validation constants
const (
	// MinJWTSecretLength is the minimum accepted JWT secret length in production
	MinJWTSecretLength = 32

	// TokenAudience is the audience every accepted access token must carry
	TokenAudience = "callhub-api"
)
