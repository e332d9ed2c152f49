package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signaling metrics for call coordination, relay and fan-out
var (
	// Call state machine metrics
	SignalingCallEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_call_events_total",
		Help: "Total number of call events handled, by outcome",
	}, []string{"event", "outcome"}) // outcome: "applied", "ignored", "rejected"

	SignalingCallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_calls_active",
		Help: "Current number of active call sessions",
	})

	SignalingCallsRinging = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_calls_ringing",
		Help: "Current number of ringing call sessions",
	})

	SignalingRingTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_ring_timeouts_total",
		Help: "Total number of calls cancelled by the ring timeout",
	})

	// Relay metrics
	SignalingRelayMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relay_messages_total",
		Help: "Total number of WebRTC negotiation payloads relayed",
	}, []string{"kind", "outcome"})

	// WebSocket lifecycle metrics
	SignalingWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_websocket_connections",
		Help: "Current number of signaling WebSocket connections",
	})

	SignalingWebSocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_websocket_messages_total",
		Help: "Total number of signaling WebSocket frames",
	}, []string{"direction"}) // "in" for received, "out" for sent

	SignalingClientMessageDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_client_message_dropped_total",
		Help: "Total number of frames dropped before reaching a client",
	}, []string{"reason"})

	// Presence metrics
	SignalingProfileRefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_profile_refresh_failures_total",
		Help: "Total number of profile refreshes that fell back to cached identity",
	})

	SignalingBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_broadcasts_total",
		Help: "Total number of fan-out broadcasts",
	}, []string{"kind"})

	SignalingPresenceMirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_presence_mirror_errors_total",
		Help: "Total number of failed presence writes to Redis",
	})

	// Storage metrics
	RedisDegradedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})

	RedisHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks",
	}, []string{"result"})

	ProfileCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_profile_cache_lookups_total",
		Help: "Total number of profile cache lookups",
	}, []string{"result"}) // "hit" or "miss"

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "State of a circuit breaker (0=closed, 1=half_open, 2=open)",
	}, []string{"name"})

	CircuitBreakerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Total number of calls through a circuit breaker",
	}, []string{"name", "result"}) // "success", "failure" or "rejected"

	CircuitBreakerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_errors_total",
		Help: "Total number of counted failures by error class",
	}, []string{"name", "error_type"})

	// Rate limiting
	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests refused by a rate limiter",
	}, []string{"scope"})
)
