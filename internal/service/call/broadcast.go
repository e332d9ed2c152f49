package call

import (
	"context"
	"time"

	"go.uber.org/zap"

	"callhub-backend/internal/domain"
	"callhub-backend/internal/service/presence"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

// CallLister reads the current active calls
type CallLister interface {
	ActiveCalls() []domain.CallSummary
}

// PresenceMirror publishes the online list to shared storage for other services
type PresenceMirror interface {
	SyncOnline(ctx context.Context, entries []domain.PresenceEntry) error
}

// Broadcaster fans the active-calls and online-users lists out to every
// connection. Change notifications are coalesced: a burst of transitions
// yields one broadcast carrying the latest state.
type Broadcaster struct {
	registry   *presence.Registry
	aggregator *presence.Aggregator
	calls      CallLister
	sender     Sender
	mirror     PresenceMirror

	callsDirty    chan struct{}
	presenceDirty chan struct{}
	now           func() time.Time
}

// NewBroadcaster creates a broadcaster. mirror may be nil.
func NewBroadcaster(registry *presence.Registry, aggregator *presence.Aggregator, calls CallLister, sender Sender, mirror PresenceMirror) *Broadcaster {
	return &Broadcaster{
		registry:      registry,
		aggregator:    aggregator,
		calls:         calls,
		sender:        sender,
		mirror:        mirror,
		callsDirty:    make(chan struct{}, 1),
		presenceDirty: make(chan struct{}, 1),
		now:           time.Now,
	}
}

// CallsChanged implements FanOut
func (b *Broadcaster) CallsChanged() {
	select {
	case b.callsDirty <- struct{}{}:
	default:
	}
}

// PresenceChanged implements FanOut
func (b *Broadcaster) PresenceChanged() {
	select {
	case b.presenceDirty <- struct{}{}:
	default:
	}
}

// Run publishes pending changes until ctx is done
func (b *Broadcaster) Run(ctx context.Context) {
	logger.Info("Broadcaster started")
	defer logger.Info("Broadcaster stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.callsDirty:
			b.PublishActiveCalls(ctx)
		case <-b.presenceDirty:
			b.PublishOnlineUsers(ctx)
		}
	}
}

// PublishActiveCalls sends the active-calls list to every connection
func (b *Broadcaster) PublishActiveCalls(ctx context.Context) {
	msg := b.activeCalls()
	for _, conn := range b.registry.All() {
		b.sender.Send(conn, msg)
	}
	metrics.SignalingBroadcastsTotal.WithLabelValues(domain.FrameActiveCalls).Inc()
}

// PublishOnlineUsers refreshes presence, sends it to every connection and
// mirrors it to shared storage. The profile refresh runs without any
// coordinator lock held.
func (b *Broadcaster) PublishOnlineUsers(ctx context.Context) {
	msg := b.onlineUsers(ctx)
	for _, conn := range b.registry.All() {
		b.sender.Send(conn, msg)
	}
	metrics.SignalingBroadcastsTotal.WithLabelValues(domain.FrameOnlineUsers).Inc()

	if b.mirror != nil {
		if err := b.mirror.SyncOnline(ctx, msg.Users); err != nil {
			metrics.SignalingPresenceMirrorErrorsTotal.Inc()
			logger.Warn("Failed to mirror online users", zap.Error(err))
		}
	}
}

// SendSnapshot sends both lists to a single connection, typically right after it connects
func (b *Broadcaster) SendSnapshot(ctx context.Context, connID domain.ConnID) {
	b.sender.Send(connID, b.onlineUsers(ctx))
	b.sender.Send(connID, b.activeCalls())
}

func (b *Broadcaster) activeCalls() *domain.ActiveCallsMessage {
	calls := b.calls.ActiveCalls()
	if calls == nil {
		calls = []domain.CallSummary{}
	}
	return &domain.ActiveCallsMessage{
		Type:      domain.FrameActiveCalls,
		Calls:     calls,
		Timestamp: b.now(),
	}
}

func (b *Broadcaster) onlineUsers(ctx context.Context) *domain.OnlineUsersMessage {
	return &domain.OnlineUsersMessage{
		Type:      domain.FrameOnlineUsers,
		Users:     b.aggregator.DistinctOnlineUsers(ctx),
		Timestamp: b.now(),
	}
}
