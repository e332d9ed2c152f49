package call

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callhub-backend/internal/domain"
	"callhub-backend/internal/service/presence"
	"callhub-backend/pkg/constants"
	apperrors "callhub-backend/pkg/errors"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

// Sender delivers a frame to one connection. Send must not block: it is
// called while the coordinator lock is held. It reports false when the frame
// was dropped (unknown connection or full queue).
type Sender interface {
	Send(connID domain.ConnID, frame domain.Frame) bool
}

// FanOut is told when the broadcast lists may have changed
type FanOut interface {
	CallsChanged()
	PresenceChanged()
}

type stopper interface {
	Stop() bool
}

type noopFanOut struct{}

func (noopFanOut) CallsChanged()    {}
func (noopFanOut) PresenceChanged() {}

// Coordinator owns the connection registry and the call session store and
// applies every inbound event to them one at a time.
type Coordinator struct {
	mu       sync.Mutex
	registry *presence.Registry
	store    *Store
	sender   Sender
	fanout   FanOut

	ringTimeout time.Duration
	afterFunc   func(d time.Duration, f func()) stopper
	now         func() time.Time
	timers      map[uuid.UUID]stopper
}

// NewCoordinator creates a coordinator over registry delivering through sender
func NewCoordinator(registry *presence.Registry, sender Sender, ringTimeout time.Duration) *Coordinator {
	if ringTimeout <= 0 {
		ringTimeout = constants.RingTimeout
	}
	return &Coordinator{
		registry:    registry,
		store:       NewStore(),
		sender:      sender,
		fanout:      noopFanOut{},
		ringTimeout: ringTimeout,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		timers: make(map[uuid.UUID]stopper),
	}
}

// SetFanOut installs the broadcaster notified after list-changing transitions
func (c *Coordinator) SetFanOut(f FanOut) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fanout = f
}

// Registry returns the connection registry the coordinator mutates
func (c *Coordinator) Registry() *presence.Registry {
	return c.registry
}

// Connect binds a freshly authenticated connection to its identity
func (c *Coordinator) Connect(connID domain.ConnID, identity domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Register(connID, identity)
	c.fanout.PresenceChanged()
}

// ActiveCalls returns summaries of every active session
func (c *Coordinator) ActiveCalls() []domain.CallSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Summaries()
}

// Session returns a copy of the session for callID
func (c *Coordinator) Session(callID uuid.UUID) (domain.CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.Get(callID)
	if !ok {
		return domain.CallSession{}, false
	}
	cp := *s
	cp.Participants = append([]domain.Participant(nil), s.Participants...)
	return cp, true
}

// CallOf returns the ID of the call userID participates in
func (c *Coordinator) CallOf(userID uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.CallOf(userID)
	if !ok {
		return uuid.Nil, false
	}
	return s.CallID, true
}

// Close stops every pending ring timer
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for callID, t := range c.timers {
		t.Stop()
		delete(c.timers, callID)
	}
}

// RequestCall rings targetID on behalf of the user behind connID
func (c *Coordinator) RequestCall(connID domain.ConnID, targetID uuid.UUID, callType domain.CallType) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	caller, ok := c.registry.Lookup(connID)
	if !ok {
		return c.finish(domain.EventCallRequest, connID, ignored(uuid.Nil, "unknown connection"))
	}
	if !callType.Valid() {
		return c.reject(domain.EventCallRequest, connID, uuid.Nil, apperrors.InvalidInputError("Invalid call type"))
	}
	if targetID == caller.UserID {
		return c.reject(domain.EventCallRequest, connID, uuid.Nil, apperrors.InvalidTargetError("You cannot call yourself"))
	}
	targetConns := c.registry.ConnectionsFor(targetID)
	if len(targetConns) == 0 {
		return c.reject(domain.EventCallRequest, connID, uuid.Nil, apperrors.InvalidTargetError("User is offline"))
	}
	if _, busy := c.store.CallOf(caller.UserID); busy {
		return c.reject(domain.EventCallRequest, connID, uuid.Nil, apperrors.StateConflictError("You are already in a call"))
	}

	session := c.store.create(participant(connID, caller), targetID, callType, c.now())
	callID := session.CallID.String()

	c.sender.Send(connID, &domain.Message{
		Type:      domain.FrameCallRinging,
		CallID:    callID,
		CallType:  callType,
		Timestamp: c.now(),
	})
	from := caller.Peer()
	for _, conn := range targetConns {
		c.sender.Send(conn, &domain.Message{
			Type:      domain.FrameCallIncoming,
			CallID:    callID,
			CallType:  callType,
			From:      &from,
			Timestamp: c.now(),
		})
	}

	c.scheduleTimeout(session)

	logger.Info("Call ringing",
		zap.String("call_id", callID),
		zap.String("caller_id", caller.UserID.String()),
		zap.String("callee_id", targetID.String()),
		zap.String("call_type", string(callType)))

	return c.finish(domain.EventCallRequest, connID, applied(session.CallID))
}

// Accept answers a ringing call from one of the callee's connections
func (c *Coordinator) Accept(connID domain.ConnID, callID uuid.UUID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, callee, res, ok := c.ringingForCallee(domain.EventCallAccept, connID, callID)
	if !ok {
		return res
	}
	if _, busy := c.store.CallOf(callee.UserID); busy {
		return c.reject(domain.EventCallAccept, connID, callID, apperrors.StateConflictError("You are already in a call"))
	}

	caller, _ := session.Caller()
	c.stopTimer(callID)
	c.store.activate(session, participant(connID, callee))

	from := callee.Peer()
	c.sender.Send(caller.ConnID, &domain.Message{
		Type:      domain.FrameCallAccepted,
		CallID:    callID.String(),
		CallType:  session.CallType,
		From:      &from,
		Timestamp: c.now(),
	})
	c.sender.Send(connID, &domain.Message{
		Type:      domain.FrameRoomJoined,
		CallID:    callID.String(),
		CallType:  session.CallType,
		Peers:     session.Peers(callee.UserID),
		Timestamp: c.now(),
	})
	for _, conn := range c.registry.ConnectionsFor(callee.UserID) {
		if conn == connID {
			continue
		}
		c.sender.Send(conn, &domain.Message{
			Type:      domain.FrameCallDismissed,
			CallID:    callID.String(),
			Reason:    domain.ReasonAnsweredElsewhere,
			Timestamp: c.now(),
		})
	}

	c.fanout.CallsChanged()
	return c.finish(domain.EventCallAccept, connID, applied(callID))
}

// Reject declines a ringing call from one of the callee's connections
func (c *Coordinator) Reject(connID domain.ConnID, callID uuid.UUID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, callee, res, ok := c.ringingForCallee(domain.EventCallReject, connID, callID)
	if !ok {
		return res
	}

	caller, _ := session.Caller()
	c.stopTimer(callID)
	c.store.delete(session)

	c.sender.Send(caller.ConnID, &domain.Message{
		Type:      domain.FrameCallRejected,
		CallID:    callID.String(),
		Reason:    domain.ReasonDeclined,
		Timestamp: c.now(),
	})
	c.notifyUser(callee.UserID, &domain.Message{
		Type:      domain.FrameCallDismissed,
		CallID:    callID.String(),
		Reason:    domain.ReasonDeclined,
		Timestamp: c.now(),
	})

	c.fanout.CallsChanged()
	return c.finish(domain.EventCallReject, connID, applied(callID))
}

// ringingForCallee validates that connID belongs to the designated callee of a ringing call
func (c *Coordinator) ringingForCallee(event string, connID domain.ConnID, callID uuid.UUID) (*domain.CallSession, domain.Identity, Result, bool) {
	callee, ok := c.registry.Lookup(connID)
	if !ok {
		return nil, callee, c.finish(event, connID, ignored(callID, "unknown connection")), false
	}
	session, ok := c.store.Get(callID)
	if !ok {
		return nil, callee, c.finish(event, connID, ignored(callID, "call not found")), false
	}
	if session.Status != domain.CallStatusRinging {
		return nil, callee, c.finish(event, connID, ignored(callID, "call not ringing")), false
	}
	if session.PendingCalleeID != callee.UserID {
		return nil, callee, c.finish(event, connID, ignored(callID, "not the callee")), false
	}
	return session, callee, Result{}, true
}

// Join adds the user behind connID to an active call as a further mesh peer
func (c *Coordinator) Join(connID domain.ConnID, callID uuid.UUID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	joiner, ok := c.registry.Lookup(connID)
	if !ok {
		return c.finish(domain.EventCallJoin, connID, ignored(callID, "unknown connection"))
	}
	session, ok := c.store.Get(callID)
	if !ok {
		return c.reject(domain.EventCallJoin, connID, callID, apperrors.StaleReferenceError())
	}
	if session.Status != domain.CallStatusActive {
		return c.reject(domain.EventCallJoin, connID, callID, apperrors.StateConflictError("Call is not active"))
	}
	if session.HasParticipant(joiner.UserID) {
		return c.reject(domain.EventCallJoin, connID, callID, apperrors.StateConflictError("You are already in this call"))
	}
	if _, busy := c.store.CallOf(joiner.UserID); busy {
		return c.reject(domain.EventCallJoin, connID, callID, apperrors.StateConflictError("You are already in a call"))
	}

	existing := session.Peers(joiner.UserID)
	from := joiner.Peer()
	for _, p := range session.Participants {
		c.sender.Send(p.ConnID, &domain.Message{
			Type:      domain.FrameRoomPeerJoined,
			CallID:    callID.String(),
			From:      &from,
			Timestamp: c.now(),
		})
	}
	c.store.add(session, participant(connID, joiner))
	c.sender.Send(connID, &domain.Message{
		Type:      domain.FrameRoomJoined,
		CallID:    callID.String(),
		CallType:  session.CallType,
		Peers:     existing,
		Timestamp: c.now(),
	})

	c.fanout.CallsChanged()
	return c.finish(domain.EventCallJoin, connID, applied(callID))
}

// Hangup cancels a ringing call (caller only) or leaves an active one
func (c *Coordinator) Hangup(connID domain.ConnID, callID uuid.UUID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.registry.Lookup(connID)
	if !ok {
		return c.finish(domain.EventCallHangup, connID, ignored(callID, "unknown connection"))
	}
	session, ok := c.store.Get(callID)
	if !ok {
		return c.finish(domain.EventCallHangup, connID, ignored(callID, "call not found"))
	}

	switch {
	case session.Status == domain.CallStatusRinging && session.CallerID == user.UserID:
		c.cancelRinging(session)
	case session.Status == domain.CallStatusActive && session.HasParticipant(user.UserID):
		c.leave(session, user.UserID, domain.ReasonLastPeer)
	default:
		return c.finish(domain.EventCallHangup, connID, ignored(callID, "not a participant"))
	}

	c.fanout.CallsChanged()
	return c.finish(domain.EventCallHangup, connID, applied(callID))
}

// ToggleMedia tells the other participants that a track was muted or unmuted
func (c *Coordinator) ToggleMedia(connID domain.ConnID, callID uuid.UUID, kind domain.MediaKind, enabled bool) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.registry.Lookup(connID)
	if !ok {
		return c.finish(domain.EventToggleMedia, connID, ignored(callID, "unknown connection"))
	}
	if !kind.Valid() {
		return c.finish(domain.EventToggleMedia, connID, ignored(callID, "unknown media kind"))
	}
	session, ok := c.store.Get(callID)
	if !ok || session.Status != domain.CallStatusActive || !session.HasParticipant(user.UserID) {
		return c.finish(domain.EventToggleMedia, connID, ignored(callID, "not in an active call"))
	}

	for _, p := range session.Participants {
		if p.UserID == user.UserID {
			continue
		}
		c.sender.Send(p.ConnID, &domain.Message{
			Type:       domain.FrameMediaToggled,
			CallID:     callID.String(),
			FromUserID: user.UserID.String(),
			Kind:       kind,
			Enabled:    &enabled,
			Timestamp:  c.now(),
		})
	}
	return c.finish(domain.EventToggleMedia, connID, applied(callID))
}

// Disconnect tears down whatever connID was holding and unregisters it.
// Only sessions bound to this exact connection are affected; another tab of
// the same user keeps its call.
func (c *Coordinator) Disconnect(connID domain.ConnID) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.registry.Lookup(connID)
	if !ok {
		return ignored(uuid.Nil, "unknown connection")
	}

	var callID uuid.UUID
	callsChanged := false

	if session, ok := c.store.CallOf(user.UserID); ok {
		p, _ := session.Participant(user.UserID)
		if p.ConnID == connID {
			callID = session.CallID
			switch session.Status {
			case domain.CallStatusRinging:
				c.cancelRinging(session)
			case domain.CallStatusActive:
				c.leave(session, user.UserID, domain.ReasonDisconnect)
			}
			callsChanged = true
		}
	}

	c.registry.Unregister(connID)

	// A callee whose last tab closed can no longer answer
	if !c.registry.IsOnline(user.UserID) {
		for _, session := range c.store.RingingFor(user.UserID) {
			caller, _ := session.Caller()
			c.stopTimer(session.CallID)
			c.store.delete(session)
			c.sender.Send(caller.ConnID, &domain.Message{
				Type:      domain.FrameCallRejected,
				CallID:    session.CallID.String(),
				Reason:    domain.ReasonUnavailable,
				Timestamp: c.now(),
			})
			callsChanged = true
		}
	}

	logger.Debug("Connection disconnected",
		zap.String("conn_id", string(connID)),
		zap.String("user_id", user.UserID.String()),
		zap.Bool("calls_changed", callsChanged))

	c.fanout.PresenceChanged()
	if callsChanged {
		c.fanout.CallsChanged()
	}
	return applied(callID)
}

// cancelRinging deletes a ringing session and dismisses every callee tab
func (c *Coordinator) cancelRinging(session *domain.CallSession) {
	c.stopTimer(session.CallID)
	c.store.delete(session)
	c.notifyUser(session.PendingCalleeID, &domain.Message{
		Type:      domain.FrameCallDismissed,
		CallID:    session.CallID.String(),
		Reason:    domain.ReasonCancelled,
		Timestamp: c.now(),
	})
}

// leave removes userID from an active session and ends the call when at most
// one participant remains
func (c *Coordinator) leave(session *domain.CallSession, userID uuid.UUID, reason string) {
	leaver, ok := c.store.remove(session, userID)
	if !ok {
		return
	}
	callID := session.CallID.String()

	from := leaver.Peer()
	for _, p := range session.Participants {
		c.sender.Send(p.ConnID, &domain.Message{
			Type:      domain.FrameRoomPeerLeft,
			CallID:    callID,
			From:      &from,
			Timestamp: c.now(),
		})
	}

	if len(session.Participants) > 1 {
		return
	}
	for _, p := range session.Participants {
		c.sender.Send(p.ConnID, &domain.Message{
			Type:      domain.FrameCallEnded,
			CallID:    callID,
			Reason:    reason,
			Timestamp: c.now(),
		})
	}
	c.store.delete(session)

	logger.Info("Call ended",
		zap.String("call_id", callID),
		zap.String("reason", reason),
		zap.Duration("duration", c.now().Sub(session.StartedAt)))
}

// scheduleTimeout arms the one-shot ring timer for a new session. The timer
// carries the session sequence so a late firing can never touch a newer state.
func (c *Coordinator) scheduleTimeout(session *domain.CallSession) {
	callID, seq := session.CallID, session.Seq
	c.timers[callID] = c.afterFunc(c.ringTimeout, func() {
		c.expire(callID, seq)
	})
}

func (c *Coordinator) stopTimer(callID uuid.UUID) {
	if t, ok := c.timers[callID]; ok {
		t.Stop()
		delete(c.timers, callID)
	}
}

// expire cancels a session that is still ringing when its timer fires
func (c *Coordinator) expire(callID uuid.UUID, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.store.Get(callID)
	if !ok || session.Seq != seq || session.Status != domain.CallStatusRinging {
		return
	}
	delete(c.timers, callID)

	caller, _ := session.Caller()
	c.store.delete(session)

	msg := func() *domain.Message {
		return &domain.Message{
			Type:      domain.FrameCallTimeout,
			CallID:    callID.String(),
			Timestamp: c.now(),
		}
	}
	c.sender.Send(caller.ConnID, msg())
	c.notifyUser(session.PendingCalleeID, msg())

	metrics.SignalingRingTimeoutsTotal.Inc()
	logger.Info("Call ring timeout",
		zap.String("call_id", callID.String()),
		zap.String("caller_id", session.CallerID.String()),
		zap.String("callee_id", session.PendingCalleeID.String()))
}

// notifyUser sends msg to every connection of userID
func (c *Coordinator) notifyUser(userID uuid.UUID, msg *domain.Message) {
	for _, conn := range c.registry.ConnectionsFor(userID) {
		cp := *msg
		c.sender.Send(conn, &cp)
	}
}

// reject answers connID with a call-error frame
func (c *Coordinator) reject(event string, connID domain.ConnID, callID uuid.UUID, err *apperrors.AppError) Result {
	msg := &domain.Message{
		Type:      domain.FrameCallError,
		Message:   err.Message,
		Timestamp: c.now(),
	}
	if callID != uuid.Nil {
		msg.CallID = callID.String()
	}
	c.sender.Send(connID, msg)
	return c.finish(event, connID, rejected(callID, err))
}

// finish records the outcome of an event
func (c *Coordinator) finish(event string, connID domain.ConnID, res Result) Result {
	metrics.SignalingCallEventsTotal.WithLabelValues(event, res.Outcome.String()).Inc()
	if res.Outcome != Applied {
		fields := []zap.Field{
			zap.String("event", event),
			zap.String("conn_id", string(connID)),
			zap.String("outcome", res.Outcome.String()),
		}
		if res.CallID != uuid.Nil {
			fields = append(fields, zap.String("call_id", res.CallID.String()))
		}
		if res.Reason != "" {
			fields = append(fields, zap.String("reason", res.Reason))
		}
		if res.Err != nil {
			fields = append(fields, zap.String("code", string(res.Err.Code)))
		}
		logger.Debug("Call event not applied", fields...)
	}
	return res
}

func participant(connID domain.ConnID, identity domain.Identity) domain.Participant {
	return domain.Participant{
		UserID:      identity.UserID,
		ConnID:      connID,
		DisplayName: identity.DisplayName,
		Avatar:      identity.Avatar,
	}
}
