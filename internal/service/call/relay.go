package call

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callhub-backend/internal/domain"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

// PayloadKind is the negotiation message being relayed
type PayloadKind string

const (
	PayloadOffer  PayloadKind = "offer"
	PayloadAnswer PayloadKind = "answer"
	PayloadICE    PayloadKind = "ice-candidate"
)

func (k PayloadKind) frameType() (string, bool) {
	switch k {
	case PayloadOffer:
		return domain.FrameWebRTCOffer, true
	case PayloadAnswer:
		return domain.FrameWebRTCAnswer, true
	case PayloadICE:
		return domain.FrameWebRTCICE, true
	default:
		return "", false
	}
}

// Relay forwards an opaque offer, answer or ICE candidate from the user behind
// connID to targetID's bound connection. Any validity failure drops the
// payload without telling the sender.
func (c *Coordinator) Relay(connID domain.ConnID, callID, targetID uuid.UUID, kind PayloadKind, payload json.RawMessage) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	frameType, ok := kind.frameType()
	if !ok {
		return c.dropRelay(kind, connID, ignored(callID, "unknown payload kind"))
	}
	from, ok := c.registry.Lookup(connID)
	if !ok {
		return c.dropRelay(kind, connID, ignored(callID, "unknown connection"))
	}
	session, ok := c.store.Get(callID)
	if !ok {
		return c.dropRelay(kind, connID, ignored(callID, "call not found"))
	}
	if session.Status != domain.CallStatusActive || !session.HasParticipant(from.UserID) {
		return c.dropRelay(kind, connID, ignored(callID, "sender not in active call"))
	}
	if targetID == from.UserID {
		return c.dropRelay(kind, connID, ignored(callID, "target is sender"))
	}
	target, ok := session.Participant(targetID)
	if !ok {
		return c.dropRelay(kind, connID, ignored(callID, "target not in call"))
	}

	msg := &domain.Message{
		Type:       frameType,
		CallID:     callID.String(),
		FromUserID: from.UserID.String(),
		Timestamp:  c.now(),
	}
	if kind == PayloadICE {
		msg.Candidate = payload
	} else {
		msg.SDP = payload
	}

	if !c.sender.Send(target.ConnID, msg) {
		return c.dropRelay(kind, connID, ignored(callID, "target queue unavailable"))
	}
	metrics.SignalingRelayMessagesTotal.WithLabelValues(string(kind), "delivered").Inc()
	return applied(callID)
}

func (c *Coordinator) dropRelay(kind PayloadKind, connID domain.ConnID, res Result) Result {
	metrics.SignalingRelayMessagesTotal.WithLabelValues(string(kind), "dropped").Inc()
	logger.Debug("Signaling payload dropped",
		zap.String("kind", string(kind)),
		zap.String("conn_id", string(connID)),
		zap.String("call_id", res.CallID.String()),
		zap.String("reason", res.Reason))
	return res
}
