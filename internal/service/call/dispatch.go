package call

import (
	"callhub-backend/internal/domain"
	apperrors "callhub-backend/pkg/errors"
)

// HandleMessage routes one decoded client event to its transition
func (c *Coordinator) HandleMessage(connID domain.ConnID, msg *domain.InboundMessage) Result {
	switch msg.Type {
	case domain.EventCallRequest:
		return c.RequestCall(connID, msg.TargetUserID, msg.CallType)
	case domain.EventCallAccept:
		return c.Accept(connID, msg.CallID)
	case domain.EventCallReject:
		return c.Reject(connID, msg.CallID)
	case domain.EventCallJoin:
		return c.Join(connID, msg.CallID)
	case domain.EventCallHangup:
		return c.Hangup(connID, msg.CallID)
	case domain.EventToggleMedia:
		return c.ToggleMedia(connID, msg.CallID, msg.Kind, msg.Enabled)
	case domain.EventWebRTCOffer:
		return c.Relay(connID, msg.CallID, msg.TargetUserID, PayloadOffer, msg.SDP)
	case domain.EventWebRTCAnswer:
		return c.Relay(connID, msg.CallID, msg.TargetUserID, PayloadAnswer, msg.SDP)
	case domain.EventWebRTCICE:
		return c.Relay(connID, msg.CallID, msg.TargetUserID, PayloadICE, msg.Candidate)
	default:
		return rejected(msg.CallID, apperrors.InvalidInputError("Unknown message type"))
	}
}
