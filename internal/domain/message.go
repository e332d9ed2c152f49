package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound event types sent by clients
const (
	EventCallRequest  = "call-request"
	EventCallAccept   = "call-accept"
	EventCallReject   = "call-reject"
	EventCallJoin     = "call-join"
	EventCallHangup   = "call-hangup"
	EventWebRTCOffer  = "webrtc-offer"
	EventWebRTCAnswer = "webrtc-answer"
	EventWebRTCICE    = "webrtc-ice"
	EventToggleMedia  = "call-toggle-media"
)

// Outbound frame types delivered to connections
const (
	FrameCallRinging    = "call-ringing"
	FrameCallIncoming   = "call-incoming"
	FrameCallError      = "call-error"
	FrameCallAccepted   = "call-accepted"
	FrameRoomJoined     = "room-joined"
	FrameCallDismissed  = "call-dismissed"
	FrameCallRejected   = "call-rejected"
	FrameCallTimeout    = "call-timeout"
	FrameRoomPeerJoined = "room-peer-joined"
	FrameRoomPeerLeft   = "room-peer-left"
	FrameCallEnded      = "call-ended"
	FrameWebRTCOffer    = "webrtc-offer"
	FrameWebRTCAnswer   = "webrtc-answer"
	FrameWebRTCICE      = "webrtc-ice"
	FrameMediaToggled   = "call-media-toggled"
	FrameActiveCalls    = "active-calls"
	FrameOnlineUsers    = "online-users"
)

// Reasons carried by call-ended, call-rejected and call-dismissed frames
const (
	ReasonLastPeer          = "last-peer"
	ReasonDisconnect        = "disconnect"
	ReasonUnavailable       = "unavailable"
	ReasonAnsweredElsewhere = "answered-elsewhere"
	ReasonDeclined          = "declined"
	ReasonCancelled         = "cancelled"
)

// InboundMessage is a client event. The sender identity is never taken from
// the payload; it comes from the connection the frame arrived on.
type InboundMessage struct {
	Type         string          `json:"type"`
	CallID       uuid.UUID       `json:"call_id,omitempty"`
	TargetUserID uuid.UUID       `json:"target_user_id,omitempty"`
	CallType     CallType        `json:"call_type,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	Kind         MediaKind       `json:"kind,omitempty"`
	Enabled      bool            `json:"enabled"`
}

// Frame is anything the hub can serialize onto a connection
type Frame interface {
	FrameType() string
}

// Message is a targeted call or signaling frame
type Message struct {
	Type       string          `json:"type"`
	CallID     string          `json:"call_id,omitempty"`
	CallType   CallType        `json:"call_type,omitempty"`
	From       *PeerInfo       `json:"from,omitempty"`
	FromUserID string          `json:"from_user_id,omitempty"`
	Peers      []PeerInfo      `json:"peers,omitempty"`
	Message    string          `json:"message,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	SDP        json.RawMessage `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	Kind       MediaKind       `json:"kind,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// FrameType implements Frame
func (m *Message) FrameType() string { return m.Type }

// ActiveCallsMessage is the active-calls broadcast
type ActiveCallsMessage struct {
	Type      string        `json:"type"`
	Calls     []CallSummary `json:"calls"`
	Timestamp time.Time     `json:"timestamp"`
}

// FrameType implements Frame
func (m *ActiveCallsMessage) FrameType() string { return m.Type }

// OnlineUsersMessage is the online-users broadcast
type OnlineUsersMessage struct {
	Type      string          `json:"type"`
	Users     []PresenceEntry `json:"users"`
	Timestamp time.Time       `json:"timestamp"`
}

// FrameType implements Frame
func (m *OnlineUsersMessage) FrameType() string { return m.Type }
