package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is fixed when the call is requested
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus of an in-flight session. There is no ended status: ending a call deletes it.
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
)

// MediaKind identifies the track a participant toggled
type MediaKind string

const (
	MediaKindAudio  MediaKind = "audio"
	MediaKindVideo  MediaKind = "video"
	MediaKindScreen MediaKind = "screen"
)

// Valid reports whether k is a known media kind
func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo || k == MediaKindScreen
}

// Participant is a user bound into a call through one specific connection
type Participant struct {
	UserID      uuid.UUID `json:"user_id"`
	ConnID      ConnID    `json:"-"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
}

// Peer returns the public view of the participant
func (p Participant) Peer() PeerInfo {
	return PeerInfo{UserID: p.UserID, DisplayName: p.DisplayName, Avatar: p.Avatar}
}

// CallSession is one call from first ring to termination.
// Participants keeps join order; CallerID names the original caller explicitly.
type CallSession struct {
	CallID          uuid.UUID
	Status          CallStatus
	CallType        CallType
	CallerID        uuid.UUID
	Participants    []Participant
	PendingCalleeID uuid.UUID
	StartedAt       time.Time

	// Seq is unique per session over the process lifetime; ring timers
	// re-check it before acting.
	Seq uint64
}

// Participant returns the participant entry for userID
func (s *CallSession) Participant(userID uuid.UUID) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether userID is bound into the session
func (s *CallSession) HasParticipant(userID uuid.UUID) bool {
	_, ok := s.Participant(userID)
	return ok
}

// Caller returns the original caller's participant entry
func (s *CallSession) Caller() (Participant, bool) {
	return s.Participant(s.CallerID)
}

// Peers lists every participant except userID, in join order
func (s *CallSession) Peers(except uuid.UUID) []PeerInfo {
	peers := make([]PeerInfo, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.UserID != except {
			peers = append(peers, p.Peer())
		}
	}
	return peers
}

// Summary is the broadcast view of the session
func (s *CallSession) Summary() CallSummary {
	return CallSummary{
		CallID:       s.CallID,
		CallType:     s.CallType,
		Status:       s.Status,
		CallerID:     s.CallerID,
		Participants: s.Peers(uuid.Nil),
		StartedAt:    s.StartedAt,
	}
}

// CallSummary is one entry of the active-calls broadcast
type CallSummary struct {
	CallID       uuid.UUID  `json:"call_id"`
	CallType     CallType   `json:"call_type"`
	Status       CallStatus `json:"status"`
	CallerID     uuid.UUID  `json:"caller_id"`
	Participants []PeerInfo `json:"participants"`
	StartedAt    time.Time  `json:"started_at"`
}
