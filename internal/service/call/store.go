package call

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"callhub-backend/internal/domain"
	"callhub-backend/pkg/metrics"
)

// Store holds every in-flight call session keyed by call ID, plus an index
// from participant to call that enforces single call membership.
// Store is not safe for concurrent use; the Coordinator serializes access.
type Store struct {
	sessions map[uuid.UUID]*domain.CallSession
	byUser   map[uuid.UUID]uuid.UUID
	seq      uint64
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*domain.CallSession),
		byUser:   make(map[uuid.UUID]uuid.UUID),
	}
}

// Get returns the session for callID
func (s *Store) Get(callID uuid.UUID) (*domain.CallSession, bool) {
	session, ok := s.sessions[callID]
	return session, ok
}

// CallOf returns the session userID participates in
func (s *Store) CallOf(userID uuid.UUID) (*domain.CallSession, bool) {
	callID, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	return s.Get(callID)
}

// Len returns the number of sessions
func (s *Store) Len() int {
	return len(s.sessions)
}

// RingingFor lists the ringing sessions waiting on calleeID
func (s *Store) RingingFor(calleeID uuid.UUID) []*domain.CallSession {
	var out []*domain.CallSession
	for _, session := range s.sessions {
		if session.Status == domain.CallStatusRinging && session.PendingCalleeID == calleeID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Summaries returns the active sessions, oldest first
func (s *Store) Summaries() []domain.CallSummary {
	active := make([]*domain.CallSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Status == domain.CallStatusActive {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Seq < active[j].Seq })

	out := make([]domain.CallSummary, len(active))
	for i, session := range active {
		out[i] = session.Summary()
	}
	return out
}

// create inserts a ringing session with caller as its only participant
func (s *Store) create(caller domain.Participant, calleeID uuid.UUID, callType domain.CallType, now time.Time) *domain.CallSession {
	s.seq++
	session := &domain.CallSession{
		CallID:          uuid.New(),
		Status:          domain.CallStatusRinging,
		CallType:        callType,
		CallerID:        caller.UserID,
		Participants:    []domain.Participant{caller},
		PendingCalleeID: calleeID,
		StartedAt:       now,
		Seq:             s.seq,
	}
	s.sessions[session.CallID] = session
	s.byUser[caller.UserID] = session.CallID
	s.updateGauges()
	return session
}

// activate moves a ringing session to active with callee as second participant
func (s *Store) activate(session *domain.CallSession, callee domain.Participant) {
	session.Status = domain.CallStatusActive
	session.PendingCalleeID = uuid.Nil
	s.add(session, callee)
	s.updateGauges()
}

// add binds p into session
func (s *Store) add(session *domain.CallSession, p domain.Participant) {
	session.Participants = append(session.Participants, p)
	s.byUser[p.UserID] = session.CallID
}

// remove unbinds userID from session and reports whether it was bound
func (s *Store) remove(session *domain.CallSession, userID uuid.UUID) (domain.Participant, bool) {
	for i, p := range session.Participants {
		if p.UserID == userID {
			session.Participants = append(session.Participants[:i:i], session.Participants[i+1:]...)
			if s.byUser[userID] == session.CallID {
				delete(s.byUser, userID)
			}
			return p, true
		}
	}
	return domain.Participant{}, false
}

// delete drops session and every index entry pointing at it
func (s *Store) delete(session *domain.CallSession) {
	for _, p := range session.Participants {
		if s.byUser[p.UserID] == session.CallID {
			delete(s.byUser, p.UserID)
		}
	}
	delete(s.sessions, session.CallID)
	s.updateGauges()
}

func (s *Store) updateGauges() {
	var ringing, active int
	for _, session := range s.sessions {
		if session.Status == domain.CallStatusRinging {
			ringing++
		} else {
			active++
		}
	}
	metrics.SignalingCallsRinging.Set(float64(ringing))
	metrics.SignalingCallsActive.Set(float64(active))
}
