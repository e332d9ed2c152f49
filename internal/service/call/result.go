package call

import (
	"github.com/google/uuid"

	apperrors "callhub-backend/pkg/errors"
)

// Outcome tags what a transition did
type Outcome int

const (
	// Applied means the transition mutated state or delivered frames
	Applied Outcome = iota
	// Ignored means the event was stale, duplicate or unauthorized and was dropped silently
	Ignored
	// Rejected means the event was refused and the sender got a call-error
	Rejected
)

// String returns the metric label for the outcome
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is returned by every coordinator transition
type Result struct {
	Outcome Outcome
	CallID  uuid.UUID
	// Reason says why an event was ignored; only logged
	Reason string
	// Err is set for Rejected results and is what the sender was told
	Err *apperrors.AppError
}

func applied(callID uuid.UUID) Result {
	return Result{Outcome: Applied, CallID: callID}
}

func ignored(callID uuid.UUID, reason string) Result {
	return Result{Outcome: Ignored, CallID: callID, Reason: reason}
}

func rejected(callID uuid.UUID, err *apperrors.AppError) Result {
	return Result{Outcome: Rejected, CallID: callID, Err: err}
}
