package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	callsvc "callhub-backend/internal/service/call"
	"callhub-backend/internal/service/presence"
	"callhub-backend/pkg/response"
)

// Handler exposes read-only call and presence views over HTTP
type Handler struct {
	coordinator *callsvc.Coordinator
	aggregator  *presence.Aggregator
}

// NewHandler creates a new call handler
func NewHandler(coordinator *callsvc.Coordinator, aggregator *presence.Aggregator) *Handler {
	return &Handler{
		coordinator: coordinator,
		aggregator:  aggregator,
	}
}

// ListOnlineUsers returns one entry per online user
// GET /v1/presence/online
func (h *Handler) ListOnlineUsers(c *gin.Context) {
	users := h.aggregator.DistinctOnlineUsers(c.Request.Context())

	response.Success(c, http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// ListActiveCalls returns every active call
// GET /v1/calls/active
func (h *Handler) ListActiveCalls(c *gin.Context) {
	calls := h.coordinator.ActiveCalls()

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

// GetCurrentCall returns the call the authenticated user is in, ringing or active
// GET /v1/calls/current
func (h *Handler) GetCurrentCall(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	callID, ok := h.coordinator.CallOf(userID)
	if !ok {
		response.NotFound(c, "Not in a call")
		return
	}
	session, ok := h.coordinator.Session(callID)
	if !ok {
		response.NotFound(c, "Not in a call")
		return
	}

	response.Success(c, http.StatusOK, session.Summary())
}
