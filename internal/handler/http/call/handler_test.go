package call

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callhub-backend/internal/domain"
	callsvc "callhub-backend/internal/service/call"
	"callhub-backend/internal/service/presence"
)

type discard struct{}

func (discard) Send(domain.ConnID, domain.Frame) bool { return true }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func setupRouter(t *testing.T, asUser uuid.UUID) (*gin.Engine, *callsvc.Coordinator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := presence.NewRegistry()
	coord := callsvc.NewCoordinator(registry, discard{}, time.Minute)
	t.Cleanup(coord.Close)
	h := NewHandler(coord, presence.NewAggregator(registry, nil, time.Second))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if asUser != uuid.Nil {
			c.Set("user_id", asUser)
		}
		c.Next()
	})
	r.GET("/v1/presence/online", h.ListOnlineUsers)
	r.GET("/v1/calls/active", h.ListActiveCalls)
	r.GET("/v1/calls/current", h.GetCurrentCall)
	return r, coord
}

func get(t *testing.T, r *gin.Engine, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestHandler_ListOnlineUsers(t *testing.T) {
	r, coord := setupRouter(t, uuid.Nil)
	alice := domain.Identity{UserID: uuid.New(), DisplayName: "Alice"}
	coord.Connect("a1", alice)
	coord.Connect("a2", alice)

	code, env := get(t, r, "/v1/presence/online")

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	var data struct {
		Users []domain.PresenceEntry `json:"users"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Count)
	assert.Equal(t, "Alice", data.Users[0].DisplayName)
}

func TestHandler_ListActiveCalls(t *testing.T) {
	r, coord := setupRouter(t, uuid.Nil)
	alice := domain.Identity{UserID: uuid.New(), DisplayName: "Alice"}
	bob := domain.Identity{UserID: uuid.New(), DisplayName: "Bob"}
	coord.Connect("a1", alice)
	coord.Connect("b1", bob)

	res := coord.RequestCall("a1", bob.UserID, domain.CallTypeVoice)

	// ringing calls are not listed
	_, env := get(t, r, "/v1/calls/active")
	assert.Contains(t, string(env.Data), `"count":0`)

	coord.Accept("b1", res.CallID)
	code, env := get(t, r, "/v1/calls/active")

	assert.Equal(t, http.StatusOK, code)
	var data struct {
		Calls []domain.CallSummary `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Calls, 1)
	assert.Equal(t, res.CallID, data.Calls[0].CallID)
	assert.Equal(t, alice.UserID, data.Calls[0].CallerID)
}

func TestHandler_GetCurrentCall(t *testing.T) {
	alice := domain.Identity{UserID: uuid.New(), DisplayName: "Alice"}
	bob := domain.Identity{UserID: uuid.New(), DisplayName: "Bob"}
	r, coord := setupRouter(t, alice.UserID)
	coord.Connect("a1", alice)
	coord.Connect("b1", bob)

	code, env := get(t, r, "/v1/calls/current")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	res := coord.RequestCall("a1", bob.UserID, domain.CallTypeVideo)
	code, env = get(t, r, "/v1/calls/current")

	assert.Equal(t, http.StatusOK, code)
	var summary domain.CallSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, res.CallID, summary.CallID)
	assert.Equal(t, domain.CallStatusRinging, summary.Status)
}

func TestHandler_GetCurrentCall_Unauthenticated(t *testing.T) {
	r, _ := setupRouter(t, uuid.Nil)

	code, env := get(t, r, "/v1/calls/current")

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
}
