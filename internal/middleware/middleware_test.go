package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"callhub-backend/pkg/jwt"
	"callhub-backend/pkg/metrics"
)

const testSecret = "test-secret-key-that-is-long-enough-for-hs256"

// MockRevocationChecker is a mock implementation of RevocationChecker
type MockRevocationChecker struct {
	mock.Mock
}

func (m *MockRevocationChecker) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func newAuthRouter(manager *jwt.JWTManager, checker RevocationChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())

	r := gin.New()
	r.Use(AuthMiddleware(manager, checker, m))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.MustGet("user_id").(uuid.UUID).String(),
			"username": c.GetString("username"),
		})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	manager := jwt.NewJWTManager(testSecret, "callhub-api", time.Minute)
	userID := uuid.New()
	token, err := manager.GenerateAccessToken(userID, "alice", "user")
	require.NoError(t, err)

	router := newAuthRouter(manager, nil)

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + token, http.StatusOK},
		{"query token", "/me?token=" + token, "", http.StatusOK},
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"malformed header", "/me", "Token " + token, http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), "alice")
			}
		})
	}
}

func TestAuthMiddleware_Revocation(t *testing.T) {
	manager := jwt.NewJWTManager(testSecret, "callhub-api", time.Minute)
	token, err := manager.GenerateAccessToken(uuid.New(), "alice", "user")
	require.NoError(t, err)

	t.Run("revoked token is refused", func(t *testing.T) {
		checker := new(MockRevocationChecker)
		checker.On("IsTokenRevoked", mock.Anything, mock.Anything).Return(true, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newAuthRouter(manager, checker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		checker.AssertExpectations(t)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		checker := new(MockRevocationChecker)
		checker.On("IsTokenRevoked", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newAuthRouter(manager, checker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
