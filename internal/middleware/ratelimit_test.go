package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callhub-backend/internal/database"
)

func setupRateLimiter(t *testing.T, requests int) (*miniredis.Miniredis, *database.RedisClient, *RateLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := database.NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewRateLimiter(client, "connect", requests, time.Minute)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr, _, rl := setupRateLimiter(t, 2)
	ctx := context.Background()

	allowed, remaining, _, err := rl.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, _, err = rl.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, remaining)

	allowed, _, _, err = rl.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// other identities have their own window
	allowed, _, _, err = rl.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, allowed)

	// the window expires
	mr.FastForward(time.Minute + time.Second)
	allowed, _, _, err = rl.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Middleware(t *testing.T) {
	_, _, rl := setupRateLimiter(t, 1)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_FailsOpenWhenDegraded(t *testing.T) {
	mr, client, rl := setupRateLimiter(t, 1)
	mr.Close()
	require.Error(t, client.HealthCheck(context.Background()))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
