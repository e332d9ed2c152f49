package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache[string, int](time.Minute, 0)

	c.Set("a", 1, 0)
	v, ok := c.Get("a")

	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache[string, string](time.Minute, 0)
	c.now = func() time.Time { return now }

	c.Set("short", "x", time.Second)
	c.Set("long", "y", 0)

	now = now.Add(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.cleanupExpired())
	assert.Zero(t, c.Size())
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache[int, string](time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Set(1, "one", 0)
	now = now.Add(time.Millisecond)
	c.Set(2, "two", 0)
	now = now.Add(time.Millisecond)
	c.Set(2, "two again", 0) // overwrite does not evict
	assert.Equal(t, 2, c.Size())

	c.Set(3, "three", 0)

	_, ok := c.Get(1)
	assert.False(t, ok)
	v, ok := c.Get(2)
	assert.True(t, ok)
	assert.Equal(t, "two again", v)
	assert.Equal(t, 2, c.Size())
}

func TestMemoryCache_StartCleanupStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryCache[string, int](time.Millisecond, 0)
	stop := c.StartCleanup(time.Millisecond)
	c.Set("a", 1, 0)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	stop()
	stop()
}
