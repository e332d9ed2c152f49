package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"callhub-backend/internal/domain"
	"callhub-backend/pkg/cache"
	"callhub-backend/pkg/constants"
	"callhub-backend/pkg/metrics"
)

// CachedProfiles is a ProfileProvider that keeps successful lookups for a
// short TTL and collapses concurrent lookups of the same user into one.
type CachedProfiles struct {
	source ProfileProvider
	cache  *cache.MemoryCache[uuid.UUID, *domain.Profile]
	group  singleflight.Group
}

// NewCachedProfiles wraps source with a TTL cache
func NewCachedProfiles(source ProfileProvider, ttl time.Duration, maxSize int) *CachedProfiles {
	if ttl <= 0 {
		ttl = constants.ProfileCacheTTL
	}
	if maxSize <= 0 {
		maxSize = constants.ProfileCacheSize
	}
	return &CachedProfiles{
		source: source,
		cache:  cache.NewMemoryCache[uuid.UUID, *domain.Profile](ttl, maxSize),
	}
}

// GetProfile implements ProfileProvider
func (c *CachedProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	if p, ok := c.cache.Get(userID); ok {
		metrics.ProfileCacheLookupsTotal.WithLabelValues("hit").Inc()
		return p, nil
	}
	metrics.ProfileCacheLookupsTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(userID.String(), func() (interface{}, error) {
		p, err := c.source.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			c.cache.Set(userID, p, 0)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*domain.Profile)
	return p, nil
}

// Invalidate drops the cached profile of userID
func (c *CachedProfiles) Invalidate(userID uuid.UUID) {
	c.cache.Delete(userID)
}

// StartCleanup evicts expired profiles every interval until the returned stop is called
func (c *CachedProfiles) StartCleanup(interval time.Duration) func() {
	return c.cache.StartCleanup(interval)
}
