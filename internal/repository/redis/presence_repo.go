package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callhub-backend/internal/database"
	"callhub-backend/internal/domain"
)

const onlineSetKey = "presence:online"

// PresenceRepository mirrors the coordinator's online list into Redis so
// other services can read presence without a signaling connection
type PresenceRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewPresenceRepository creates a new PresenceRepository. Entry keys expire
// after ttl unless a later sync refreshes them.
func NewPresenceRepository(client *database.RedisClient, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SyncOnline replaces the mirrored online set with entries in one transaction
func (r *PresenceRepository) SyncOnline(ctx context.Context, entries []domain.PresenceEntry) error {
	current, err := r.client.SafeSMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read online set: %w", err)
	}

	online := make(map[string]bool, len(entries))
	for _, e := range entries {
		online[e.UserID.String()] = true
	}

	err = r.client.SafeTxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range current {
			if online[id] {
				continue
			}
			pipe.SRem(ctx, onlineSetKey, id)
			pipe.Del(ctx, "presence:"+id)
		}
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal presence entry: %w", err)
			}
			pipe.Set(ctx, presenceKey(e.UserID), data, r.ttl)
			pipe.SAdd(ctx, onlineSetKey, e.UserID.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sync presence: %w", err)
	}
	return nil
}

// IsUserOnline checks if user is currently online
func (r *PresenceRepository) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	exists, err := r.client.SafeExists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}

	return exists > 0, nil
}

// GetOnlineUsers retrieves list of online user IDs
func (r *PresenceRepository) GetOnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	userIDStrs, err := r.client.SafeSMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(userIDStrs))
	for _, idStr := range userIDStrs {
		userID, err := uuid.Parse(idStr)
		if err != nil {
			continue // Skip invalid UUIDs
		}
		userIDs = append(userIDs, userID)
	}

	return userIDs, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
