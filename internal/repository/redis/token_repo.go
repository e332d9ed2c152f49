package redis

import (
	"context"
	"fmt"
	"time"

	"callhub-backend/internal/database"
)

// TokenRepository reads the access token blacklist shared with the auth service
type TokenRepository struct {
	client *database.RedisClient
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(client *database.RedisClient) *TokenRepository {
	return &TokenRepository{client: client}
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("blacklist:%s", tokenID)
}

// IsTokenRevoked checks if the token with the given jti is blacklisted
func (r *TokenRepository) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := r.client.SafeExists(ctx, blacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}

	return exists > 0, nil
}

// RevokeToken blacklists a jti until the token would have expired anyway
func (r *TokenRepository) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if r.client.IsDegraded() {
		return database.ErrDegraded
	}
	if err := r.client.Client.Set(ctx, blacklistKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
