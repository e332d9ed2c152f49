package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callhub-backend/internal/domain"
	apperrors "callhub-backend/pkg/errors"
)

// Querier is the subset of pgxpool.Pool the repository needs
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileRepository reads display data from the users table owned by the user service
type ProfileRepository struct {
	db Querier
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetProfile retrieves the display profile of a user
func (r *ProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		SELECT user_id, username, COALESCE(display_name, ''), avatar_url
		FROM users
		WHERE user_id = $1
	`

	profile := &domain.Profile{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Username,
		&profile.DisplayName,
		&profile.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}
