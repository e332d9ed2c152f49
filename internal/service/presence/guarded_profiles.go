package presence

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"callhub-backend/internal/domain"
	apperrors "callhub-backend/pkg/errors"
	"callhub-backend/pkg/resilience"
)

// GuardedProfiles stops calling the profile store while it keeps failing,
// so a dead database costs broadcasts nothing instead of a full timeout each.
type GuardedProfiles struct {
	source  ProfileProvider
	breaker *resilience.Breaker
}

// NewGuardedProfiles wraps source with a circuit breaker. Missing profiles
// do not count as failures.
func NewGuardedProfiles(source ProfileProvider, cfg resilience.BreakerConfig) *GuardedProfiles {
	cfg.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, apperrors.ErrNotFound)
	}
	return &GuardedProfiles{
		source:  source,
		breaker: resilience.NewBreaker("profile_store", cfg),
	}
}

// GetProfile implements ProfileProvider
func (g *GuardedProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	var profile *domain.Profile
	err := g.breaker.Execute(func() error {
		var err error
		profile, err = g.source.GetProfile(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
