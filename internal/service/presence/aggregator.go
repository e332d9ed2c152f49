package presence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"callhub-backend/internal/domain"
	"callhub-backend/pkg/constants"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

var errNoProfile = errors.New("profile not found")

// ProfileProvider resolves a user's canonical display data
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

// Aggregator derives the deduplicated online-user list from the registry
type Aggregator struct {
	registry    *Registry
	profiles    ProfileProvider
	timeout     time.Duration
	concurrency int
}

// NewAggregator creates a presence aggregator. profiles may be nil, in which
// case the identities cached at connect time are returned as-is.
func NewAggregator(registry *Registry, profiles ProfileProvider, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = constants.ProfileRefreshTimeout
	}
	return &Aggregator{
		registry:    registry,
		profiles:    profiles,
		timeout:     timeout,
		concurrency: constants.ProfileRefreshConcurrency,
	}
}

// DistinctOnlineUsers returns one entry per online user with display name and
// avatar refreshed from the profile store. A failed or slow lookup keeps the
// value cached on the connection; it never aborts the list.
func (a *Aggregator) DistinctOnlineUsers(ctx context.Context) []domain.PresenceEntry {
	users := a.registry.DistinctUsers()
	entries := make([]domain.PresenceEntry, len(users))
	for i, u := range users {
		entries[i] = u.Peer()
	}

	if a.profiles == nil || len(entries) == 0 {
		return entries
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range entries {
		i := i
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			profile, err := a.lookup(lookupCtx, entries[i].UserID)
			if err != nil {
				metrics.SignalingProfileRefreshFailuresTotal.Inc()
				logger.Debug("Profile refresh failed, using cached identity",
					zap.String("user_id", entries[i].UserID.String()),
					zap.Error(err))
				return nil
			}
			if name := profile.Name(); name != "" {
				entries[i].DisplayName = name
			}
			entries[i].Avatar = profile.Avatar()
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

type lookupResult struct {
	profile *domain.Profile
	err     error
}

// lookup bounds a profile fetch by ctx even if the provider ignores it
func (a *Aggregator) lookup(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	done := make(chan lookupResult, 1)
	go func() {
		p, err := a.profiles.GetProfile(ctx, userID)
		done <- lookupResult{profile: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.profile == nil {
			return nil, errNoProfile
		}
		return res.profile, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
