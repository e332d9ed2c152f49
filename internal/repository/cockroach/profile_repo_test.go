package cockroach

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "callhub-backend/pkg/errors"
)

// MockQuerier is a mock implementation of Querier
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	called := m.Called(ctx, sql, args)
	return called.Get(0).(pgx.Row)
}

// fakeRow scans fixed values or fails with err
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case **string:
			if r.values[i] == nil {
				*p = nil
			} else {
				s := r.values[i].(string)
				*p = &s
			}
		}
	}
	return nil
}

func TestProfileRepository_GetProfile(t *testing.T) {
	userID := uuid.New()
	db := new(MockQuerier)
	db.On("QueryRow", mock.Anything, mock.Anything, []any{userID}).
		Return(fakeRow{values: []any{userID, "alice", "Alice", "https://cdn/a.png"}})

	profile, err := NewProfileRepository(db).GetProfile(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, userID, profile.UserID)
	assert.Equal(t, "Alice", profile.Name())
	assert.Equal(t, "https://cdn/a.png", profile.Avatar())
	db.AssertExpectations(t)
}

func TestProfileRepository_NoAvatar(t *testing.T) {
	userID := uuid.New()
	db := new(MockQuerier)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(fakeRow{values: []any{userID, "bob", "", nil}})

	profile, err := NewProfileRepository(db).GetProfile(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, "bob", profile.Name())
	assert.Empty(t, profile.Avatar())
}

func TestProfileRepository_NotFound(t *testing.T) {
	db := new(MockQuerier)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(fakeRow{err: pgx.ErrNoRows})

	profile, err := NewProfileRepository(db).GetProfile(context.Background(), uuid.New())

	assert.Nil(t, profile)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProfileRepository_QueryError(t *testing.T) {
	db := new(MockQuerier)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(fakeRow{err: errors.New("connection reset")})

	_, err := NewProfileRepository(db).GetProfile(context.Background(), uuid.New())

	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}
