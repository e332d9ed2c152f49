package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"callhub-backend/internal/domain"
)

func identity(name string) domain.Identity {
	return domain.Identity{UserID: uuid.New(), DisplayName: name}
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	alice := identity("alice")

	r.Register("c1", alice)

	got, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, alice, got)
	assert.True(t, r.IsOnline(alice.UserID))

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	alice := identity("alice")
	bob := identity("bob")

	r.Register("c1", alice)
	r.Register("c1", bob)

	got, _ := r.Lookup("c1")
	assert.Equal(t, bob, got)
	assert.False(t, r.IsOnline(alice.UserID))
	assert.Equal(t, []domain.ConnID{"c1"}, r.ConnectionsFor(bob.UserID))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	alice := identity("alice")
	r.Register("c1", alice)

	got, ok := r.Unregister("c1")
	assert.True(t, ok)
	assert.Equal(t, alice, got)

	_, ok = r.Unregister("c1")
	assert.False(t, ok)
	assert.False(t, r.IsOnline(alice.UserID))
	assert.Empty(t, r.ConnectionsFor(alice.UserID))
}

func TestRegistry_ConnectionsForMultipleTabs(t *testing.T) {
	r := NewRegistry()
	alice := identity("alice")
	bob := identity("bob")

	r.Register("a1", alice)
	r.Register("b1", bob)
	r.Register("a2", alice)
	r.Register("a3", alice)

	assert.Equal(t, []domain.ConnID{"a1", "a2", "a3"}, r.ConnectionsFor(alice.UserID))
	assert.Equal(t, []domain.ConnID{"a1", "b1", "a2", "a3"}, r.All())

	r.Unregister("a2")
	assert.Equal(t, []domain.ConnID{"a1", "a3"}, r.ConnectionsFor(alice.UserID))
}

func TestRegistry_DistinctUsers(t *testing.T) {
	r := NewRegistry()
	alice := identity("alice")
	bob := identity("bob")

	r.Register("a1", alice)
	r.Register("a2", alice)
	r.Register("b1", bob)

	users := r.DistinctUsers()
	assert.Len(t, users, 2)
	assert.Equal(t, alice.UserID, users[0].UserID)
	assert.Equal(t, bob.UserID, users[1].UserID)

	r.Unregister("a1")
	r.Unregister("a2")
	users = r.DistinctUsers()
	assert.Len(t, users, 1)
	assert.Equal(t, bob.UserID, users[0].UserID)
}
