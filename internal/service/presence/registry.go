package presence

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"callhub-backend/internal/domain"
)

// Registry maps each live connection to the identity using it.
// A user may hold several connections at once (one per browser tab).
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnID]*registration
	byUser map[uuid.UUID]map[domain.ConnID]struct{}
	seq    uint64
}

type registration struct {
	identity domain.Identity
	seq      uint64
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[domain.ConnID]*registration),
		byUser: make(map[uuid.UUID]map[domain.ConnID]struct{}),
	}
}

// Register inserts or overwrites the entry for connID
func (r *Registry) Register(connID domain.ConnID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[connID]; ok {
		r.unindex(connID, existing.identity.UserID)
		existing.identity = identity
	} else {
		r.seq++
		r.conns[connID] = &registration{identity: identity, seq: r.seq}
	}

	set, ok := r.byUser[identity.UserID]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.byUser[identity.UserID] = set
	}
	set[connID] = struct{}{}
}

// Unregister removes connID and returns the identity it was bound to
func (r *Registry) Unregister(connID domain.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.conns[connID]
	if !ok {
		return domain.Identity{}, false
	}
	delete(r.conns, connID)
	r.unindex(connID, reg.identity.UserID)
	return reg.identity, true
}

func (r *Registry) unindex(connID domain.ConnID, userID uuid.UUID) {
	if set, ok := r.byUser[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// Lookup returns the identity bound to connID
func (r *Registry) Lookup(connID domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.conns[connID]
	if !ok {
		return domain.Identity{}, false
	}
	return reg.identity, true
}

// ConnectionsFor lists the connections held by userID, oldest first
func (r *Registry) ConnectionsFor(userID uuid.UUID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	ids := make([]domain.ConnID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.sortBySeq(ids)
	return ids
}

// IsOnline reports whether userID holds at least one connection
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// All lists every registered connection, oldest first
func (r *Registry) All() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.sortBySeq(ids)
	return ids
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// DistinctUsers returns one identity per online user, taken from that
// user's oldest connection, ordered by when the user first came online.
func (r *Registry) DistinctUsers() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reps := make([]*registration, 0, len(r.byUser))
	for _, set := range r.byUser {
		var oldest *registration
		for id := range set {
			reg := r.conns[id]
			if oldest == nil || reg.seq < oldest.seq {
				oldest = reg
			}
		}
		if oldest != nil {
			reps = append(reps, oldest)
		}
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].seq < reps[j].seq })

	users := make([]domain.Identity, len(reps))
	for i, reg := range reps {
		users[i] = reg.identity
	}
	return users
}

// sortBySeq orders ids by registration order. Caller holds r.mu.
func (r *Registry) sortBySeq(ids []domain.ConnID) {
	sort.Slice(ids, func(i, j int) bool {
		return r.conns[ids[i]].seq < r.conns[ids[j]].seq
	})
}
