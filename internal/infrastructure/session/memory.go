package session

import (
	"context"
	"sync"
)

// MemoryRegistry keeps both directions of the session mapping in process
// memory. Suitable when a single instance serves all connections; behind
// multiple instances use the Redis-backed registry instead.
type MemoryRegistry struct {
	mu         sync.RWMutex
	byUser     map[string]string // userID -> connID
	userByConn map[string]string // connID -> userID
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byUser:     make(map[string]string),
		userByConn: make(map[string]string),
	}
}

var _ Registry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) Register(ctx context.Context, userID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevUser, ok := r.userByConn[connID]; ok && prevUser != userID {
		// The connection re-registered as someone else; drop the previous
		// user's forward entry so it cannot stay orphaned.
		if r.byUser[prevUser] == connID {
			delete(r.byUser, prevUser)
		}
	}
	if old, ok := r.byUser[userID]; ok && old != connID {
		// Prune the replaced reverse entry so it cannot resolve to a user
		// whose forward entry already points elsewhere.
		delete(r.userByConn, old)
	}
	r.byUser[userID] = connID
	r.userByConn[connID] = userID
	return nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConn[connID]
	if !ok {
		return nil
	}
	delete(r.userByConn, connID)
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
	}
	return nil
}

func (r *MemoryRegistry) IsOnline(ctx context.Context, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *MemoryRegistry) Lookup(ctx context.Context, userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

func (r *MemoryRegistry) UserFor(ctx context.Context, connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.userByConn[connID]
	return userID, ok
}
