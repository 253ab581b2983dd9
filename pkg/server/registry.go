package server

import (
	"sync"
)

// Registry is the concurrency-safe set of admitted sessions. All mutation
// from session goroutines is serialized behind one mutex; Snapshot preserves
// admission order, which drives who-listing and broadcast delivery order.
//
// Username uniqueness is enforced at login/registration time by the router,
// not at insertion: pre-authentication sessions carry only a provisional
// handshake name.
type Registry struct {
	mu    sync.RWMutex
	byID  map[uint64]*Session
	order []*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[uint64]*Session),
	}
}

// Add admits a session. Ids are unique by construction, so a duplicate add
// is a no-op.
func (r *Registry) Add(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[sess.ID()]; ok {
		return
	}
	r.byID[sess.ID()] = sess
	r.order = append(r.order, sess)
}

// RemoveByID removes a session, reporting whether it was present. Safe to
// call twice: teardown and a failed broadcast send may race to remove the
// same session.
func (r *Registry) RemoveByID(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, sess := range r.order {
		if sess.ID() == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// FindByUsername returns the first admitted session whose display name
// matches, or nil.
func (r *Registry) FindByUsername(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.order {
		if sess.Name() == name {
			return sess
		}
	}
	return nil
}

// Snapshot returns all admitted sessions in admission order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of admitted sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
