package credstore

import (
	"sync"
	"time"

	"github.com/parlorchat/parlor/pkg/model"
)

// MemoryStore is an in-memory Store for tests. It mirrors FileStore
// semantics (plaintext exact match, registration order) without touching
// the filesystem.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[string]string
	order []model.User
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		now:   func() time.Time { return time.Now().UTC() },
		users: make(map[string]string),
	}
}

// Authenticate checks an exact username/password match.
func (s *MemoryStore) Authenticate(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[username]
	if !ok || stored != password {
		return ErrBadCredentials
	}
	return nil
}

// Create records the user, rejecting duplicates.
func (s *MemoryStore) Create(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = password
	s.order = append(s.order, model.User{Username: username, CreatedAt: s.now()})
	return nil
}

// ListUsers returns all users in registration order.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, len(s.order))
	copy(users, s.order)
	return users, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
