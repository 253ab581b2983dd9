package credstore

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/parlorchat/parlor/pkg/model"
)

// FileStore keeps credentials in a newline-delimited "username password"
// text file, loaded once at startup and appended to (never rewritten) on
// registration. Passwords are plaintext; the file format predates this
// server and is shared with it.
type FileStore struct {
	mu    sync.Mutex
	path  string
	users map[string]string
	order []string
}

// OpenFile loads a credential file. A missing or unreadable file is not
// fatal: the store starts with an empty map and logs the condition, so a
// fresh deployment can register its first users.
func OpenFile(path string) *FileStore {
	s := &FileStore{
		path:  path,
		users: make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path from server config
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("credential file not found, starting empty", "path", path)
		} else {
			slog.Error("credential file unreadable, starting empty", "path", path, "err", err)
		}
		return s
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue // blank or malformed line
		}
		if _, seen := s.users[fields[0]]; !seen {
			s.order = append(s.order, fields[0])
		}
		s.users[fields[0]] = fields[1]
	}
	slog.Info("loaded credential file", "path", path, "users", len(s.order))
	return s
}

// Authenticate checks an exact username/password match.
func (s *FileStore) Authenticate(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[username]
	if !ok || stored != password {
		return ErrBadCredentials
	}
	return nil
}

// Create appends the new pair to the file, then admits it to the in-memory
// map. The append is synced before the user becomes authoritative; an
// append failure rejects the registration.
func (s *FileStore) Create(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}

	if err := s.appendLine(username, password); err != nil {
		return fmt.Errorf("credstore: append user: %w", err)
	}

	s.users[username] = password
	s.order = append(s.order, username)
	return nil
}

func (s *FileStore) appendLine(username, password string) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // path from server config
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s %s\n", username, password); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ListUsers returns all users in file order.
func (s *FileStore) ListUsers() ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.order))
	for _, name := range s.order {
		users = append(users, model.User{Username: name})
	}
	return users, nil
}

// Close is a no-op; the file is opened per append.
func (s *FileStore) Close() error {
	return nil
}
