package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parlorchat/parlor/pkg/crypto"
	"github.com/parlorchat/parlor/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// SQLStore keeps credentials in a SQLite database with Argon2id password
// hashes at rest. The users table's UNIQUE constraint provides the atomic
// check-and-reserve for registration.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (or creates) a SQLite credential database and runs
// migrations.
func OpenSQL(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("credstore: open db: %w", err)
	}

	ctx := context.Background()

	// WAL for concurrent reads, busy_timeout to avoid "database is locked"
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("credstore: %s: %w", pragma, err)
		}
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0),
		password_hash TEXT    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Authenticate verifies the password against the stored Argon2id hash.
func (s *SQLStore) Authenticate(username, password string) error {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBadCredentials
	}
	if err != nil {
		return fmt.Errorf("credstore: lookup user: %w", err)
	}
	if !crypto.VerifyPassword(password, hash) {
		return ErrBadCredentials
	}
	return nil
}

// Create hashes the password and inserts the user. A UNIQUE violation maps
// to ErrUserExists.
func (s *SQLStore) Create(username, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("credstore: hash password: %w", err)
	}

	_, err = s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, hash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("credstore: insert user: %w", err)
	}
	return nil
}

// ListUsers returns all users in registration order.
func (s *SQLStore) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query("SELECT username, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("credstore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("credstore: scan user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(dbTimeLayout, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}
