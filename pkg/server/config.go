package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parlorchat/parlor/pkg/credstore"
)

// LoadConfig reads a YAML config file over the defaults. Flags parsed by
// the caller take precedence over file values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at,omitempty"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all registered users as YAML.
func ExportUsersYAML(st credstore.Store) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}

	export := UsersExport{}
	for _, u := range users {
		entry := UserYAML{Username: u.Username}
		if !u.CreatedAt.IsZero() {
			entry.CreatedAt = u.CreatedAt.Format("2006-01-02T15:04:05Z")
		}
		export.Users = append(export.Users, entry)
	}
	return yaml.Marshal(&export)
}
