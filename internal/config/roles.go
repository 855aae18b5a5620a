package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/foreman/internal/router"
)

// WorkerSpec assigns a worker id to a role.
type WorkerSpec struct {
	// ID is the worker identifier, unique within the roles file.
	ID string `yaml:"id"`
	// Role names a role declared in the same file.
	Role string `yaml:"role"`
}

// RolesFile is the parsed form of roles.yaml: the role definitions plus the
// workers the coordinator should run.
type RolesFile struct {
	Roles   []router.RoleConfig `yaml:"roles"`
	Workers []WorkerSpec        `yaml:"workers"`
}

// Role returns the role config with the given name.
func (f *RolesFile) Role(name string) (router.RoleConfig, bool) {
	for _, r := range f.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return router.RoleConfig{}, false
}

// WorkerRoles returns worker id -> role name for every declared worker.
func (f *RolesFile) WorkerRoles() map[string]string {
	out := make(map[string]string, len(f.Workers))
	for _, w := range f.Workers {
		out[w.ID] = w.Role
	}
	return out
}

// LoadRoles reads and validates a roles file. Every worker must reference a
// declared role, and role names must be unique.
func LoadRoles(path string) (*RolesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}

	var f RolesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Roles))
	for _, r := range f.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("roles file %s: role with empty name", path)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("roles file %s: duplicate role %q", path, r.Name)
		}
		seen[r.Name] = true
	}
	for _, w := range f.Workers {
		if w.ID == "" {
			return nil, fmt.Errorf("roles file %s: worker with empty id", path)
		}
		if !seen[w.Role] {
			return nil, fmt.Errorf("roles file %s: worker %s references unknown role %q", path, w.ID, w.Role)
		}
	}
	return &f, nil
}
