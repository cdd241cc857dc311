// Package file provides an identity store backed by a static user list,
// either loaded from a YAML users file or supplied inline from
// configuration. Passwords are verified against bcrypt hashes.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/portier-dev/portier/pkg/auth"
)

// User is a single entry in the store.
type User struct {
	Name         string            `yaml:"name"`
	PasswordHash string            `yaml:"password_hash"`
	Groups       []string          `yaml:"groups"`
	Attributes   map[string]string `yaml:"attributes"`
}

// Store verifies credentials against a static user list.
type Store struct {
	mu    sync.RWMutex
	users map[string]User
}

// dummyHash is compared against for unknown usernames so lookup misses
// cost the same as a wrong password.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0a6hxZCmUzZqGz1sW1u0e1lZlxi")

// New creates a store from an inline user list.
func New(users []User) (*Store, error) {
	s := &Store{users: make(map[string]User, len(users))}
	for _, u := range users {
		if u.Name == "" {
			return nil, fmt.Errorf("user entry with empty name")
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("user %q has no password hash", u.Name)
		}
		if _, exists := s.users[u.Name]; exists {
			return nil, fmt.Errorf("duplicate user %q", u.Name)
		}
		s.users[u.Name] = u
	}
	return s, nil
}

// Load creates a store from a YAML users file. The file holds a top-level
// "users" list of User entries.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	var doc struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing users file %s: %w", path, err)
	}

	return New(doc.Users)
}

// Verify checks the username/password pair. Invalid credentials return
// (nil, nil); this store has no backend to fail, so the error return is
// always nil.
func (s *Store) Verify(_ context.Context, username, password string) (*auth.Principal, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway to keep timing flat.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	return &auth.Principal{
		Name:       u.Name,
		Attributes: cloneAttributes(u.Attributes),
	}, nil
}

// IsMember reports whether the named principal belongs to the group.
func (s *Store) IsMember(_ context.Context, p *auth.Principal, group string) (bool, error) {
	if p == nil {
		return false, nil
	}

	s.mu.RLock()
	u, ok := s.users[p.Name]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	for _, g := range u.Groups {
		if g == group {
			return true, nil
		}
	}
	return false, nil
}

// HashPassword produces a bcrypt hash suitable for a User entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
