// Package entrystore persists the account entry (credentials plus the
// latest refresh token) as a small YAML file.
package entrystore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when no username or password is known
var ErrMissingCredentials = errors.New("username and password are required")

// Entry is the persisted configuration of one account
type Entry struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

// Validate checks that credentials are present
func (e Entry) Validate() error {
	if e.Username == "" || e.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Store is a file-backed Entry. It is safe for concurrent use.
type Store struct {
	path string

	mu    sync.Mutex
	entry Entry
}

// Load reads the entry at path. An empty file is an empty entry.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entry Entry
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&entry); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse entry file %s: %w", path, err)
	}
	return &Store{path: path, entry: entry}, nil
}

// Open loads the entry at path and applies seed on top of it. Non-empty
// seed credentials win over the file; a different username (compared
// case-insensitively, as accounts are keyed on the lowercased email)
// discards the stored refresh token. A missing file is created from seed.
func Open(path string, seed Entry) (*Store, error) {
	s, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s = &Store{path: path, entry: seed}
	case err != nil:
		return nil, err
	default:
		s.merge(seed)
	}

	if err := s.entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) merge(seed Entry) {
	if seed.Username != "" {
		if !strings.EqualFold(seed.Username, s.entry.Username) {
			s.entry.RefreshToken = ""
		}
		s.entry.Username = seed.Username
	}
	if seed.Password != "" {
		s.entry.Password = seed.Password
	}
	if seed.RefreshToken != "" {
		s.entry.RefreshToken = seed.RefreshToken
	}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Entry returns a copy of the current entry
func (s *Store) Entry() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry
}

// UpdateRefreshToken stores a rotated refresh token and writes the file
func (s *Store) UpdateRefreshToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry.RefreshToken == token {
		return nil
	}
	s.entry.RefreshToken = token
	return s.write()
}

// Save writes the current entry to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

// write replaces the file atomically. Callers hold mu.
func (s *Store) write() error {
	data, err := yaml.Marshal(&s.entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create entry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".entry-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp entry file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set entry permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace entry file: %w", err)
	}
	return nil
}
