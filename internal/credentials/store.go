// Package credentials persists the API token between CLI invocations.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCredentials is returned by Load when nothing has been saved yet.
var ErrNoCredentials = errors.New("no stored credentials")

// Store reads and writes the token file. The on-disk format is a small JSON
// object so it can grow fields later without breaking old files.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Default places the token at ~/.coqui/credentials.
func Default() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return NewStore(filepath.Join(home, ".coqui", "credentials")), nil
}

func (s *Store) Path() string { return s.path }

type credentialsFile struct {
	Token string `json:"token"`
}

// Save writes the token, creating the parent directory if needed. The file is
// user-only since it holds a bearer credential.
func (s *Store) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(credentialsFile{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Load returns the saved token, or ErrNoCredentials when the file is missing
// or holds an empty token.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredentials
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}
	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if f.Token == "" {
		return "", ErrNoCredentials
	}
	return f.Token, nil
}
