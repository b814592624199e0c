package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/calgate/calgate/internal/logging"
)

const tokenFileName = "tokens.json"

// Store persists one TokenSet as a JSON file with an in-process cache.
//
// Load is cache-first: once a TokenSet has been read or saved, disk is not
// touched again until Clear. Save and Clear create the storage directory on
// demand so a fresh install needs no setup step.
type Store struct {
	mu     sync.Mutex
	path   string
	cached *TokenSet
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir. The token file itself is not
// touched until the first Save or Load.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		path:   filepath.Join(dir, tokenFileName),
		logger: logging.WithComponent(logger, "token-store"),
	}
}

// DefaultDir returns the default storage directory for the current user.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, "calgate"), nil
}

// Path returns the token file path.
func (s *Store) Path() string {
	return s.path
}

// Save durably persists ts, overwriting any previous value, and updates the
// in-process cache. The storage directory is created if absent.
func (s *Store) Save(ts *TokenSet) error {
	if ts == nil {
		return fmt.Errorf("token set cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to encode token set: %w", err)
	}

	// Write-then-rename so a crash mid-write never truncates the live
	// file: a partial temp file is harmless, the rename is atomic.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.cached = ts
	s.logger.Debug("saved token set", "expiry", ts.Expiry)
	return nil
}

// Load returns the cached TokenSet if populated, otherwise reads the file
// and populates the cache. It returns (nil, nil) when nothing has ever been
// saved, and also (nil, nil), resetting the cache, when the stored
// representation is unreadable or corrupt.
func (s *Store) Load() (*TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("token file unreadable, treating as unauthenticated", logging.Err(err))
		}
		s.cached = nil
		return nil, nil
	}

	var ts TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		s.logger.Warn("token file corrupt, treating as unauthenticated", logging.Err(err))
		s.cached = nil
		return nil, nil
	}
	if ts.AccessToken == "" {
		s.logger.Warn("token file has no access token, treating as unauthenticated")
		s.cached = nil
		return nil, nil
	}

	s.cached = &ts
	return s.cached, nil
}

// Clear removes the durable representation and the in-process cache.
// A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	s.logger.Debug("cleared token set")
	return nil
}
