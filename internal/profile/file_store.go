package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/fsutil"
)

// FileStore keeps one JSON record per profile name in a directory.
type FileStore struct {
	dir string
	log *zap.Logger
	mu  sync.RWMutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("profile directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &FileStore{dir: dir, log: logger.Named("profile_store")}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, sanitizeName(name)+".json")
}

// Save writes the profile atomically. Failures are logged and absorbed.
func (s *FileStore) Save(_ context.Context, name string, profile *schemas.BrowserProfile) {
	if profile == nil {
		s.log.Warn("Refusing to save nil profile", zap.String("name", name))
		return
	}
	data, err := json.MarshalIndent(stamp(name, profile), "", "  ")
	if err != nil {
		s.log.Warn("Failed to encode profile", zap.String("name", name), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.WriteFileAtomic(s.path(name), data, 0o600); err != nil {
		s.log.Warn("Failed to persist profile", zap.String("name", name), zap.Error(err))
		return
	}
	s.log.Debug("Profile saved", zap.String("name", name), zap.Int("cookies", len(profile.Cookies)))
}

// Load returns the stored profile, or absent on any read or decode failure.
func (s *FileStore) Load(_ context.Context, name string) (*schemas.BrowserProfile, bool) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path(name))
	s.mu.RUnlock()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("Failed to read profile", zap.String("name", name), zap.Error(err))
		}
		return nil, false
	}

	var profile schemas.BrowserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		s.log.Warn("Discarding corrupt profile", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	return &profile, true
}

// Exists reports whether a readable profile is stored under name.
func (s *FileStore) Exists(ctx context.Context, name string) bool {
	_, ok := s.Load(ctx, name)
	return ok
}

// Delete removes the profile; a missing profile is not an error.
func (s *FileStore) Delete(_ context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("Failed to delete profile", zap.String("name", name), zap.Error(err))
	}
}
