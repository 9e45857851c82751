package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/entity"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrInvalidSessionFile = errors.New("session state must be a JSON object")
)

// Summary is the public view of a loaded profile.
type Summary struct {
	Name            string
	Description     string
	Mode            entity.Mode
	LoginRequired   bool
	HasSessionState bool
}

// Store holds the profiles loaded from a directory. Reloading swaps the
// whole set; profiles already handed out are never mutated.
type Store struct {
	dir     string
	baseDir string
	logger  *zap.Logger

	mu       sync.RWMutex
	profiles map[string]*entity.Profile
}

// NewStore creates a store reading *.yaml and *.yml files from dir.
func NewStore(dir, baseDir string, logger *zap.Logger) *Store {
	return &Store{
		dir:      dir,
		baseDir:  baseDir,
		logger:   logger,
		profiles: map[string]*entity.Profile{},
	}
}

// Load (re)reads every profile file. Files that cannot be read or decoded
// are skipped with a warning.
func (s *Store) Load() error {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to list profiles in %s: %w", s.dir, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)

	loaded := make(map[string]*entity.Profile, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			s.logger.Warn("Skipping unreadable profile", zap.String("file", file), zap.Error(err))
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		p, err := Parse(data, stem, s.baseDir)
		if err != nil {
			s.logger.Warn("Skipping invalid profile", zap.String("file", file), zap.Error(err))
			continue
		}
		loaded[p.Name] = p
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()

	s.logger.Info("Profiles loaded", zap.Int("count", len(loaded)), zap.String("dir", s.dir))
	return nil
}

// Put registers a profile directly, replacing any with the same name.
func (s *Store) Put(p *entity.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Name] = p
}

// Get looks a profile up by name.
func (s *Store) Get(name string) (*entity.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Names returns the loaded profile names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Public summarizes every profile.
func (s *Store) Public() []Summary {
	var out []Summary
	for _, name := range s.Names() {
		p, ok := s.Get(name)
		if !ok {
			continue
		}
		_, err := os.Stat(p.Browser.StorageStatePath)
		out = append(out, Summary{
			Name:            p.Name,
			Description:     p.Description,
			Mode:            p.Mode(),
			LoginRequired:   p.Browser.LoginRequired,
			HasSessionState: err == nil,
		})
	}
	return out
}

// SessionStatePath returns the storage-state file of a profile.
func (s *Store) SessionStatePath(name string) (string, error) {
	p, ok := s.Get(name)
	if !ok {
		return "", ErrProfileNotFound
	}
	return p.Browser.StorageStatePath, nil
}

// SaveSessionState writes an uploaded storage-state document for a
// profile and returns the path it was written to.
func (s *Store) SaveSessionState(name string, payload []byte) (string, error) {
	p, ok := s.Get(name)
	if !ok {
		return "", ErrProfileNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionFile, err)
	}
	if doc == nil {
		return "", ErrInvalidSessionFile
	}
	path := p.Browser.StorageStatePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("failed to write session state: %w", err)
	}
	return path, nil
}
