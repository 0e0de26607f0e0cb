package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
)

// Store persists Settings at a single JSON file, forward-migrating
// missing keys on read and writing via atomic replace, per spec.md §4.5.
type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	log  logging.Logger
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  logging.GetDefault().With("component", "settings.store", "path", path),
	}
}

// Load reads the document, creating it with the empty default if absent.
// The store is not cached: every call re-reads the file.
func (s *Store) Load(_ context.Context) (Settings, error) {
	var out Settings
	err := s.withLock(func() error {
		settings, created, err := s.readOrInit()
		if err != nil {
			return err
		}
		out = settings
		if created {
			return s.writeLocked(settings)
		}
		return nil
	})
	return out, err
}

// Save persists settings via atomic replace.
func (s *Store) Save(_ context.Context, settings Settings) error {
	return s.withLock(func() error {
		return s.writeLocked(settings)
	})
}

// Mutate loads the current document, applies fn, and saves the result
// under a single lock acquisition so the read-modify-write is atomic
// with respect to other Store instances in this process or others.
func (s *Store) Mutate(_ context.Context, fn func(*Settings) error) error {
	return s.withLock(func() error {
		settings, _, err := s.readOrInit()
		if err != nil {
			return err
		}
		if err := fn(&settings); err != nil {
			return err
		}
		return s.writeLocked(settings)
	})
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("settings: acquire lock: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *Store) readOrInit() (Settings, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), true, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("settings: read: %w", err)
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, false, fmt.Errorf("settings: parse: %w", err)
	}
	return out, false, nil
}

func (s *Store) writeLocked(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mcp_settings-*.tmp")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
