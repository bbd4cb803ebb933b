package config

import (
	"fmt"
	"log/slog"
	"sync"
)

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store holds the live configuration and the file it persists to. It is
// safe for concurrent use: the main loop updates it, autosave and the crash
// reporter save it from other goroutines.
type Store struct {
	path string

	mu  sync.Mutex
	cfg *Config

	// saveMu serializes writers so saves land in call order.
	saveMu sync.Mutex
}

// NewStore returns a Store for path holding cfg. A nil cfg means defaults.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{path: path, cfg: cfg.clone()}
}

// OpenStore loads the config at path into a new Store.
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current config.
func (s *Store) Get() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.clone()
}

// Update applies fn to a copy of the current config and keeps the result if
// it validates.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg.clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	s.cfg = next
	return nil
}

// Save writes the current config to disk.
func (s *Store) Save() error {
	cfg := s.Get()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := cfg.Save(s.path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	slog.Debug("config saved", "path", s.path)
	return nil
}

// Reload re-reads the file, replacing the current config. On error the
// current config is kept. It returns the previous and new configs.
func (s *Store) Reload() (prev, next *Config, err error) {
	cfg, err := Load(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("reload config: %w", err)
	}
	s.mu.Lock()
	prev = s.cfg
	s.cfg = cfg
	s.mu.Unlock()
	return prev.clone(), cfg.clone(), nil
}
