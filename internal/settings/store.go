package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Document is the persisted settings state: all guild and user overrides.
// Map keys are Discord snowflake IDs as strings.
type Document struct {
	Guilds map[string]*GuildDocument `yaml:"guilds"`
}

// GuildDocument holds one guild's overrides and its users' overrides.
type GuildDocument struct {
	Overrides map[string]any            `yaml:"overrides,omitempty"`
	Users     map[string]map[string]any `yaml:"users,omitempty"`
}

// Store persists the settings document. Implementations must tolerate being
// called from multiple goroutines; the Manager serialises writes itself but
// tests may not.
type Store interface {
	// Load reads the persisted document. A missing underlying file yields an
	// empty document, not an error.
	Load() (*Document, error)

	// Save writes the document. Save must be atomic: a crash mid-write must
	// never leave a truncated document behind.
	Save(doc *Document) error
}

// FileStore persists the settings document as a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// Compile-time interface assertion.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore writing to path. Parent directories are
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Document{Guilds: map[string]*GuildDocument{}}, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", s.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	if doc.Guilds == nil {
		doc.Guilds = map[string]*GuildDocument{}
	}
	return &doc, nil
}

// Save implements Store. The document is written to a temporary file in the
// same directory and renamed into place.
func (s *FileStore) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("settings: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: rename %s: %w", tmpName, err)
	}
	return nil
}

// MemoryStore is an in-memory Store used in tests and as a fallback when no
// settings path is configured.
type MemoryStore struct {
	mu  sync.Mutex
	doc *Document

	// LoadErr, if non-nil, is returned by Load. Used in tests.
	LoadErr error

	// SaveErr, if non-nil, is returned by Save. Used in tests.
	SaveErr error

	// Saves counts Save calls. Used in tests.
	Saves int
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// Load implements Store.
func (s *MemoryStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.doc == nil {
		return &Document{Guilds: map[string]*GuildDocument{}}, nil
	}
	return s.doc, nil
}

// Save implements Store.
func (s *MemoryStore) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.doc = doc
	return nil
}
