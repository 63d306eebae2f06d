// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const metaFileName = "meta.yaml"

type (
	// FileMetaStore keeps one meta.yaml next to each clone:
	// <dir>/<key>/meta.yaml.
	FileMetaStore struct {
		dir string
	}

	// MemoryMetaStore keeps entries in memory.
	MemoryMetaStore struct {
		mu      sync.Mutex
		entries map[string]CacheEntry
	}
)

// NewFileMetaStore creates a store under dir.
func NewFileMetaStore(dir string) *FileMetaStore {
	return &FileMetaStore{dir: dir}
}

// Load reads the entry for key.
func (s *FileMetaStore) Load(key string) (CacheEntry, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key, metaFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}

	var entry CacheEntry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("parse %s metadata: %w", key, err)
	}
	return entry, true, nil
}

// Save writes entry atomically.
func (s *FileMetaStore) Save(entry CacheEntry) error {
	dir := filepath.Join(s.dir, entry.ContentHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, metaFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, metaFileName))
}

// List returns every readable entry. Unreadable files are skipped.
func (s *FileMetaStore) List() ([]CacheEntry, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "*/"+metaFileName)
	if err != nil {
		return nil, err
	}

	out := make([]CacheEntry, 0, len(matches))
	for _, m := range matches {
		entry, ok, err := s.Load(path.Dir(m))
		if err != nil || !ok {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// NewMemoryMetaStore creates an empty in-memory store.
func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{entries: make(map[string]CacheEntry)}
}

// Load returns the entry for key.
func (s *MemoryMetaStore) Load(key string) (CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Save stores entry.
func (s *MemoryMetaStore) Save(entry CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ContentHash] = entry
	return nil
}

// List returns every entry.
func (s *MemoryMetaStore) List() ([]CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}
