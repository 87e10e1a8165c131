// Package file stores configuration documents as pretty-printed JSON files,
// one per key, so that the gateway and the bot process can share them.
//
// The version check in Put holds within one process only. Two processes
// writing the same key at once both succeed and the later rename wins.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/acs-lite/mikrotik-gateway/internal/storage"
)

var _ storage.ConfigStore = (*Store)(nil)

const versionField = "version"

// Store is a directory of JSON documents. Each document is a JSON object whose
// "version" member carries the optimistic-concurrency version.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New prepares the directory backing the store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op; files are not held open.
func (s *Store) Close() error {
	return nil
}

// Get reads the document stored under key.
func (s *Store) Get(ctx context.Context, key string) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

// Put replaces the document under key when expectedVersion matches.
func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		current = storage.Document{}
	case err != nil:
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, fmt.Errorf("%s: have %d, want %d: %w", key, current.Version, expectedVersion, storage.ErrVersionConflict)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(value, &fields); err != nil {
		return 0, fmt.Errorf("%s: document must be a JSON object: %w", key, err)
	}
	next := expectedVersion + 1
	fields[versionField] = json.RawMessage(fmt.Sprintf("%d", next))

	payload, err := json.MarshalIndent(fields, "", "    ")
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(s.path(key), payload); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) read(key string) (storage.Document, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Document{}, storage.ErrNotFound
		}
		return storage.Document{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return storage.Document{}, storage.ErrNotFound
	}
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return storage.Document{}, fmt.Errorf("%s: %w", key, err)
	}
	// documents written by hand carry no version yet
	if head.Version == 0 {
		head.Version = 1
	}
	return storage.Document{Value: raw, Version: head.Version}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func writeAtomic(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
