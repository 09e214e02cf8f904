package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// FileStore persists all keys as a single JSON file. Writes go through a
// temp file and rename, so a crash mid-write never corrupts the data.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
}

// NewFileStore opens (or creates) the store file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: make(map[string][]byte)}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fresh store
	case err != nil:
		return nil, shared.WrapError("storage", "Open", shared.ErrStorage, "read store file", err)
	default:
		var onDisk map[string]json.RawMessage
		if err := json.Unmarshal(raw, &onDisk); err != nil {
			return nil, shared.WrapError("storage", "Open", shared.ErrInvalidFormat, "decode store file", err)
		}
		for k, v := range onDisk {
			s.data[k] = []byte(v)
		}
	}

	return s, nil
}

// Get implements KeyValueStore.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.data[key]
	if !ok {
		return nil, NotFound(key)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set implements KeyValueStore.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return s.flushLocked()
}

// Delete implements KeyValueStore.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

// Keys implements KeyValueStore.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close implements KeyValueStore.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked writes the whole map atomically. Caller holds the lock.
func (s *FileStore) flushLocked() error {
	onDisk := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		onDisk[k] = json.RawMessage(v)
	}
	raw, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return shared.WrapError("storage", "Flush", shared.ErrInvalidFormat, "encode store file", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".qiaomu-store-*")
	if err != nil {
		return shared.WrapError("storage", "Flush", shared.ErrStorage, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return shared.WrapError("storage", "Flush", shared.ErrStorage, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return shared.WrapError("storage", "Flush", shared.ErrStorage, "close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return shared.WrapError("storage", "Flush", shared.ErrStorage, "replace store file", err)
	}
	return nil
}
