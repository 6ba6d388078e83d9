package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Everything under the store is provider state, including private key
// material, so directories and files stay owner-only.
const (
	dirPerms  = 0700
	filePerms = 0600
)

// FileBackend stores key-value pairs as files under a root directory.
// Safe for concurrent use.
type FileBackend struct {
	mu   sync.RWMutex
	root string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend opens (creating if needed) a file store rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("file storage: creating root directory: %w", err)
	}
	return &FileBackend{root: dir}, nil
}

func (f *FileBackend) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file storage: reading key %q: %w", key, err)
	}
	return data, nil
}

func (f *FileBackend) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("file storage: creating directory for key %q: %w", key, err)
	}
	if err := os.WriteFile(path, value, filePerms); err != nil {
		return fmt.Errorf("file storage: writing key %q: %w", key, err)
	}
	return nil
}

func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("file storage: stat key %q: %w", key, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("file storage: deleting key %q: %w", key, err)
	}
	return nil
}

func (f *FileBackend) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0)
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file storage: listing prefix %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileBackend) Exists(key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path, err := f.keyPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: stat key %q: %w", key, err)
	}
	return true, nil
}

func (f *FileBackend) EnsureNamespace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("file storage: invalid namespace %q", name)
	}
	if err := os.MkdirAll(filepath.Join(f.root, name), dirPerms); err != nil {
		return fmt.Errorf("file storage: creating namespace %q: %w", name, err)
	}
	return nil
}

// keyPath maps a storage key to a path under the root, rejecting keys
// that would escape it.
func (f *FileBackend) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("file storage: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("file storage: invalid key %q", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file storage: key %q escapes the store", key)
	}
	return filepath.Join(f.root, clean), nil
}
