package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps the store in a map. Used by tests and by scratch
// deployments that do not need persistence.
type MemoryBackend struct {
	mu         sync.RWMutex
	values     map[string][]byte
	namespaces map[string]bool
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:     make(map[string][]byte),
		namespaces: make(map[string]bool),
	}
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; !ok {
		return ErrNotFound
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryBackend) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Exists(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.values[key]
	return ok, nil
}

func (m *MemoryBackend) EnsureNamespace(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.namespaces[name] = true
	return nil
}

// HasNamespace reports whether EnsureNamespace was called for name.
func (m *MemoryBackend) HasNamespace(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.namespaces[name]
}
