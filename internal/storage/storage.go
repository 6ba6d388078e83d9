// Package storage is the persistence layer behind the identity provider:
// a small key-value contract with a filesystem implementation, organized
// into fixed top-level namespaces.
package storage

import "errors"

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("storage: key not found")

// Storage namespaces. Keys are namespace-qualified paths such as
// "users/alice.json".
const (
	// NamespaceRP holds relying-party client registrations.
	NamespaceRP = "rp"
	// NamespaceUsers holds local account documents.
	NamespaceUsers = "users"
	// NamespaceOP holds the provider's own configuration and keys.
	NamespaceOP = "op"
)

// Namespaces returns the fixed namespace set in creation order.
func Namespaces() []string {
	return []string{NamespaceRP, NamespaceUsers, NamespaceOP}
}

// Backend is the key-value contract the provider persists through.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	Put(key string, value []byte) error

	// Delete removes key, or returns ErrNotFound when absent.
	Delete(key string) error

	// List returns the stored keys under prefix, in sorted order.
	List(prefix string) ([]string, error)

	// Exists reports whether key is present without reading it.
	Exists(key string) (bool, error)

	// EnsureNamespace makes the namespace ready for use. Creating one
	// that already exists is a no-op.
	EnsureNamespace(name string) error
}
