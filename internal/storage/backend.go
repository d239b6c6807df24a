// Package storage provides the durable key/value backends for the sal server.
package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrKeyEmpty is returned when an empty key is used.
	ErrKeyEmpty = errors.New("storage: empty key")

	// ErrClosed is returned when operating on a closed backend.
	ErrClosed = errors.New("storage: backend closed")
)

// Backend is a flat key/value store whose writes survive resets.
//
// Put must be durably acknowledged before it returns: the consensus core
// relies on a successful Put meaning the value will be observable after a
// power loss. A failed Put must leave the previous value intact.
type Backend interface {
	// Get returns the value for the key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put durably stores the value under the key.
	Put(key string, value []byte) error

	// Close releases underlying resources.
	Close() error
}
