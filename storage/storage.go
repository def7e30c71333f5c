package storage

import (
	"errors"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed backend or session
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only backend
	ErrReadOnly = errors.New("storage is read-only")

	// ErrInvalidConfig is returned when a backend configuration is rejected
	ErrInvalidConfig = errors.New("invalid storage config")
)

// Reader provides read access to a key-value store.
// The index reads through this interface alone
type Reader interface {
	// Get retrieves a value by key, returning ErrNotFound when absent
	Get(key []byte) ([]byte, error)

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// NewIterator creates a forward iterator over [start, end).
	// A nil end leaves the range unbounded above.
	NewIterator(start, end []byte) (Iterator, error)
}

// Writer provides write access to a key-value store
type Writer interface {
	// Set stores a key-value pair
	Set(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error
}

// KV combines Reader and Writer
type KV interface {
	Reader
	Writer
}

// Session stages writes against a backend until Commit.
//
// Staged writes are visible to reads through the same session immediately and
// become durable, and visible to other readers, atomically on Commit. Discard
// drops everything staged since the last Commit. A session is reusable after
// Commit or Discard but is not safe for concurrent use. Iterators opened on a
// session must be closed before Commit or Discard.
type Session interface {
	KV

	// Commit writes all staged operations atomically
	Commit() error

	// Discard drops all staged operations
	Discard() error

	// Count returns the number of operations staged since the last Commit
	Count() int

	// Close discards staged operations and releases session resources
	Close() error
}

// Backend is a durable key-value engine.
// Reads through a Backend see committed state only.
type Backend interface {
	Reader

	// NewSession opens a write session
	NewSession() (Session, error)

	// Close closes the backend
	Close() error

	// Type returns the backend type
	Type() BackendType
}

// Iterator provides iteration over key-value pairs.
// A new iterator is positioned at the first item of its range.
type Iterator interface {
	// Valid returns true if the iterator is positioned at a valid item
	Valid() bool

	// Next advances the iterator to the next item
	Next()

	// Key returns the current key, valid until the next call to Next
	Key() []byte

	// Value returns the current value, valid until the next call to Next
	Value() []byte

	// Error returns any accumulated error
	Error() error

	// Close releases iterator resources
	Close() error
}

// readOnlyKV rejects every write
type readOnlyKV struct {
	Reader
}

// ReadOnly wraps a Reader as a KV whose writes fail with ErrReadOnly.
// The API server uses it to serve committed state from a Backend.
func ReadOnly(r Reader) KV {
	return readOnlyKV{Reader: r}
}

func (readOnlyKV) Set(key, value []byte) error {
	return ErrReadOnly
}

func (readOnlyKV) Delete(key []byte) error {
	return ErrReadOnly
}

// copyBytes returns a copy of b that stays valid after the engine reuses its buffer
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
