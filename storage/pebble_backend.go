package storage

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Ensure PebbleBackend implements Backend
var _ Backend = (*PebbleBackend)(nil)

// PebbleBackend implements the Backend interface using PebbleDB
type PebbleBackend struct {
	db        *pebble.DB
	config    *BackendConfig
	logger    *zap.Logger
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool
}

// NewPebbleBackend creates a new PebbleDB backend
func NewPebbleBackend(config *BackendConfig, logger *zap.Logger) (*PebbleBackend, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := pebble.NewCache(int64(config.Cache) << 20)
	defer cache.Unref()

	// Configure PebbleDB options
	opts := &pebble.Options{
		Cache:                    cache,
		MaxOpenFiles:             config.MaxOpenFiles,
		MemTableSize:             uint64(config.WriteBuffer) << 20,
		DisableWAL:               config.DisableWAL,
		MaxConcurrentCompactions: func() int { return 1 },
		ErrorIfExists:            false,
		ErrorIfNotExists:         config.ReadOnly,
		ReadOnly:                 config.ReadOnly,
	}

	// Open database
	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	writeOpts := pebble.Sync
	if config.DisableWAL {
		writeOpts = pebble.NoSync
	}

	logger.Info("pebble backend opened",
		zap.String("path", config.Path),
		zap.Bool("read_only", config.ReadOnly),
	)

	return &PebbleBackend{
		db:        db,
		config:    config,
		logger:    logger,
		writeOpts: writeOpts,
	}, nil
}

// Type returns the backend type
func (b *PebbleBackend) Type() BackendType {
	return BackendTypePebble
}

// Get retrieves a committed value by key
func (b *PebbleBackend) Get(key []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return pebbleGet(b.db, key)
}

// Has checks if a committed key exists
func (b *PebbleBackend) Has(key []byte) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	return pebbleHas(b.db, key)
}

// NewIterator creates an iterator over committed keys in [start, end)
func (b *PebbleBackend) NewIterator(start, end []byte) (Iterator, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	iter.First()
	return &PebbleIterator{iter: iter}, nil
}

// NewSession opens an indexed batch so staged writes are readable before commit
func (b *PebbleBackend) NewSession() (Session, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if b.config.ReadOnly {
		return nil, ErrReadOnly
	}
	return &pebbleSession{
		backend: b,
		batch:   b.db.NewIndexedBatch(),
	}, nil
}

// Close closes the backend
func (b *PebbleBackend) Close() error {
	if b.closed.Swap(true) {
		return nil // Already closed
	}
	b.logger.Info("pebble backend closed", zap.String("path", b.config.Path))
	return b.db.Close()
}

// pebbleReader is satisfied by both *pebble.DB and *pebble.Batch
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func pebbleGet(r pebbleReader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// Copy value since it's only valid until closer is closed
	return copyBytes(value), nil
}

func pebbleHas(r pebbleReader, key []byte) (bool, error) {
	_, closer, err := r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// =============================================================================
// PebbleIterator
// =============================================================================

// PebbleIterator implements Iterator for PebbleDB
type PebbleIterator struct {
	iter   *pebble.Iterator
	closed bool
}

// Valid returns true if the iterator is positioned at a valid item
func (i *PebbleIterator) Valid() bool {
	return !i.closed && i.iter.Valid()
}

// Next advances the iterator to the next item
func (i *PebbleIterator) Next() {
	i.iter.Next()
}

// Key returns the current key
func (i *PebbleIterator) Key() []byte {
	return i.iter.Key()
}

// Value returns the current value
func (i *PebbleIterator) Value() []byte {
	return i.iter.Value()
}

// Error returns any accumulated error
func (i *PebbleIterator) Error() error {
	return i.iter.Error()
}

// Close releases iterator resources
func (i *PebbleIterator) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	return i.iter.Close()
}

// =============================================================================
// pebbleSession
// =============================================================================

// pebbleSession implements Session on top of an indexed pebble batch
type pebbleSession struct {
	backend *PebbleBackend
	batch   *pebble.Batch
	count   int
	closed  bool
}

func (s *pebbleSession) ensureOpen() error {
	if s.closed || s.backend.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get reads through staged writes, falling back to committed state
func (s *pebbleSession) Get(key []byte) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return pebbleGet(s.batch, key)
}

// Has checks staged and committed state for key
func (s *pebbleSession) Has(key []byte) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	return pebbleHas(s.batch, key)
}

// Set stages a set operation
func (s *pebbleSession) Set(key, value []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.batch.Set(key, value, nil); err != nil {
		return err
	}
	s.count++
	return nil
}

// Delete stages a delete operation
func (s *pebbleSession) Delete(key []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.batch.Delete(key, nil); err != nil {
		return err
	}
	s.count++
	return nil
}

// NewIterator iterates over the merged view of staged and committed keys
func (s *pebbleSession) NewIterator(start, end []byte) (Iterator, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	iter, err := s.batch.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	iter.First()
	return &PebbleIterator{iter: iter}, nil
}

// Commit writes all staged operations atomically and starts a fresh batch
func (s *pebbleSession) Commit() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.batch.Commit(s.backend.writeOpts); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return s.renew()
}

// Discard drops staged operations
func (s *pebbleSession) Discard() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.renew()
}

func (s *pebbleSession) renew() error {
	err := s.batch.Close()
	s.batch = s.backend.db.NewIndexedBatch()
	s.count = 0
	return err
}

// Count returns the number of operations staged since the last commit
func (s *pebbleSession) Count() int {
	return s.count
}

// Close releases batch resources without committing
func (s *pebbleSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.batch.Close()
}

// =============================================================================
// Registration
// =============================================================================

func init() {
	// Register PebbleDB backend with the global registry
	MustRegisterBackend(
		BackendTypePebble,
		func(config *BackendConfig, logger *zap.Logger) (Backend, error) {
			return NewPebbleBackend(config, logger)
		},
		&BackendMetadata{
			Name:        "PebbleDB",
			Description: "High-performance key-value store from CockroachDB",
			Features: []string{
				"atomic-batches",
				"indexed-batches",
				"range-scans",
			},
		},
	)
}
