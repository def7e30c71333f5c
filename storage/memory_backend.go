package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"
)

// Ensure MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)

// memoryDegree is the btree degree used for committed and staged trees
const memoryDegree = 32

// memItem is one key-value pair. A deleted item marks a staged tombstone.
type memItem struct {
	key     []byte
	value   []byte
	deleted bool
}

func lessMemItem(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// ascendRange walks tree over [start, end), nil bounds being open
func ascendRange(tree *btree.BTreeG[memItem], start, end []byte, fn btree.ItemIteratorG[memItem]) {
	switch {
	case start == nil && end == nil:
		tree.Ascend(fn)
	case start == nil:
		tree.AscendLessThan(memItem{key: end}, fn)
	case end == nil:
		tree.AscendGreaterOrEqual(memItem{key: start}, fn)
	default:
		if bytes.Compare(start, end) >= 0 {
			return
		}
		tree.AscendRange(memItem{key: start}, memItem{key: end}, fn)
	}
}

// MemoryBackend is an ordered in-memory Backend.
// Nothing survives Close; it exists for tests and throwaway runs.
type MemoryBackend struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[memItem]
	logger *zap.Logger
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend(logger *zap.Logger) *MemoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBackend{
		tree:   btree.NewG[memItem](memoryDegree, lessMemItem),
		logger: logger,
	}
}

// Type returns the backend type
func (b *MemoryBackend) Type() BackendType {
	return BackendTypeMemory
}

// Get retrieves a committed value by key
func (b *MemoryBackend) Get(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	item, ok := b.tree.Get(memItem{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(item.value), nil
}

// Has checks if a committed key exists
func (b *MemoryBackend) Has(key []byte) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ErrClosed
	}
	return b.tree.Has(memItem{key: key}), nil
}

// NewIterator returns an iterator over a snapshot of committed keys in [start, end)
func (b *MemoryBackend) NewIterator(start, end []byte) (Iterator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	return &sliceIterator{items: b.snapshot(start, end)}, nil
}

// snapshot copies committed items in [start, end); caller holds b.mu
func (b *MemoryBackend) snapshot(start, end []byte) []memItem {
	var items []memItem
	ascendRange(b.tree, start, end, func(item memItem) bool {
		items = append(items, item)
		return true
	})
	return items
}

// NewSession opens a session that stages writes in its own tree
func (b *MemoryBackend) NewSession() (Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	return &memorySession{backend: b, staged: newOverlay()}, nil
}

// Close drops all data
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.tree.Clear(false)
	return nil
}

// Len returns the number of committed keys
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len()
}

// =============================================================================
// memorySession
// =============================================================================

type memorySession struct {
	backend *MemoryBackend
	staged  *overlay
	closed  bool
}

func (s *memorySession) ensureOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memorySession) Get(key []byte) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if item, ok := s.staged.get(key); ok {
		if item.deleted {
			return nil, ErrNotFound
		}
		return copyBytes(item.value), nil
	}
	return s.backend.Get(key)
}

func (s *memorySession) Has(key []byte) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if item, ok := s.staged.get(key); ok {
		return !item.deleted, nil
	}
	return s.backend.Has(key)
}

func (s *memorySession) Set(key, value []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.set(key, value)
	return nil
}

func (s *memorySession) Delete(key []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.delete(key)
	return nil
}

// NewIterator merges staged items over a snapshot of committed items
func (s *memorySession) NewIterator(start, end []byte) (Iterator, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	committed, err := s.backend.NewIterator(start, end)
	if err != nil {
		return nil, err
	}
	return newMergeIterator(committed, s.staged.items(start, end)), nil
}

// Commit applies all staged items to the committed tree under one lock
func (s *memorySession) Commit() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	if s.backend.closed {
		return ErrClosed
	}
	s.staged.ascend(func(item memItem) bool {
		if item.deleted {
			s.backend.tree.Delete(item)
		} else {
			s.backend.tree.ReplaceOrInsert(item)
		}
		return true
	})
	s.staged.reset()
	return nil
}

func (s *memorySession) Discard() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.reset()
	return nil
}

func (s *memorySession) Count() int {
	return s.staged.count
}

func (s *memorySession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.staged.reset()
	return nil
}

// =============================================================================
// sliceIterator
// =============================================================================

// sliceIterator iterates over a materialised, ordered slice of items
type sliceIterator struct {
	items []memItem
	pos   int
}

func (i *sliceIterator) Valid() bool {
	return i.pos < len(i.items)
}

func (i *sliceIterator) Next() {
	i.pos++
}

func (i *sliceIterator) Key() []byte {
	return i.items[i.pos].key
}

func (i *sliceIterator) Value() []byte {
	return i.items[i.pos].value
}

func (i *sliceIterator) Error() error {
	return nil
}

func (i *sliceIterator) Close() error {
	i.items = nil
	i.pos = 0
	return nil
}

func init() {
	MustRegisterBackend(
		BackendTypeMemory,
		func(config *BackendConfig, logger *zap.Logger) (Backend, error) {
			return NewMemoryBackend(logger), nil
		},
		&BackendMetadata{
			Name:        "Memory",
			Description: "Ordered in-memory store backed by google/btree",
			Features: []string{
				"atomic-batches",
				"range-scans",
			},
		},
	)
}
