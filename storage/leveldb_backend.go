package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_iterator "github.com/syndtr/goleveldb/leveldb/iterator"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// Ensure LevelDBBackend implements Backend
var _ Backend = (*LevelDBBackend)(nil)

// LevelDBBackend implements the Backend interface using goleveldb
type LevelDBBackend struct {
	db        *leveldb.DB
	config    *BackendConfig
	logger    *zap.Logger
	writeOpts *ldb_opt.WriteOptions
	closed    atomic.Bool
}

// NewLevelDBBackend opens (or creates) a goleveldb database
func NewLevelDBBackend(config *BackendConfig, logger *zap.Logger) (*LevelDBBackend, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	opt := &ldb_opt.Options{
		ErrorIfExist:           false,
		ErrorIfMissing:         config.ReadOnly,
		ReadOnly:               config.ReadOnly,
		BlockCacheCapacity:     config.Cache * ldb_opt.MiB,
		OpenFilesCacheCapacity: config.MaxOpenFiles,
		WriteBuffer:            config.WriteBuffer * ldb_opt.MiB,
		NoSync:                 config.DisableWAL,
	}

	db, err := leveldb.OpenFile(config.Path, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb database: %w", err)
	}

	logger.Info("leveldb backend opened",
		zap.String("path", config.Path),
		zap.Bool("read_only", config.ReadOnly),
	)

	return &LevelDBBackend{
		db:        db,
		config:    config,
		logger:    logger,
		writeOpts: &ldb_opt.WriteOptions{Sync: !config.DisableWAL},
	}, nil
}

// Type returns the backend type
func (b *LevelDBBackend) Type() BackendType {
	return BackendTypeLevelDB
}

// Get retrieves a committed value by key
func (b *LevelDBBackend) Get(key []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return leveldbGet(b.db.Get(key, nil))
}

// Has checks if a committed key exists
func (b *LevelDBBackend) Has(key []byte) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	return b.db.Has(key, nil)
}

// NewIterator creates an iterator over committed keys in [start, end)
func (b *LevelDBBackend) NewIterator(start, end []byte) (Iterator, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return newLevelDBIterator(b.db.NewIterator(&ldb_util.Range{Start: start, Limit: end}, nil)), nil
}

// NewSession returns a session that stages writes in memory and applies them
// as one leveldb batch on Commit. Sessions take no database lock, so any
// number of them may be open at once.
func (b *LevelDBBackend) NewSession() (Session, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if b.config.ReadOnly {
		return nil, ErrReadOnly
	}
	return &leveldbSession{backend: b, staged: newOverlay()}, nil
}

// Close closes the backend
func (b *LevelDBBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.logger.Info("leveldb backend closed", zap.String("path", b.config.Path))
	return b.db.Close()
}

func leveldbGet(value []byte, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// =============================================================================
// leveldbIterator
// =============================================================================

// leveldbIterator adapts a goleveldb iterator, which starts before the first
// item, to the positioned Iterator contract
type leveldbIterator struct {
	iter   ldb_iterator.Iterator
	closed bool
}

func newLevelDBIterator(iter ldb_iterator.Iterator) *leveldbIterator {
	iter.First()
	return &leveldbIterator{iter: iter}
}

func (i *leveldbIterator) Valid() bool {
	return !i.closed && i.iter.Valid()
}

func (i *leveldbIterator) Next() {
	i.iter.Next()
}

func (i *leveldbIterator) Key() []byte {
	return i.iter.Key()
}

func (i *leveldbIterator) Value() []byte {
	return i.iter.Value()
}

func (i *leveldbIterator) Error() error {
	return i.iter.Error()
}

func (i *leveldbIterator) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.iter.Release()
	return i.iter.Error()
}

// =============================================================================
// leveldbSession
// =============================================================================

type leveldbSession struct {
	backend *LevelDBBackend
	staged  *overlay
	closed  bool
}

func (s *leveldbSession) ensureOpen() error {
	if s.closed || s.backend.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *leveldbSession) Get(key []byte) ([]byte, error) {
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

func (s *leveldbSession) Has(key []byte) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if item, ok := s.staged.get(key); ok {
		return !item.deleted, nil
	}
	return s.backend.Has(key)
}

func (s *leveldbSession) Set(key, value []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.set(key, value)
	return nil
}

func (s *leveldbSession) Delete(key []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.delete(key)
	return nil
}

// NewIterator merges staged items over committed keys in [start, end)
func (s *leveldbSession) NewIterator(start, end []byte) (Iterator, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	committed, err := s.backend.NewIterator(start, end)
	if err != nil {
		return nil, err
	}
	return newMergeIterator(committed, s.staged.items(start, end)), nil
}

// Commit writes all staged items in a single batch
func (s *leveldbSession) Commit() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.staged.count == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	s.staged.ascend(func(item memItem) bool {
		if item.deleted {
			batch.Delete(item.key)
		} else {
			batch.Put(item.key, item.value)
		}
		return true
	})
	if err := s.backend.db.Write(batch, s.backend.writeOpts); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	s.staged.reset()
	return nil
}

func (s *leveldbSession) Discard() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.staged.reset()
	return nil
}

func (s *leveldbSession) Count() int {
	return s.staged.count
}

func (s *leveldbSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.staged.reset()
	return nil
}

func init() {
	MustRegisterBackend(
		BackendTypeLevelDB,
		func(config *BackendConfig, logger *zap.Logger) (Backend, error) {
			return NewLevelDBBackend(config, logger)
		},
		&BackendMetadata{
			Name:        "LevelDB",
			Description: "Pure Go LevelDB implementation (syndtr/goleveldb)",
			Features: []string{
				"atomic-batches",
				"range-scans",
			},
		},
	)
}
