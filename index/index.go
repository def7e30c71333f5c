// Package index maintains ordered, append-mostly value sequences per key on top
// of a storage.KV.
//
// Each (namespace, key) pair owns a count record and one value record per
// position in [0, count). Writes go to the KV handed to the constructor, which
// is normally a storage.Session; nothing here commits. The package performs no
// locking: callers serialise read-modify-write sequences against the same key.
package index

import (
	"errors"
	"fmt"
	"math"

	"github.com/0xmhha/indexdb-go/storage"
	"go.uber.org/zap"
)

// KeyState is the stored state of one key.
// An absent key reads as a present key with a zero count.
type KeyState struct {
	Present bool
	Count   uint64
}

// Len returns the number of live values
func (s KeyState) Len() uint64 {
	if !s.Present {
		return 0
	}
	return s.Count
}

// Index is an ordered sequence of values per key within one namespace
type Index struct {
	kv        storage.KV
	namespace string
	logger    *zap.Logger
	metrics   *Metrics
}

// New creates an Index over kv for namespace
func New(kv storage.KV, namespace string, logger *zap.Logger) (*Index, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv cannot be nil")
	}
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Index{
		kv:        kv,
		namespace: namespace,
		logger:    logger.With(zap.String("namespace", namespace)),
	}, nil
}

// SetMetrics attaches metrics; nil detaches them
func (i *Index) SetMetrics(m *Metrics) {
	i.metrics = m
}

// Namespace returns the namespace of the index
func (i *Index) Namespace() string {
	return i.namespace
}

// State returns the stored state of key.
// The empty key can never be written and always reads as absent.
func (i *Index) State(key []byte) (KeyState, error) {
	if len(key) == 0 {
		return KeyState{}, nil
	}

	data, err := i.kv.Get(CountKey(i.namespace, key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return KeyState{}, nil
		}
		return KeyState{}, fmt.Errorf("failed to get count: %w", err)
	}

	count, err := DecodeCount(data)
	if err != nil {
		return KeyState{}, err
	}
	return KeyState{Present: true, Count: count}, nil
}

// NumValues returns the number of values stored under key
func (i *Index) NumValues(key []byte) (uint64, error) {
	state, err := i.State(key)
	if err != nil {
		return 0, err
	}
	return state.Len(), nil
}

// Append stores value at the next position of key and returns that position
func (i *Index) Append(key, value []byte) (uint64, error) {
	if len(key) == 0 {
		return 0, ErrInvalidKey
	}

	state, err := i.State(key)
	if err != nil {
		return 0, err
	}

	position := state.Len()
	if position == math.MaxUint64 {
		return 0, ErrCountOverflow
	}

	if err := i.kv.Set(ValueKey(i.namespace, key, position), value); err != nil {
		return 0, fmt.Errorf("failed to set value: %w", err)
	}
	if err := i.kv.Set(CountKey(i.namespace, key), EncodeCount(position+1)); err != nil {
		return 0, fmt.Errorf("failed to set count: %w", err)
	}

	i.metrics.RecordAppend(i.namespace)
	i.logger.Debug("value appended",
		zap.Binary("key", key),
		zap.Uint64("position", position),
	)
	return position, nil
}

// Put stores value at position of key and drops every value after it, leaving
// position+1 values. Position may be at most the current count, so Put at the
// count is an append.
func (i *Index) Put(key []byte, position uint64, value []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	if position == math.MaxUint64 {
		return ErrCountOverflow
	}

	count, err := i.NumValues(key)
	if err != nil {
		return err
	}
	if position > count {
		return fmt.Errorf("%w: key %x has %d values, got position %d", ErrPositionMismatch, key, count, position)
	}

	for p := position + 1; p < count; p++ {
		if err := i.kv.Delete(ValueKey(i.namespace, key, p)); err != nil {
			return fmt.Errorf("failed to delete value at %d: %w", p, err)
		}
	}
	if err := i.kv.Set(ValueKey(i.namespace, key, position), value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	if position+1 != count {
		if err := i.kv.Set(CountKey(i.namespace, key), EncodeCount(position+1)); err != nil {
			return fmt.Errorf("failed to set count: %w", err)
		}
	}

	if position == count {
		i.metrics.RecordAppend(i.namespace)
	} else if dropped := count - position - 1; dropped > 0 {
		i.metrics.RecordTruncation(i.namespace, dropped)
	}
	i.logger.Debug("value stored",
		zap.Binary("key", key),
		zap.Uint64("position", position),
		zap.Uint64("previous_count", count),
	)
	return nil
}

// Get returns an iterator over the values of key from offset to the end.
// The iterator is empty when offset is at or past the end.
func (i *Index) Get(key []byte, offset int64) (*ValueIterator, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	count, err := i.NumValues(key)
	if err != nil {
		return nil, err
	}

	start := uint64(offset)
	if start >= count {
		return &ValueIterator{done: true}, nil
	}

	iter, err := i.kv.NewIterator(ValueKey(i.namespace, key, start), ValueKey(i.namespace, key, count))
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}

	return &ValueIterator{
		iter:    iter,
		next:    start,
		end:     count,
		index:   i,
		current: start,
	}, nil
}

// GetRange returns at most limit values of key starting at offset.
// A zero limit returns every value from offset on.
func (i *Index) GetRange(key []byte, offset int64, limit int) ([][]byte, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	iter, err := i.Get(key, offset)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var values [][]byte
	for (limit == 0 || len(values) < limit) && iter.Next() {
		values = append(values, iter.Value())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Truncate removes every value of key at a position >= offset.
// Truncating to zero removes the key entirely.
func (i *Index) Truncate(key []byte, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	count, err := i.NumValues(key)
	if err != nil {
		return err
	}

	keep := uint64(offset)
	if keep >= count {
		return nil
	}

	for position := keep; position < count; position++ {
		if err := i.kv.Delete(ValueKey(i.namespace, key, position)); err != nil {
			return fmt.Errorf("failed to delete value at %d: %w", position, err)
		}
	}

	countKey := CountKey(i.namespace, key)
	if keep == 0 {
		err = i.kv.Delete(countKey)
	} else {
		err = i.kv.Set(countKey, EncodeCount(keep))
	}
	if err != nil {
		return fmt.Errorf("failed to update count: %w", err)
	}

	i.metrics.RecordTruncation(i.namespace, count-keep)
	i.logger.Debug("values truncated",
		zap.Binary("key", key),
		zap.Uint64("from", keep),
		zap.Uint64("removed", count-keep),
	)
	return nil
}

// Keys returns an iterator over keys with at least one value, in ascending
// byte order, starting at the first key >= from. An empty from starts at the
// beginning.
func (i *Index) Keys(from []byte) (*KeyIterator, error) {
	prefix := CountKeyPrefix(i.namespace)
	start := prefix
	if len(from) > 0 {
		start = CountKey(i.namespace, from)
	}

	iter, err := i.kv.NewIterator(start, prefixUpperBound(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	return &KeyIterator{iter: iter, index: i}, nil
}
