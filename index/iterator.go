package index

import (
	"fmt"

	"github.com/0xmhha/indexdb-go/storage"
)

// ValueIterator yields the values of one key in ascending position order.
//
// Call Next before each Value. The underlying scan is released when Next
// returns false or on Close, whichever comes first, so an abandoned iterator
// must be closed. Close is idempotent. Iterators over a storage.Session must
// be closed before the session commits.
type ValueIterator struct {
	iter    storage.Iterator
	index   *Index
	next    uint64
	end     uint64
	current uint64
	value   []byte
	err     error
	done    bool
}

// Next advances to the next value and reports whether there is one
func (it *ValueIterator) Next() bool {
	if it.done {
		return false
	}

	if !it.iter.Valid() {
		if err := it.iter.Error(); err != nil {
			it.fail(fmt.Errorf("iterator error: %w", err))
			return false
		}
		if it.next < it.end {
			it.fail(fmt.Errorf("%w: missing value at position %d", ErrCorruptIndex, it.next))
			return false
		}
		it.Close()
		return false
	}

	position, err := ParseValueKey(it.iter.Key())
	if err != nil {
		it.fail(fmt.Errorf("%w: %v", ErrCorruptIndex, err))
		return false
	}
	if position != it.next {
		it.fail(fmt.Errorf("%w: expected position %d, found %d", ErrCorruptIndex, it.next, position))
		return false
	}

	// Copy value since it's only valid until the cursor moves
	it.value = append([]byte(nil), it.iter.Value()...)
	it.current = position
	it.next++
	it.iter.Next()
	it.index.metrics.RecordValueRead(it.index.namespace)
	return true
}

// Position returns the position of the current value
func (it *ValueIterator) Position() uint64 {
	return it.current
}

// Value returns the current value
func (it *ValueIterator) Value() []byte {
	return it.value
}

// Err returns the error that stopped iteration, if any
func (it *ValueIterator) Err() error {
	return it.err
}

// Close releases the underlying scan
func (it *ValueIterator) Close() error {
	it.done = true
	if it.iter == nil {
		return nil
	}
	err := it.iter.Close()
	it.iter = nil
	return err
}

// Collect drains the iterator and closes it
func (it *ValueIterator) Collect() ([][]byte, error) {
	defer it.Close()

	var values [][]byte
	for it.Next() {
		values = append(values, it.Value())
	}
	return values, it.Err()
}

func (it *ValueIterator) fail(err error) {
	it.err = err
	it.Close()
}

// KeyIterator yields keys with at least one value in ascending byte order.
// It follows the same release rules as ValueIterator.
type KeyIterator struct {
	iter  storage.Iterator
	index *Index
	key   []byte
	count uint64
	err   error
	done  bool
}

// Next advances to the next key and reports whether there is one
func (it *KeyIterator) Next() bool {
	if it.done {
		return false
	}

	for ; it.iter.Valid(); it.iter.Next() {
		count, err := DecodeCount(it.iter.Value())
		if err != nil {
			it.fail(err)
			return false
		}
		if count == 0 {
			continue
		}

		key, err := ParseCountKey(it.index.namespace, it.iter.Key())
		if err != nil {
			it.fail(fmt.Errorf("%w: %v", ErrCorruptIndex, err))
			return false
		}

		it.key = key
		it.count = count
		it.iter.Next()
		it.index.metrics.RecordKeyEnumerated(it.index.namespace)
		return true
	}

	if err := it.iter.Error(); err != nil {
		it.fail(fmt.Errorf("iterator error: %w", err))
		return false
	}
	it.Close()
	return false
}

// Key returns the current key
func (it *KeyIterator) Key() []byte {
	return it.key
}

// Count returns the number of values stored under the current key
func (it *KeyIterator) Count() uint64 {
	return it.count
}

// Err returns the error that stopped iteration, if any
func (it *KeyIterator) Err() error {
	return it.err
}

// Close releases the underlying scan
func (it *KeyIterator) Close() error {
	it.done = true
	if it.iter == nil {
		return nil
	}
	err := it.iter.Close()
	it.iter = nil
	return err
}

// Collect drains the iterator and closes it
func (it *KeyIterator) Collect() ([][]byte, error) {
	defer it.Close()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}
	return keys, it.Err()
}

func (it *KeyIterator) fail(err error) {
	it.err = err
	it.Close()
}
