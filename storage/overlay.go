package storage

import (
	"bytes"

	"github.com/google/btree"
)

// overlay holds the staged writes of a session in key order.
// Deletes are kept as tombstones so they can hide committed keys.
type overlay struct {
	tree  *btree.BTreeG[memItem]
	count int
}

func newOverlay() *overlay {
	return &overlay{tree: btree.NewG[memItem](memoryDegree, lessMemItem)}
}

// get returns the staged item for key; ok is false when key was not touched
func (o *overlay) get(key []byte) (memItem, bool) {
	return o.tree.Get(memItem{key: key})
}

func (o *overlay) set(key, value []byte) {
	o.tree.ReplaceOrInsert(memItem{key: copyBytes(key), value: copyBytes(value)})
	o.count++
}

func (o *overlay) delete(key []byte) {
	o.tree.ReplaceOrInsert(memItem{key: copyBytes(key), deleted: true})
	o.count++
}

// items returns staged items in [start, end), tombstones included
func (o *overlay) items(start, end []byte) []memItem {
	var items []memItem
	ascendRange(o.tree, start, end, func(item memItem) bool {
		items = append(items, item)
		return true
	})
	return items
}

// ascend visits every staged item in key order
func (o *overlay) ascend(fn btree.ItemIteratorG[memItem]) {
	o.tree.Ascend(fn)
}

func (o *overlay) reset() {
	o.tree.Clear(false)
	o.count = 0
}

// =============================================================================
// mergeIterator
// =============================================================================

// mergeIterator walks a committed iterator and a staged slice together.
// A staged item shadows a committed item with the same key and a staged
// tombstone hides it.
type mergeIterator struct {
	committed Iterator
	staged    []memItem
	pos       int

	key   []byte
	value []byte
	valid bool
}

func newMergeIterator(committed Iterator, staged []memItem) *mergeIterator {
	m := &mergeIterator{committed: committed, staged: staged}
	m.advance()
	return m
}

func (m *mergeIterator) advance() {
	for {
		committedValid := m.committed.Valid()
		stagedValid := m.pos < len(m.staged)

		if !committedValid && !stagedValid {
			m.valid = false
			m.key, m.value = nil, nil
			return
		}

		if committedValid {
			cmp := -1
			if stagedValid {
				cmp = bytes.Compare(m.committed.Key(), m.staged[m.pos].key)
			}
			if cmp < 0 {
				// committed iterators may reuse their buffers on Next
				m.key = copyBytes(m.committed.Key())
				m.value = copyBytes(m.committed.Value())
				m.valid = true
				m.committed.Next()
				return
			}
			if cmp == 0 {
				m.committed.Next()
			}
		}

		item := m.staged[m.pos]
		m.pos++
		if item.deleted {
			continue
		}
		m.key, m.value = item.key, item.value
		m.valid = true
		return
	}
}

func (m *mergeIterator) Valid() bool {
	return m.valid
}

func (m *mergeIterator) Next() {
	m.advance()
}

func (m *mergeIterator) Key() []byte {
	return m.key
}

func (m *mergeIterator) Value() []byte {
	return m.value
}

func (m *mergeIterator) Error() error {
	return m.committed.Error()
}

func (m *mergeIterator) Close() error {
	m.staged = nil
	m.valid = false
	return m.committed.Close()
}
