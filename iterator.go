// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

// RowIter walks a Table's records in the order the underlying key
// index stores its entries in, which is neither key order nor, in
// general, slot order. It is a
// snapshot: entries added after the iterator is constructed are not
// observed. Grounded on bpowers-bit's datafile Iter's pull-based
// Next()/Close shape, adapted from a channel producer to a plain
// cursor since nothing here needs to run concurrently with the
// caller.
type RowIter struct {
	t       *Table
	entries []rowEntry
	pos     int

	lastKey  []byte
	lastSlot int32
	hasLast  bool
}

type rowEntry struct {
	key  []byte
	slot int32
}

// Rows returns a RowIter over every record currently in the table, in
// the key index's internal entry order.
func (t *Table) Rows() *RowIter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newRowIterLocked()
}

func (t *Table) newRowIterLocked() *RowIter {
	groups := t.idx.Entries()
	entries := make([]rowEntry, 0, len(groups))
	for _, g := range groups {
		if len(g.Slots) == 0 {
			continue
		}
		entries = append(entries, rowEntry{key: []byte(g.Key), slot: g.Slots[0]})
	}
	return &RowIter{t: t, entries: entries}
}

// Next advances the iterator and returns the next record, or ok=false
// once the snapshot is exhausted.
func (ri *RowIter) Next() (record []byte, ok bool, err error) {
	ri.t.mu.Lock()
	defer ri.t.mu.Unlock()
	if ri.pos >= len(ri.entries) {
		ri.hasLast = false
		return nil, false, nil
	}
	e := ri.entries[ri.pos]
	ri.pos++
	rec, err := ri.t.recordFor(e.key, e.slot)
	if err != nil {
		return nil, false, err
	}
	ri.lastKey, ri.lastSlot, ri.hasLast = e.key, e.slot, true
	return rec, true, nil
}

// Remove deletes the record most recently returned by Next via
// swap-on-delete. Per the source this was ported from, calling Remove
// and then continuing to call Next is documented-undefined: the
// swap-on-delete relocation can move a not-yet-visited record into an
// already-visited slot, or vice versa. Remove is only well-defined as
// the last call made before the iterator is discarded.
func (ri *RowIter) Remove() error {
	ri.t.mu.Lock()
	defer ri.t.mu.Unlock()
	if !ri.hasLast {
		return errNoCurrentRow
	}
	key, slot := ri.lastKey, ri.lastSlot
	ri.hasLast = false
	relocKey, relocated, err := ri.t.physicalRemove(slot)
	if err != nil {
		return err
	}
	ri.t.idx.Remove(key)
	if relocated {
		if err := ri.t.putIndex(relocKey, slot); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a fresh RowIter over the table's current contents,
// independent of this one's position.
func (ri *RowIter) Clone() *RowIter {
	ri.t.mu.Lock()
	defer ri.t.mu.Unlock()
	return ri.t.newRowIterLocked()
}

// OrderedRowIter walks a Table's records in ascending or descending
// key order, optionally starting from a given key. Unlike RowIter it
// re-resolves each key against the live index on every call, so it
// raises ErrConcurrentModification instead of silently returning a
// stale or relocated record if a key it captured has since been
// removed. It does not support Remove.
type OrderedRowIter struct {
	t         *Table
	cursor    keyCursor
	ascending bool
	start     []byte
	dead      bool
}

// keyCursor is the subset of keyindex.KeyCursor this file depends on,
// named locally so this file doesn't need to import the internal
// package just to spell the type.
type keyCursor interface {
	Next() ([]byte, bool)
}

// RowsOrdered returns an OrderedRowIter over the table's records in
// key order. If start is non-nil, iteration begins at the first key
// not before (ascending) or not after (descending) start.
func (t *Table) RowsOrdered(ascending bool, start []byte) *OrderedRowIter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newOrderedRowIterLocked(ascending, start)
}

func (t *Table) newOrderedRowIterLocked(ascending bool, start []byte) *OrderedRowIter {
	return &OrderedRowIter{
		t:         t,
		cursor:    t.idx.Keys(ascending, start),
		ascending: ascending,
		start:     start,
	}
}

// Next advances the iterator and returns the next record in key
// order, or ok=false once exhausted.
func (ori *OrderedRowIter) Next() (record []byte, ok bool, err error) {
	if ori.dead {
		return nil, false, ErrConcurrentModification
	}
	ori.t.mu.Lock()
	defer ori.t.mu.Unlock()
	key, ok := ori.cursor.Next()
	if !ok {
		return nil, false, nil
	}
	rec, found, err := ori.t.getLocked(key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		ori.dead = true
		return nil, false, ErrConcurrentModification
	}
	return rec, true, nil
}

// Clone returns a fresh OrderedRowIter with the same (ascending,
// start) configuration, independent of this one's position.
func (ori *OrderedRowIter) Clone() *OrderedRowIter {
	ori.t.mu.Lock()
	defer ori.t.mu.Unlock()
	return ori.t.newOrderedRowIterLocked(ori.ascending, ori.start)
}

// KeyIter walks a Table's keys in ascending or descending order
// without resolving each one to a record.
type KeyIter struct {
	t         *Table
	cursor    keyCursor
	ascending bool
	start     []byte
}

// Keys returns a KeyIter over the table's keys in key order. If start
// is non-nil, iteration begins at the first key not before (ascending)
// or not after (descending) start.
func (t *Table) Keys(ascending bool, start []byte) *KeyIter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newKeyIterLocked(ascending, start)
}

func (t *Table) newKeyIterLocked(ascending bool, start []byte) *KeyIter {
	return &KeyIter{
		t:         t,
		cursor:    t.idx.Keys(ascending, start),
		ascending: ascending,
		start:     start,
	}
}

// Next advances the iterator and returns the next key, or ok=false
// once exhausted.
func (ki *KeyIter) Next() (key []byte, ok bool) {
	ki.t.mu.Lock()
	defer ki.t.mu.Unlock()
	return ki.cursor.Next()
}

// Clone returns a fresh KeyIter with the same (ascending, start)
// configuration, independent of this one's position.
func (ki *KeyIter) Clone() *KeyIter {
	ki.t.mu.Lock()
	defer ki.t.mu.Unlock()
	return ki.t.newKeyIterLocked(ki.ascending, ki.start)
}
