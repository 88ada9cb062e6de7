// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fixrow implements an embedded, single-file, fixed-record
// primary-key table: a persistent map from a fixed-width key to a
// fixed-width record, backed by a flat file of dense records, an
// in-RAM key index, and an optional in-RAM shadow of every record's
// non-key bytes. It targets workloads whose key set fits comfortably
// in memory even when the full record set may not.
package fixrow

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bpowers/fixrow/internal/keyindex"
	"github.com/bpowers/fixrow/internal/memoryoracle"
	"github.com/bpowers/fixrow/internal/recordfile"
	"github.com/bpowers/fixrow/internal/tailstore"
)

// minMemRemainingFloor and minMemRemainingFraction define
// minMemRemaining = max(minMemRemainingFloor, available/minMemRemainingFraction),
// evaluated once at construction.
const (
	minMemRemainingFloor    = 400 * 1024 * 1024
	minMemRemainingFraction = 10
)

// Table is a persistent, fixed-record primary-key table. A Table is
// not safe for concurrent use by multiple goroutines beyond the
// mutual exclusion its own methods already provide.
type Table struct {
	mu sync.Mutex

	path   string
	schema *Schema
	cfg    *config

	rf   *recordfile.RecordFile
	idx  *keyindex.KeyIndex
	tail *tailstore.TailStore // nil once evicted or never allocated

	mem             *memoryoracle.Oracle
	minMemRemaining uint64

	closed bool
}

// New opens (creating if necessary) the table at path under schema,
// running the recovery loader described in loader.go.
func New(path string, schema *Schema, opts ...Option) (*Table, error) {
	if schema == nil {
		panic("fixrow: schema must not be nil")
	}
	cfg := newConfig(opts...)
	return load(path, schema, cfg)
}

// Filename returns the path this Table was opened with.
func (t *Table) Filename() string { return t.path }

func (t *Table) memStats() TableMemoryStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := TableMemoryStats{
		Path:       t.path,
		IndexBytes: t.idx.Mem(),
	}
	if t.tail != nil {
		stats.UsesTailShadow = true
		stats.TailShadowBytes = t.tail.Mem()
	}
	return stats
}

// UsesTailShadow reports whether the in-RAM tail shadow is currently
// active. It starts true only if the tail shadow was both requested
// and affordable at load time, and is one-way: once evicted under
// memory pressure it never comes back.
func (t *Table) UsesTailShadow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tail != nil
}

// DeleteOnExit marks (or unmarks) the backing file to be removed from
// disk when Close runs.
func (t *Table) DeleteOnExit(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rf.DeleteOnExit(v)
}

// Close flushes the write-behind buffer, releases the key index and
// tail shadow, and deregisters the Table from its Registry (if any).
// The Table is unusable afterward.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.rf.Close()
	if t.tail != nil {
		t.tail.Close()
		t.tail = nil
	}
	t.idx.Clear()
	if t.cfg.registry != nil {
		t.cfg.registry.deregister(t.path)
	}
	if err != nil {
		return newIOError("close", err)
	}
	return nil
}

// Size returns the number of keys currently in the table.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.Size()
}

// IsEmpty reports whether the table holds no keys.
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.IsEmpty()
}

// SmallestKey returns the smallest key in key order, if any.
func (t *Table) SmallestKey() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.SmallestKey()
}

// LargestKey returns the largest key in key order, if any.
func (t *Table) LargestKey() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.LargestKey()
}

// Get resolves key to its current record. The returned bool is false
// if key is absent.
func (t *Table) Get(key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(key)
}

// GetBatch resolves many keys under a single lock acquisition. An
// absent key's slot in the result is nil.
func (t *Table) GetBatch(keys [][]byte) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		rec, ok, err := t.getLocked(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = rec
		}
	}
	return out, nil
}

func (t *Table) getLocked(key []byte) ([]byte, bool, error) {
	slot, ok := t.idx.Get(key)
	if !ok {
		return nil, false, nil
	}
	rec, err := t.recordFor(key, slot)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// recordFor reconstructs the record at slot given its already-known
// key: composed from the tail shadow when present, else read straight
// from the file.
func (t *Table) recordFor(key []byte, slot int32) ([]byte, error) {
	if t.tail != nil {
		if tb, ok := t.tail.Get(slot); ok {
			return t.schema.Compose(key, tb), nil
		}
	}
	rec, err := t.rf.Get(slot)
	if err != nil {
		return nil, newIOError("get", err)
	}
	return rec, nil
}

// Has reports whether key is present.
func (t *Table) Has(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.Has(key)
}

func (t *Table) validateRecord(record []byte) error {
	if len(record) != t.schema.RecordLen() {
		return fmt.Errorf("fixrow: record has length %d, want %d", len(record), t.schema.RecordLen())
	}
	if !t.schema.Wellformed(record) {
		return ErrMalformedKey
	}
	return nil
}

// Put inserts record if its key is absent, or overwrites the existing
// record for that key. inserted reports which happened.
func (t *Table) Put(record []byte) (inserted bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.validateRecord(record); err != nil {
		return false, err
	}
	key := t.schema.Key(record)
	if slot, ok := t.idx.Get(key); ok {
		if err := t.overwriteSlot(slot, record); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := t.appendUnique(key, record); err != nil {
		return false, err
	}
	return true, nil
}

// Replace behaves like Put but returns the record that previously
// occupied the key's slot, reconstructed before being overwritten.
func (t *Table) Replace(record []byte) (previous []byte, existed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.validateRecord(record); err != nil {
		return nil, false, err
	}
	key := t.schema.Key(record)
	slot, ok := t.idx.Get(key)
	if !ok {
		if err := t.appendUnique(key, record); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	prev, err := t.recordFor(key, slot)
	if err != nil {
		return nil, false, err
	}
	if err := t.overwriteSlot(slot, record); err != nil {
		return nil, false, err
	}
	return prev, true, nil
}

// AddUnique inserts record, failing with ErrKeyExists if its key is
// already present.
func (t *Table) AddUnique(record []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.validateRecord(record); err != nil {
		return err
	}
	key := t.schema.Key(record)
	if t.idx.Has(key) {
		return ErrKeyExists
	}
	return t.appendUnique(key, record)
}

func (t *Table) overwriteSlot(slot int32, record []byte) error {
	if err := t.rf.Put(slot, record); err != nil {
		return newIOError("put", err)
	}
	if t.tail != nil {
		if err := t.tail.Set(slot, t.schema.Tail(record)); err != nil {
			t.abandonTailShadow()
		} else {
			t.checkMemoryPressure()
		}
	}
	return nil
}

func (t *Table) appendUnique(key, record []byte) error {
	slot, err := t.rf.Add(record)
	if err != nil {
		if errors.Is(err, recordfile.ErrOutOfCapacity) {
			return newOutOfCapacityError("recordfile", err)
		}
		return newIOError("add", err)
	}
	if t.tail != nil {
		if _, err := t.tail.Add(t.schema.Tail(record)); err != nil {
			// The record is already written to A (possibly still in its
			// write-behind buffer); drop C rather than fail the whole
			// insert, per the OutOfCapacity policy.
			t.abandonTailShadow()
		} else {
			t.checkMemoryPressure()
		}
	}
	return t.putIndex(key, slot)
}

// putIndex sets key -> slot in the index, dropping the tail shadow and
// retrying once if the index itself reports OutOfCapacity while a
// shadow is present to sacrifice.
func (t *Table) putIndex(key []byte, slot int32) error {
	if _, err := t.idx.Put(key, slot); err != nil {
		if !keyindex.IsOutOfCapacity(err) {
			return err
		}
		if t.tail == nil {
			return newOutOfCapacityError("keyindex", err)
		}
		t.abandonTailShadow()
		if _, err2 := t.idx.Put(key, slot); err2 != nil {
			return newOutOfCapacityError("keyindex", err2)
		}
	}
	return nil
}

func (t *Table) abandonTailShadow() {
	if t.tail == nil {
		return
	}
	t.cfg.logf("fixrow: abandoning tail shadow for %s", t.path)
	t.tail.Close()
	t.tail = nil
}

func (t *Table) checkMemoryPressure() {
	if t.tail == nil {
		return
	}
	if t.mem.Available() < t.minMemRemaining {
		t.abandonTailShadow()
	}
}

// Remove deletes key via swap-on-delete compaction and returns the
// record it held.
func (t *Table) Remove(key []byte) (record []byte, existed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.idx.Get(key)
	if !ok {
		return nil, false, nil
	}
	rec, err := t.recordFor(key, slot)
	if err != nil {
		return nil, false, err
	}
	relocKey, relocated, err := t.physicalRemove(slot)
	if err != nil {
		return nil, false, err
	}
	t.idx.Remove(key)
	if relocated {
		if err := t.putIndex(relocKey, slot); err != nil {
			return nil, false, err
		}
	}
	return rec, true, nil
}

// RemoveOne physically removes and returns the record at the highest
// slot, regardless of its key.
func (t *Table) RemoveOne() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.rf.Size()
	if n == 0 {
		return nil, errors.New("fixrow: table is empty")
	}
	slot := n - 1
	rec, err := t.rf.Get(slot)
	if err != nil {
		return nil, newIOError("get", err)
	}
	if _, _, err := t.physicalRemove(slot); err != nil {
		return nil, err
	}
	t.idx.Remove(t.schema.Key(rec))
	return rec, nil
}

// physicalRemove vacates slot i by swap-on-delete: if i is the last
// slot, it is simply truncated; otherwise the current last record is
// moved into i and the file truncated by one. If the record read back
// as "last" turns out malformed (trailing corruption), it is discarded
// and the process repeats with the new last slot, per spec.md's
// documented recovery behavior for a corrupted trailing record found
// during deletion. Returns the key that ended up at slot i, if any.
func (t *Table) physicalRemove(i int32) (relocatedKey []byte, relocated bool, err error) {
	for {
		n := t.rf.Size()
		if i == n-1 {
			if _, err := t.rf.CleanLast(); err != nil {
				return nil, false, newIOError("cleanLast", err)
			}
			if t.tail != nil {
				t.tail.Truncate()
			}
			return nil, false, nil
		}

		last, err := t.rf.CleanLast()
		if err != nil {
			return nil, false, newIOError("cleanLast", err)
		}
		if t.tail != nil {
			t.tail.Truncate()
		}
		if !t.schema.Wellformed(last) {
			continue
		}

		if err := t.rf.Put(i, last); err != nil {
			return nil, false, newIOError("put", err)
		}
		if t.tail != nil {
			if err := t.tail.Set(i, t.schema.Tail(last)); err != nil {
				t.abandonTailShadow()
			} else {
				t.checkMemoryPressure()
			}
		}
		return t.schema.Key(last), true, nil
	}
}

// DoubleGroup reports one key that RemoveDoubles found duplicated
// across multiple slots, with the record read from each of those
// slots at the time of resolution (survivor first).
type DoubleGroup struct {
	Key     []byte
	Records [][]byte
}

// RemoveDoubles finds every key with more than one live slot,
// physically removes all but the lowest-numbered ("survivor") slot,
// and returns a report of what it found.
func (t *Table) RemoveDoubles() ([]DoubleGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeDoublesLocked()
}

func (t *Table) removeDoublesLocked() ([]DoubleGroup, error) {
	raw := t.idx.RemoveDoubles()
	if len(raw) == 0 {
		return nil, nil
	}

	report := make([]DoubleGroup, 0, len(raw))
	var toDelete []int32
	for _, g := range raw {
		key := []byte(g.Key)
		recs := make([][]byte, len(g.Slots))
		for i, slot := range g.Slots {
			rec, err := t.rf.Get(slot)
			if err != nil {
				return nil, newIOError("get", err)
			}
			recs[i] = rec
		}
		report = append(report, DoubleGroup{Key: key, Records: recs})

		survivor := g.Slots[0]
		if err := t.putIndex(key, survivor); err != nil {
			return nil, err
		}
		toDelete = append(toDelete, g.Slots[1:]...)
	}

	// Mandatory: descending order, so relocating the file's current
	// last record into a vacated slot never invalidates a still-queued
	// larger slot number.
	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i] > toDelete[j] })
	for _, slot := range toDelete {
		relocKey, relocated, err := t.physicalRemove(slot)
		if err != nil {
			return nil, err
		}
		if relocated {
			if err := t.putIndex(relocKey, slot); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

// Top returns up to n records in physical order starting from the
// highest slot.
func (t *Table) Top(n int) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := int(t.rf.Size())
	if n > size {
		n = size
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		slot := int32(size - 1 - i)
		rec, err := t.rf.Get(slot)
		if err != nil {
			return nil, newIOError("get", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear empties the table: the key index and tail shadow are reset,
// and the backing file is closed and recreated empty. If the tail
// shadow had been evicted before Clear was called, it stays evicted --
// Clear never re-plans a shadow that was already abandoned.
func (t *Table) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hadTail := t.tail != nil
	if t.tail != nil {
		t.tail.Close()
		t.tail = nil
	}
	if err := t.rf.Close(); err != nil {
		return newIOError("close", err)
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return newIOError("remove", err)
	}
	rf, _, err := recordfile.Open(t.path, t.schema.RecordLen(), t.cfg.bufferSize)
	if err != nil {
		return newIOError("open", err)
	}
	t.rf = rf
	t.idx.Clear()
	if hadTail {
		t.tail = tailstore.New(t.schema.TailLen(), t.cfg.initialSpace)
	}
	return nil
}

// ConsistencyCheck asserts the cross-component invariants size(A) =
// size(B) and, if the tail shadow is present, size(C) = size(B). The
// loader runs it once at the end of New; no other operation calls it.
func (t *Table) ConsistencyCheck() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(t.rf.Size()) != t.idx.Size() {
		return newCorruptionError(t.path, fmt.Errorf("file has %d records, index has %d keys", t.rf.Size(), t.idx.Size()))
	}
	if t.tail != nil && t.tail.Size() != t.rf.Size() {
		return newCorruptionError(t.path, fmt.Errorf("tail shadow has %d entries, file has %d records", t.tail.Size(), t.rf.Size()))
	}
	return nil
}
