// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package keyindex implements the in-RAM primary-key -> slot map that
// backs a fixrow.Table (component B of the spec this module
// implements). Lookups hash keys with the same
// github.com/dgryski/go-farm primitive bpowers-bit's indexfile package
// uses to build its (immutable) minimal perfect hash tables; this
// index instead backs a mutable, growable, open-addressed table so it
// can support live insert/remove, which an MPH table cannot.
package keyindex

import (
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/fixrow/internal/unsafestring"
)

// Order is the subset of a row schema's ordering this package needs:
// a total order over keys. fixrow.KeyOrder satisfies this
// structurally.
type Order interface {
	Less(a, b []byte) bool
}

// MaxEntries bounds the index the same way bpowers-bit's
// indexfile.maxIndexEntries bounds a built table: an int32 slot value
// cannot address more than this many records.
const MaxEntries = (1 << 31) - 1

const (
	empty     int32 = -1
	tombstone int32 = -2
	freeSlot  int32 = -1
)

const maxLoadFactor = 0.7

// DoubleGroup is one duplicate-key report from RemoveDoubles: Slots is
// sorted ascending, with the survivor (the earliest-inserted, i.e.
// lowest, slot) first.
type DoubleGroup struct {
	Key   string
	Slots []int32
}

// KeyIndex is a mutable, open-addressed hash table from key to slot.
type KeyIndex struct {
	order Order

	buckets []int32 // index into entries, or empty/tombstone
	entries []indexEntry
	mask    uint64
	count   int // live entries
	tombs   int // tombstoned buckets

	freeList []int32 // recycled entries slots

	doubles map[string][]int32
}

type indexEntry struct {
	key  string
	slot int32
	live bool
}

// New returns an empty KeyIndex sized to hold at least initialSpace
// entries without an immediate rehash.
func New(order Order, initialSpace int) *KeyIndex {
	if order == nil {
		panic("keyindex: order must not be nil")
	}
	n := nextPow2(initialSpace*2 + 8)
	k := &KeyIndex{
		order:   order,
		buckets: make([]int32, n),
		mask:    uint64(n - 1),
		doubles: make(map[string][]int32),
	}
	for i := range k.buckets {
		k.buckets[i] = empty
	}
	return k
}

func nextPow2(n int) int {
	p := 8
	for p < n {
		p *= 2
	}
	return p
}

func hashOf(key []byte) uint64 {
	return farm.Hash64WithSeed(key, 0)
}

// find returns the bucket index holding key, and whether it was found.
// If not found, it returns the first empty-or-tombstoned bucket a
// subsequent insert should use.
func (k *KeyIndex) find(key []byte) (bucket int, entryIdx int32, found bool) {
	h := hashOf(key)
	firstFree := -1
	mask := k.mask
	for probe := uint64(0); probe <= mask; probe++ {
		b := int((h + probe) & mask)
		e := k.buckets[b]
		if e == empty {
			if firstFree < 0 {
				firstFree = b
			}
			return firstFree, empty, false
		}
		if e == tombstone {
			if firstFree < 0 {
				firstFree = b
			}
			continue
		}
		if k.entries[e].live && k.entries[e].key == string(key) {
			return b, e, true
		}
	}
	return firstFree, empty, false
}

func (k *KeyIndex) growIfNeeded() {
	if float64(k.count+k.tombs+1) <= maxLoadFactor*float64(len(k.buckets)) {
		return
	}
	k.rehash(len(k.buckets) * 2)
}

func (k *KeyIndex) rehash(newSize int) {
	old := k.entries
	newBuckets := make([]int32, newSize)
	for i := range newBuckets {
		newBuckets[i] = empty
	}
	newEntries := make([]indexEntry, 0, k.count)
	mask := uint64(newSize - 1)
	for _, e := range old {
		if !e.live {
			continue
		}
		h := hashOf(unsafestring.ToBytes(e.key))
		for probe := uint64(0); ; probe++ {
			b := int((h + probe) & mask)
			if newBuckets[b] == empty {
				newBuckets[b] = int32(len(newEntries))
				newEntries = append(newEntries, e)
				break
			}
		}
	}
	k.buckets = newBuckets
	k.entries = newEntries
	k.mask = mask
	k.tombs = 0
	k.freeList = nil
}

// Get returns the slot key maps to, or (-1, false) if absent.
func (k *KeyIndex) Get(key []byte) (int32, bool) {
	_, e, found := k.find(key)
	if !found {
		return freeSlot, false
	}
	return k.entries[e].slot, true
}

// Has reports whether key is present.
func (k *KeyIndex) Has(key []byte) bool {
	_, _, found := k.find(key)
	return found
}

// Put sets key -> slot unconditionally, overwriting any existing
// mapping, and returns the prior slot (or -1 if key was absent).
// Returns an OutOfCapacity-style error only if the index cannot grow
// to accommodate a genuinely new key.
func (k *KeyIndex) Put(key []byte, slot int32) (prior int32, err error) {
	bucket, e, found := k.find(key)
	if found {
		prior = k.entries[e].slot
		k.entries[e].slot = slot
		return prior, nil
	}
	if k.count >= MaxEntries {
		return freeSlot, errOutOfCapacity
	}
	k.insertNew(bucket, key, slot)
	return freeSlot, nil
}

// PutUnique inserts key -> slot if key is absent. If key is already
// present, it does NOT overwrite the existing mapping: instead it
// records slot as a duplicate to be resolved later by RemoveDoubles.
// This mirrors net.yacy.kelondro.index.HandleMap.putUnique, which is
// called unconditionally during the load scan even over keys already
// seen; Table.AddUnique is what actually enforces absence, by
// checking Has first.
func (k *KeyIndex) PutUnique(key []byte, slot int32) error {
	bucket, _, found := k.find(key)
	if found {
		ks := string(key)
		k.doubles[ks] = append(k.doubles[ks], slot)
		return nil
	}
	if k.count >= MaxEntries {
		return errOutOfCapacity
	}
	k.insertNew(bucket, key, slot)
	return nil
}

func (k *KeyIndex) insertNew(bucket int, key []byte, slot int32) {
	before := len(k.buckets)
	k.growIfNeeded()
	if len(k.buckets) != before {
		// growIfNeeded rehashed; bucket is stale, recompute.
		bucket, _, _ = k.find(key)
	}
	wasTomb := k.buckets[bucket] == tombstone
	var idx int32
	if n := len(k.freeList); n > 0 {
		idx = k.freeList[n-1]
		k.freeList = k.freeList[:n-1]
		k.entries[idx] = indexEntry{key: string(key), slot: slot, live: true}
	} else {
		idx = int32(len(k.entries))
		k.entries = append(k.entries, indexEntry{key: string(key), slot: slot, live: true})
	}
	k.buckets[bucket] = idx
	k.count++
	if wasTomb {
		k.tombs--
	}
}

// Remove deletes key, returning its slot and whether it was present.
func (k *KeyIndex) Remove(key []byte) (int32, bool) {
	bucket, e, found := k.find(key)
	if !found {
		return freeSlot, false
	}
	slot := k.entries[e].slot
	k.entries[e] = indexEntry{}
	k.buckets[bucket] = tombstone
	k.freeList = append(k.freeList, e)
	k.count--
	k.tombs++
	return slot, true
}

// RemoveDoubles finds every key that was inserted more than once via
// PutUnique during a load scan, deletes it from the index entirely,
// and returns the full ascending slot list for each (survivor slot —
// the lowest — first). The caller is responsible for re-inserting the
// survivor and physically removing the rest, exactly as
// Table.java's removeDoubles/Table.java's constructor do.
func (k *KeyIndex) RemoveDoubles() []DoubleGroup {
	if len(k.doubles) == 0 {
		return nil
	}
	groups := make([]DoubleGroup, 0, len(k.doubles))
	for key, extra := range k.doubles {
		primary, ok := k.Remove([]byte(key))
		slots := extra
		if ok {
			slots = append([]int32{primary}, extra...)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
		groups = append(groups, DoubleGroup{Key: key, Slots: slots})
	}
	k.doubles = make(map[string][]int32)
	return groups
}

// Size returns the number of live keys.
func (k *KeyIndex) Size() int { return k.count }

// IsEmpty reports whether the index has no live keys.
func (k *KeyIndex) IsEmpty() bool { return k.count == 0 }

// Clear removes every entry, keeping the current bucket capacity.
func (k *KeyIndex) Clear() {
	for i := range k.buckets {
		k.buckets[i] = empty
	}
	k.entries = k.entries[:0]
	k.freeList = nil
	k.count = 0
	k.tombs = 0
	k.doubles = make(map[string][]int32)
}

// sortedKeys returns a copy of every live key, sorted ascending by the
// index's order.
func (k *KeyIndex) sortedKeys() []string {
	keys := make([]string, 0, k.count)
	for _, e := range k.entries {
		if e.live {
			keys = append(keys, e.key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return k.order.Less(unsafestring.ToBytes(keys[i]), unsafestring.ToBytes(keys[j]))
	})
	return keys
}

// SmallestKey returns the smallest live key, if any.
func (k *KeyIndex) SmallestKey() ([]byte, bool) {
	keys := k.sortedKeys()
	if len(keys) == 0 {
		return nil, false
	}
	return []byte(keys[0]), true
}

// LargestKey returns the largest live key, if any.
func (k *KeyIndex) LargestKey() ([]byte, bool) {
	keys := k.sortedKeys()
	if len(keys) == 0 {
		return nil, false
	}
	return []byte(keys[len(keys)-1]), true
}

// KeyCursor is a restartable, pull-based iterator over a snapshot of
// keys taken at Keys()-call time.
type KeyCursor struct {
	keys []string
	pos  int
}

// Next returns the next key in the cursor's order, or (nil, false)
// when exhausted.
func (c *KeyCursor) Next() ([]byte, bool) {
	if c.pos >= len(c.keys) {
		return nil, false
	}
	k := c.keys[c.pos]
	c.pos++
	return []byte(k), true
}

// Keys returns a cursor over every live key in ascending or descending
// order, optionally starting from the first key >= start (ascending)
// or <= start (descending).
func (k *KeyIndex) Keys(ascending bool, start []byte) *KeyCursor {
	keys := k.sortedKeys()
	if !ascending {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	pos := 0
	if start != nil {
		if ascending {
			pos = sort.Search(len(keys), func(i int) bool {
				return !k.order.Less(unsafestring.ToBytes(keys[i]), start)
			})
		} else {
			pos = sort.Search(len(keys), func(i int) bool {
				return !k.order.Less(start, unsafestring.ToBytes(keys[i]))
			})
		}
	}
	return &KeyCursor{keys: keys[pos:]}
}

// Entries returns a snapshot of every live (key, slot) pair in the
// order of the index's internal entry array (neither key order nor,
// in general, slot order) — this is what backs the
// physical-order iterator, mirroring Table.java's rowIteratorNoOrder
// walking the HandleMap's own iteration order rather than key order.
func (k *KeyIndex) Entries() []DoubleGroup {
	out := make([]DoubleGroup, 0, k.count)
	for _, e := range k.entries {
		if e.live {
			out = append(out, DoubleGroup{Key: e.key, Slots: []int32{e.slot}})
		}
	}
	return out
}

// Mem estimates the index's RAM footprint in bytes.
func (k *KeyIndex) Mem() uint64 {
	const perEntryOverhead = 32 // string header + slot + live flag, rounded up
	return uint64(len(k.buckets))*4 + uint64(len(k.entries))*perEntryOverhead
}
