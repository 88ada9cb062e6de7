// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package tailstore implements the optional in-RAM shadow copy of
// every record's non-key payload (component C of the spec this module
// implements): a packed, fixed-stride []byte addressed by slot, kept
// in lockstep with the on-disk record file so reads can be served
// without touching disk. It is grounded on net.yacy.kelondro.table.Table's
// RowSet taildef full-copy shadow, using the same offset = slot*stride
// addressing arithmetic bpowers-bit's internal/ondisk package uses for
// on-disk fixed-stride arrays.
package tailstore

import (
	"errors"

	"github.com/bpowers/fixrow/internal/zero"
)

// MaxSlots bounds the store the same way an on-disk RecordFile is
// bounded: a slot is addressed by int32.
const MaxSlots = (1 << 31) - 1

// ErrOutOfCapacity is returned when growing the store would exceed
// MaxSlots.
var ErrOutOfCapacity = errors.New("tailstore: at capacity")

// TailStore is a growable, packed array of fixed-size tails.
type TailStore struct {
	tailLen int
	data    []byte
	size    int32
}

// New returns an empty TailStore for tails of tailLen bytes, with
// backing capacity pre-sized for initialSlots records.
func New(tailLen int, initialSlots int) *TailStore {
	if tailLen <= 0 {
		panic("tailstore: tailLen must be positive")
	}
	if initialSlots < 0 {
		initialSlots = 0
	}
	return &TailStore{
		tailLen: tailLen,
		data:    make([]byte, 0, tailLen*initialSlots),
	}
}

// Size returns the number of slots currently held.
func (t *TailStore) Size() int32 { return t.size }

// TailLen returns the fixed width of a tail.
func (t *TailStore) TailLen() int { return t.tailLen }

func (t *TailStore) offset(slot int32) int {
	return int(slot) * t.tailLen
}

// Get returns the tail stored at slot. The returned slice aliases the
// store's backing array and must not be retained past the next
// mutating call.
func (t *TailStore) Get(slot int32) ([]byte, bool) {
	if slot < 0 || slot >= t.size {
		return nil, false
	}
	off := t.offset(slot)
	return t.data[off : off+t.tailLen], true
}

// Set overwrites the tail at an existing slot.
func (t *TailStore) Set(slot int32, tail []byte) error {
	if slot < 0 || slot >= t.size {
		return errors.New("tailstore: slot out of range")
	}
	if len(tail) != t.tailLen {
		return errors.New("tailstore: tail has wrong length")
	}
	off := t.offset(slot)
	copy(t.data[off:off+t.tailLen], tail)
	return nil
}

// Add appends tail as a new slot and returns its index.
func (t *TailStore) Add(tail []byte) (int32, error) {
	if len(tail) != t.tailLen {
		return -1, errors.New("tailstore: tail has wrong length")
	}
	if t.size >= MaxSlots {
		return -1, ErrOutOfCapacity
	}
	t.data = append(t.data, tail...)
	slot := t.size
	t.size++
	return slot, nil
}

// Last returns the tail of the highest-numbered slot.
func (t *TailStore) Last() ([]byte, bool) {
	if t.size == 0 {
		return nil, false
	}
	return t.Get(t.size - 1)
}

// Truncate drops the highest-numbered slot. It is the tailstore half
// of the swap-on-delete compaction Table performs: Table calls
// Truncate first, then Sets the vacated slot to the tail of the record
// it moved, taken from the record file. A caller that moves Last()
// itself must copy it before calling Truncate.
func (t *TailStore) Truncate() {
	if t.size == 0 {
		return
	}
	off := t.offset(t.size - 1)
	zero.Bytes(t.data[off : off+t.tailLen])
	t.data = t.data[:off]
	t.size--
}

// Clear removes every slot, scrubbing the backing array.
func (t *TailStore) Clear() {
	zero.Bytes(t.data[:cap(t.data)])
	t.data = t.data[:0]
	t.size = 0
}

// Close releases the store's backing memory. A TailStore is not
// usable after Close.
func (t *TailStore) Close() {
	t.data = nil
	t.size = 0
}

// Mem estimates the store's RAM footprint in bytes.
func (t *TailStore) Mem() uint64 {
	return uint64(cap(t.data))
}
