// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import (
	"fmt"

	"github.com/bpowers/fixrow/internal/bitset"
	"github.com/bpowers/fixrow/internal/keyindex"
	"github.com/bpowers/fixrow/internal/memoryoracle"
	"github.com/bpowers/fixrow/internal/recordfile"
	"github.com/bpowers/fixrow/internal/tailstore"
)

// maxArrayEntries is the conservative single-array bound the tail
// shadow planner respects unless WithExceedArrayLimit(true) overrides
// it, mirroring the JVM's own array-length ceiling.
const maxArrayEntries = (1 << 31) - 1

// load opens path, repairs a torn trailing record if present, decides
// whether a tail shadow is affordable, scans the file to build the key
// index (and tail shadow, if planned), quarantines and physically
// drops malformed records, and — for a file that already existed —
// resolves any duplicate keys left over from a prior run.
func load(path string, schema *Schema, cfg *config) (*Table, error) {
	rf, byteSize, err := recordfile.Open(path, schema.RecordLen(), cfg.bufferSize)
	if err != nil {
		return nil, newIOError("open", err)
	}

	freshFile := byteSize == 0

	recordLen := int64(schema.RecordLen())
	if rem := byteSize % recordLen; rem != 0 {
		repaired := (byteSize - rem) / recordLen
		cfg.logf("fixrow: %s has a torn trailing record (%d extra bytes); truncating to %d records", path, rem, repaired)
		if err := rf.Truncate(int32(repaired)); err != nil {
			_ = rf.Close()
			return nil, newCorruptionError(path, fmt.Errorf("repairing torn trailing record: %w", err))
		}
	}

	n := rf.Size()
	mem := memoryoracle.New()
	minMemRemaining := uint64(minMemRemainingFloor)
	if fraction := mem.Available() / minMemRemainingFraction; fraction > minMemRemaining {
		minMemRemaining = fraction
	}

	t := &Table{
		path:            path,
		schema:          schema,
		cfg:             cfg,
		rf:              rf,
		idx:             keyindex.New(schema.Order, maxInt(cfg.initialSpace, int(n))),
		mem:             mem,
		minMemRemaining: minMemRemaining,
	}

	if decideTailShadow(cfg, schema, n, mem) {
		t.tail = tailstore.New(schema.TailLen(), maxInt(cfg.initialSpace, int(n)))
	}

	quarantine, quarantined, err := t.scan(n)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	if err := t.cleanQuarantine(quarantine, quarantined); err != nil {
		_ = rf.Close()
		return nil, err
	}

	if !freshFile {
		if _, err := t.removeDoublesLocked(); err != nil {
			_ = rf.Close()
			return nil, err
		}
	}

	if err := t.ConsistencyCheck(); err != nil {
		_ = rf.Close()
		return nil, err
	}

	if cfg.registry != nil {
		cfg.registry.register(t)
	}

	return t, nil
}

// decideTailShadow implements the dual memory-fit calculation: a tail
// shadow is planned only if the caller allows it, its size fits the
// conservative single-array limit (or the caller overrides that
// limit), there is enough headroom for the shadow itself, and —
// checked after the fact — there would still be enough room left for
// the key index too.
func decideTailShadow(cfg *config, schema *Schema, n int32, mem *memoryoracle.Oracle) bool {
	if !cfg.allowTailShadow || n == 0 {
		return cfg.allowTailShadow
	}

	ramForTails := 3 * uint64(n) * uint64(schema.RecordLen()+4)
	ramForIndex := uint64(400*1024*1024) + uint64(1.5*float64(n)*float64(schema.KeyLen()+4))

	if !cfg.exceedArrayLimit && ramForTails > maxArrayEntries {
		return false
	}
	if mem.Available() <= ramForTails+200*1024*1024 {
		return false
	}
	if mem.Available() < ramForTails+ramForIndex {
		return false
	}
	return true
}

// scan performs the one-pass load walk over the file's n slots,
// choosing between a keys-only read and a full-record read depending
// on whether a tail shadow was planned, per spec.md §9's direction to
// keep the two modes explicit rather than a single method branching
// on a nil check. It returns the quarantine bitset (malformed slots)
// and how many bits are set.
func (t *Table) scan(n int32) (*bitset.Bitset, int, error) {
	if t.tail != nil {
		return t.scanWithTailShadow(n)
	}
	return t.scanKeysOnly(n)
}

func (t *Table) scanKeysOnly(n int32) (*bitset.Bitset, int, error) {
	quarantine := bitset.New(int64(n))
	quarantined := 0
	keyLen := t.schema.KeyLen()
	for slot := int32(0); slot < n; slot++ {
		prefix, err := t.rf.GetPrefix(slot, keyLen)
		if err != nil {
			return nil, 0, newIOError("get", err)
		}
		if !t.schema.Order.Wellformed(prefix) {
			quarantine.Set(int64(slot))
			quarantined++
			continue
		}
		if err := t.idx.PutUnique(prefix, slot); err != nil {
			return nil, 0, newOutOfCapacityError("keyindex", err)
		}
	}
	return quarantine, quarantined, nil
}

func (t *Table) scanWithTailShadow(n int32) (*bitset.Bitset, int, error) {
	quarantine := bitset.New(int64(n))
	quarantined := 0
	for slot := int32(0); slot < n; slot++ {
		rec, err := t.rf.Get(slot)
		if err != nil {
			return nil, 0, newIOError("get", err)
		}
		key := append([]byte(nil), t.schema.Key(rec)...)
		wellformed := t.schema.Order.Wellformed(key)
		if !wellformed {
			quarantine.Set(int64(slot))
			quarantined++
		} else if err := t.idx.PutUnique(key, slot); err != nil {
			return nil, 0, newOutOfCapacityError("keyindex", err)
		}
		if t.tail != nil {
			// The tail shadow tracks every slot 1:1 with the file,
			// well-formed or not, until quarantine cleanup below drops
			// the malformed ones from both.
			if _, err := t.tail.Add(t.schema.Tail(rec)); err != nil {
				t.abandonTailShadow()
			}
		}
	}
	return quarantine, quarantined, nil
}

// cleanQuarantine physically removes every quarantined slot via
// swap-on-delete, in descending slot order (mandatory: relocating the
// file's current last record into a vacated slot must never disturb a
// still-pending larger slot number). Quarantined slots were never
// added to the index, so unlike RemoveDoubles there is no stale
// mapping to remove first -- only a possible relocated key to insert.
func (t *Table) cleanQuarantine(quarantine *bitset.Bitset, quarantined int) error {
	if quarantined == 0 {
		return nil
	}
	remaining := quarantined
	for slot := t.rf.Size() - 1; slot >= 0 && remaining > 0; slot-- {
		if !quarantine.IsSet(int64(slot)) {
			continue
		}
		remaining--
		relocKey, relocated, err := t.physicalRemove(slot)
		if err != nil {
			return err
		}
		if relocated {
			if err := t.putIndex(relocKey, slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
