// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package recordfile implements the on-disk half of a fixrow table
// (component A of the spec this module implements): a flat file of
// dense, fixed-size records addressed by slot number, with a
// write-behind buffer for I/O batching. It is grounded on
// bpowers-bit's datafile/writer.go bufio.Writer batching idea,
// restructured for random access (arbitrary Put(slot, ...), not just
// sequential Write) since the teacher's writer is append-only.
package recordfile

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrOutOfCapacity is returned when a slot number would exceed what an
// int32 can address.
var ErrOutOfCapacity = errors.New("recordfile: at capacity")

// MaxSlots bounds the file: a slot is addressed by int32.
const MaxSlots = (1 << 31) - 1

// RecordFile is a flat file of dense, fixed-width records.
type RecordFile struct {
	f          *os.File
	path       string
	recordLen  int
	size       int32
	bufferSize int

	dirty map[int32][]byte

	deleteOnExit bool
}

// Open opens (creating if necessary) the record file at path for
// records of recordLen bytes, and probes its current size. The caller
// is responsible for validating/repairing a trailing partial record;
// Open reports the exact byte size via Stat so callers building a
// loader can detect one.
func Open(path string, recordLen int, bufferSize int) (rf *RecordFile, byteSize int64, err error) {
	if recordLen <= 0 {
		panic("recordfile: recordLen must be positive")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("f.Stat: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	rf = &RecordFile{
		f:          f,
		path:       path,
		recordLen:  recordLen,
		size:       int32(stat.Size() / int64(recordLen)),
		bufferSize: bufferSize,
		dirty:      make(map[int32][]byte),
	}
	return rf, stat.Size(), nil
}

// Truncate hard-sets the record count, discarding any trailing bytes
// beyond size*recordLen. The loader calls this once, before any other
// operation, to repair a torn trailing record left by an unclean
// shutdown.
func (rf *RecordFile) Truncate(size int32) error {
	if err := rf.f.Truncate(int64(size) * int64(rf.recordLen)); err != nil {
		return fmt.Errorf("f.Truncate: %w", err)
	}
	rf.size = size
	for slot := range rf.dirty {
		if slot >= size {
			delete(rf.dirty, slot)
		}
	}
	return nil
}

// Size returns the number of dense records currently in the file.
func (rf *RecordFile) Size() int32 { return rf.size }

// RecordLen returns the fixed record width.
func (rf *RecordFile) RecordLen() int { return rf.recordLen }

// Filename returns the path this file was opened with.
func (rf *RecordFile) Filename() string { return rf.path }

// Get reads the record at slot, checking the write-behind buffer
// first.
func (rf *RecordFile) Get(slot int32) ([]byte, error) {
	if slot < 0 || slot >= rf.size {
		return nil, fmt.Errorf("recordfile: slot %d out of range [0, %d)", slot, rf.size)
	}
	if buf, ok := rf.dirty[slot]; ok {
		out := make([]byte, rf.recordLen)
		copy(out, buf)
		return out, nil
	}
	out := make([]byte, rf.recordLen)
	if _, err := rf.f.ReadAt(out, int64(slot)*int64(rf.recordLen)); err != nil {
		return nil, fmt.Errorf("f.ReadAt(slot=%d): %w", slot, err)
	}
	return out, nil
}

// GetPrefix reads only the first n bytes of the record at slot,
// checking the write-behind buffer first. It exists so a keys-only
// scan can avoid pulling a full record off disk when it only needs
// the leading key bytes.
func (rf *RecordFile) GetPrefix(slot int32, n int) ([]byte, error) {
	if slot < 0 || slot >= rf.size {
		return nil, fmt.Errorf("recordfile: slot %d out of range [0, %d)", slot, rf.size)
	}
	if n > rf.recordLen {
		n = rf.recordLen
	}
	if buf, ok := rf.dirty[slot]; ok {
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
	out := make([]byte, n)
	if _, err := rf.f.ReadAt(out, int64(slot)*int64(rf.recordLen)); err != nil {
		return nil, fmt.Errorf("f.ReadAt(slot=%d): %w", slot, err)
	}
	return out, nil
}

// Put overwrites the record at an existing slot.
func (rf *RecordFile) Put(slot int32, record []byte) error {
	if slot < 0 || slot >= rf.size {
		return fmt.Errorf("recordfile: slot %d out of range [0, %d)", slot, rf.size)
	}
	if len(record) != rf.recordLen {
		return fmt.Errorf("recordfile: record has length %d, want %d", len(record), rf.recordLen)
	}
	buf := make([]byte, rf.recordLen)
	copy(buf, record)
	rf.dirty[slot] = buf
	if len(rf.dirty) >= rf.bufferSize {
		return rf.Flush()
	}
	return nil
}

// Add appends record as a new dense slot and returns its index.
func (rf *RecordFile) Add(record []byte) (int32, error) {
	if len(record) != rf.recordLen {
		return -1, fmt.Errorf("recordfile: record has length %d, want %d", len(record), rf.recordLen)
	}
	if rf.size >= MaxSlots {
		return -1, ErrOutOfCapacity
	}
	slot := rf.size
	rf.size++
	buf := make([]byte, rf.recordLen)
	copy(buf, record)
	rf.dirty[slot] = buf
	if len(rf.dirty) >= rf.bufferSize {
		return slot, rf.Flush()
	}
	return slot, nil
}

// CleanLast reads and removes the highest-numbered slot, shrinking the
// file by one record. It is the recordfile half of Table's
// swap-on-delete compaction: the caller then writes the returned bytes
// into the slot being vacated with Put.
func (rf *RecordFile) CleanLast() ([]byte, error) {
	if rf.size == 0 {
		return nil, errors.New("recordfile: file is empty")
	}
	last := rf.size - 1
	rec, err := rf.Get(last)
	if err != nil {
		return nil, err
	}
	delete(rf.dirty, last)
	rf.size = last
	if err := rf.f.Truncate(int64(rf.size) * int64(rf.recordLen)); err != nil {
		return nil, fmt.Errorf("f.Truncate: %w", err)
	}
	return rec, nil
}

// Flush writes every buffered record to disk in ascending slot order
// and fdatasyncs the file, matching bit's own Writer.Close pattern of
// flushing before syncing.
func (rf *RecordFile) Flush() error {
	if len(rf.dirty) == 0 {
		return nil
	}
	slots := make([]int32, 0, len(rf.dirty))
	for slot := range rf.dirty {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	for _, slot := range slots {
		buf := rf.dirty[slot]
		if _, err := rf.f.WriteAt(buf, int64(slot)*int64(rf.recordLen)); err != nil {
			return fmt.Errorf("f.WriteAt(slot=%d): %w", slot, err)
		}
		delete(rf.dirty, slot)
	}
	return fdatasync(rf.f)
}

// DeleteOnExit marks (or unmarks) the file to be removed from disk
// when Close runs.
func (rf *RecordFile) DeleteOnExit(v bool) { rf.deleteOnExit = v }

// Close flushes buffered writes and closes the underlying file,
// removing it first if DeleteOnExit(true) was set.
func (rf *RecordFile) Close() error {
	flushErr := rf.Flush()
	closeErr := rf.f.Close()
	if rf.deleteOnExit {
		_ = os.Remove(rf.path)
	}
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
