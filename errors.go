// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import (
	"errors"
	"fmt"
)

// ErrConcurrentModification is returned by an OrderedRowIter's Next
// when the key it is about to resolve no longer maps to a slot in the
// index. The iterator is unusable afterward.
var ErrConcurrentModification = errors.New("fixrow: concurrent modification detected during iteration")

// ErrMalformedKey is returned by Put/Replace/AddUnique when a caller
// supplies a record whose key fails the schema order's well-formedness
// predicate.
var ErrMalformedKey = errors.New("fixrow: record has a malformed key")

// ErrKeyExists is returned by AddUnique when the record's key is
// already present.
var ErrKeyExists = errors.New("fixrow: key already exists")

// errNoCurrentRow is returned by RowIter.Remove when called before
// Next has ever produced a row, or after the snapshot is exhausted.
var errNoCurrentRow = errors.New("fixrow: no current row to remove")

// OutOfCapacityError is raised when KeyIndex or TailStore cannot grow
// to accommodate a new entry.
type OutOfCapacityError struct {
	Component string // "index" or "tailstore"
	Err       error
}

func (e *OutOfCapacityError) Error() string {
	return fmt.Sprintf("fixrow: %s out of capacity: %v", e.Component, e.Err)
}

func (e *OutOfCapacityError) Unwrap() error { return e.Err }

func newOutOfCapacityError(component string, err error) error {
	return &OutOfCapacityError{Component: component, Err: err}
}

func isOutOfCapacity(err error) bool {
	var ooc *OutOfCapacityError
	return errors.As(err, &ooc)
}

// IOError wraps a failure from the underlying RecordFile. Invariants
// may be broken after this is returned; callers should Close the
// Table.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fixrow: io error during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func newIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

// CorruptionError is raised when the backing file's size is not a
// multiple of the record length, when a read produces a malformed
// tail, or when the index/file sizes disagree after load.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("fixrow: %s is corrupted: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func newCorruptionError(path string, err error) error {
	return &CorruptionError{Path: path, Err: err}
}
