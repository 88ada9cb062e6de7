// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package recordfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes data (but not necessarily metadata) to disk, the
// same golang.org/x/sys/unix package datafile/reader.go uses for
// madvise/mlock, here for fdatasync(2) -- cheaper than a full fsync
// since it skips metadata such as timestamps that a RecordFile never
// reads, while still persisting the file length that Open derives the
// record count from.
func fdatasync(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return fmt.Errorf("unix.Fdatasync: %w", err)
	}
	return nil
}
