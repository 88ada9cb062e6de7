// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package recordfile

import (
	"fmt"
	"os"
)

// fdatasync falls back to a full fsync(2) on platforms without a
// distinct fdatasync(2) syscall exposed by golang.org/x/sys/unix.
func fdatasync(f *os.File) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %w", err)
	}
	return nil
}
