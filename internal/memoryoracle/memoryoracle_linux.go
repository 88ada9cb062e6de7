// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build linux

package memoryoracle

import "golang.org/x/sys/unix"

// platformAvailable queries the kernel directly via sysinfo(2), the
// same golang.org/x/sys/unix package datafile/reader.go already
// depends on (there for madvise/mlock, here for a different syscall).
// Free plus buffer RAM (sysinfo(2) reports no page-cache figure)
// approximates what the Java source's
// MemoryControl.available() reported from
// Runtime.getRuntime().freeMemory() plus the OS's own headroom.
func platformAvailable() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return heapHeuristicAvailable()
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Freeram)*unit + uint64(info.Bufferram)*unit
}
