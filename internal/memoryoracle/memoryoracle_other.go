// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !linux

package memoryoracle

// platformAvailable falls back to a Go-runtime heuristic on platforms
// without a sysinfo(2)-style syscall wired up (see memoryoracle_linux.go).
func platformAvailable() uint64 {
	return heapHeuristicAvailable()
}
