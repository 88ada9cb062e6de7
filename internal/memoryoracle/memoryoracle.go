// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package memoryoracle answers "how much RAM is available right now"
// and "is memory tight", the questions net.yacy.kelondro.util.MemoryControl
// answered for the Java source this package's caller was ported from.
package memoryoracle

import "runtime"

// shortStatusThreshold is the free-RAM floor below which ShortStatus
// reports true regardless of what a caller asked for.
const shortStatusThreshold = 64 * 1024 * 1024

// Oracle reports on system memory pressure. The zero value is not
// usable; construct one with New.
type Oracle struct {
	available func() uint64
}

// New returns an Oracle backed by the most accurate memory source this
// platform's build provides (see memoryoracle_linux.go /
// memoryoracle_other.go).
func New() *Oracle {
	return &Oracle{available: platformAvailable}
}

// Available returns an estimate of free system memory, in bytes.
func (o *Oracle) Available() uint64 {
	return o.available()
}

// Request reports whether n bytes are (probably) available. If hard is
// true and the initial check fails, it forces a GC cycle and rechecks
// once before giving up — the same one-shot "try to free some memory,
// then decide" behavior MemoryControl.request used.
func (o *Oracle) Request(n uint64, hard bool) bool {
	if o.Available() >= n {
		return true
	}
	if !hard {
		return false
	}
	runtime.GC()
	return o.Available() >= n
}

// ShortStatus reports whether memory is critically low, independent of
// any specific requested size.
func (o *Oracle) ShortStatus() bool {
	return o.Available() < shortStatusThreshold
}

// heapHeuristicAvailable estimates free memory from the Go runtime's
// own view when no OS-level figure is available on this platform. It
// undercounts memory outside the Go heap, but it is the narrowest
// portable signal this module can reach for without adding a
// dependency the corpus this was grounded on never uses.
func heapHeuristicAvailable() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys > m.HeapInuse {
		return m.Sys - m.HeapInuse
	}
	return 0
}
