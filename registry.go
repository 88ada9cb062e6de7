// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import "sync"

// Registry tracks every live Table opened through it, by file path,
// for introspection (Filenames, MemoryStats) only. This is the Go
// reformulation of net.yacy.kelondro.table.Table's static tableTracker
// map: a caller-scoped Registry rather than a package-level global, so
// tests and multi-tenant processes don't share state implicitly.
//
// Unlike the source this was ported from, a Table deregisters itself
// on Close: the source's tracker never removed entries, an
// acknowledged leak this port fixes per spec direction.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

func (r *Registry) register(t *Table) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.path] = t
}

func (r *Registry) deregister(path string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, path)
}

// Filenames returns the file path of every Table currently registered.
func (r *Registry) Filenames() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tables))
	for path := range r.tables {
		out = append(out, path)
	}
	return out
}

// TableMemoryStats reports one registered Table's estimated RAM
// footprint, in bytes: the key index plus the tail shadow (zero if
// evicted or never allocated).
type TableMemoryStats struct {
	Path            string
	IndexBytes      uint64
	TailShadowBytes uint64
	UsesTailShadow  bool
}

// MemoryStats reports per-Table memory usage for every registered
// Table, mirroring Table.java's static memoryStats() diagnostic.
func (r *Registry) MemoryStats() []TableMemoryStats {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.Unlock()

	out := make([]TableMemoryStats, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.memStats())
	}
	return out
}
