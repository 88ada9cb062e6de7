// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import "bytes"

// Column describes one fixed-width field of a row. Column 0 is always
// the primary key.
type Column struct {
	Name string
	Size int
}

// KeyOrder defines a total ordering over keys plus the validity
// predicate a key must satisfy to be considered "well-formed". A key
// that is not well-formed can never appear in a live KeyIndex; it is
// quarantined and physically dropped during load.
type KeyOrder interface {
	// Less reports whether a sorts before b.
	Less(a, b []byte) bool
	// Equal reports whether a and b are the same key.
	Equal(a, b []byte) bool
	// Wellformed reports whether b is a legal key under this order.
	Wellformed(b []byte) bool
}

// lexicographicOrder compares keys as unsigned byte strings, the same
// rule net.yacy.kelondro.order.NaturalOrder applies. A key consisting
// entirely of NUL bytes is rejected: it is the pattern a corrupted or
// truncated record tends to produce, so treating it as malformed lets
// the loader quarantine such rows instead of indexing garbage.
type lexicographicOrder struct{}

// LexicographicOrder is the natural unsigned-byte ordering used by
// every schema in this package.
var LexicographicOrder KeyOrder = lexicographicOrder{}

func (lexicographicOrder) Less(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

func (lexicographicOrder) Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

func (lexicographicOrder) Wellformed(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return true
		}
	}
	return false
}

// Schema is the immutable row layout of a Table: an ordered list of
// fixed-width columns, of which column 0 is the primary key.
type Schema struct {
	Columns []Column
	Order   KeyOrder

	keyLen    int
	recordLen int
}

// NewSchema builds a Schema from an ordered column list. The order
// defaults to LexicographicOrder if nil.
func NewSchema(columns []Column, order KeyOrder) *Schema {
	if len(columns) == 0 {
		panic("fixrow: schema needs at least one column (the primary key)")
	}
	if order == nil {
		order = LexicographicOrder
	}
	s := &Schema{
		Columns: append([]Column(nil), columns...),
		Order:   order,
	}
	s.keyLen = columns[0].Size
	total := 0
	for _, c := range columns {
		total += c.Size
	}
	s.recordLen = total
	return s
}

// KeyLen is K, the width in bytes of the primary key (column 0).
func (s *Schema) KeyLen() int { return s.keyLen }

// RecordLen is R, the total width in bytes of a record.
func (s *Schema) RecordLen() int { return s.recordLen }

// TailLen is T = R - K, the width of everything after the key.
func (s *Schema) TailLen() int { return s.recordLen - s.keyLen }

// Key returns the primary-key slice of record, without copying.
func (s *Schema) Key(record []byte) []byte {
	return record[:s.keyLen]
}

// Tail returns the non-key slice of record, without copying.
func (s *Schema) Tail(record []byte) []byte {
	return record[s.keyLen:]
}

// Wellformed reports whether the first KeyLen bytes of record form a
// legal key under the schema's order.
func (s *Schema) Wellformed(record []byte) bool {
	if len(record) < s.keyLen {
		return false
	}
	return s.Order.Wellformed(record[:s.keyLen])
}

// Compose reassembles a full record from a key and a tail, allocating
// a fresh buffer.
func (s *Schema) Compose(key, tail []byte) []byte {
	rec := make([]byte, s.recordLen)
	copy(rec, key)
	copy(rec[s.keyLen:], tail)
	return rec
}
