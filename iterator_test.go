// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drainRows(t *testing.T, it *RowIter) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		rec, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out
}

func TestRowIterVisitsEveryRecord(t *testing.T) {
	tbl := openTemp(t)
	want := map[string][]byte{}
	for _, k := range []string{"AAAA", "BBBB", "CCCC"} {
		r := rec(k, k)
		_, err := tbl.Put(r)
		require.NoError(t, err)
		want[k] = r
	}

	got := drainRows(t, tbl.Rows())
	require.Len(t, got, 3)
	for _, r := range got {
		require.Equal(t, want[string(r[:4])], r)
	}
}

func TestRowIterRemoveLastCall(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"AAAA", "BBBB", "CCCC"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.Rows()
	rowsSeen := 0
	var removeErr error
	for {
		_, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rowsSeen++
		if rowsSeen == 1 {
			removeErr = it.Remove()
			break
		}
	}
	require.NoError(t, removeErr)
	require.Equal(t, 2, tbl.Size())
}

func TestRowIterRemoveWithoutNextFails(t *testing.T) {
	tbl := openTemp(t)
	_, err := tbl.Put(rec("AAAA", "AAAA"))
	require.NoError(t, err)

	it := tbl.Rows()
	err = it.Remove()
	require.ErrorIs(t, err, errNoCurrentRow)
}

func TestOrderedRowIterAscending(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"CCCC", "AAAA", "BBBB"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.RowsOrdered(true, nil)
	var keys []string
	for {
		r, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(r[:4]))
	}
	require.Equal(t, []string{"AAAA", "BBBB", "CCCC"}, keys)
}

func TestOrderedRowIterDescending(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"CCCC", "AAAA", "BBBB"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.RowsOrdered(false, nil)
	var keys []string
	for {
		r, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(r[:4]))
	}
	require.Equal(t, []string{"CCCC", "BBBB", "AAAA"}, keys)
}

func TestOrderedRowIterConcurrentModification(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"AAAA", "BBBB", "CCCC"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.RowsOrdered(true, nil)
	_, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = tbl.Remove([]byte("BBBB"))
	require.NoError(t, err)

	_, _, err = it.Next()
	require.ErrorIs(t, err, ErrConcurrentModification)

	// the iterator is unusable afterward
	_, _, err = it.Next()
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestKeyIterOrderAndClone(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"CCCC", "AAAA", "BBBB"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.Keys(true, nil)
	var keys []string
	for {
		k, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"AAAA", "BBBB", "CCCC"}, keys)

	clone := it.Clone()
	var cloned []string
	for {
		k, ok := clone.Next()
		if !ok {
			break
		}
		cloned = append(cloned, string(k))
	}
	require.Equal(t, keys, cloned)
}

func TestKeyIterStartCursor(t *testing.T) {
	tbl := openTemp(t)
	for _, k := range []string{"AAAA", "BBBB", "CCCC", "DDDD"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}

	it := tbl.Keys(true, []byte("BBBB"))
	var keys []string
	for {
		k, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"BBBB", "CCCC", "DDDD"}, keys)
}
