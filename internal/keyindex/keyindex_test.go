// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keyindex

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type lexOrder struct{}

func (lexOrder) Less(a, b []byte) bool { return bytes.Compare(a, b) < 0 }

func key(n int) []byte {
	return []byte(fmt.Sprintf("k%08d", n))
}

func TestPutGetHas(t *testing.T) {
	k := New(lexOrder{}, 0)
	require.False(t, k.Has(key(1)))

	prior, err := k.Put(key(1), 42)
	require.NoError(t, err)
	require.EqualValues(t, -1, prior)

	got, ok := k.Get(key(1))
	require.True(t, ok)
	require.EqualValues(t, 42, got)
	require.True(t, k.Has(key(1)))

	prior, err = k.Put(key(1), 7)
	require.NoError(t, err)
	require.EqualValues(t, 42, prior)

	got, ok = k.Get(key(1))
	require.True(t, ok)
	require.EqualValues(t, 7, got)
}

func TestRemove(t *testing.T) {
	k := New(lexOrder{}, 0)
	_, _ = k.Put(key(1), 1)

	slot, ok := k.Remove(key(1))
	require.True(t, ok)
	require.EqualValues(t, 1, slot)

	require.False(t, k.Has(key(1)))
	_, ok = k.Remove(key(1))
	require.False(t, ok)
}

func TestPutUniqueTracksDoubles(t *testing.T) {
	k := New(lexOrder{}, 0)
	require.NoError(t, k.PutUnique(key(1), 0))
	require.NoError(t, k.PutUnique(key(2), 1))
	require.NoError(t, k.PutUnique(key(1), 5))

	// The first insertion remains authoritative until RemoveDoubles
	// is asked to resolve it.
	got, ok := k.Get(key(1))
	require.True(t, ok)
	require.EqualValues(t, 0, got)
	require.Equal(t, 2, k.Size())

	groups := k.RemoveDoubles()
	require.Len(t, groups, 1)
	require.Equal(t, string(key(1)), groups[0].Key)
	require.Equal(t, []int32{0, 5}, groups[0].Slots)

	require.False(t, k.Has(key(1)))
	require.True(t, k.Has(key(2)))
}

func TestRemoveDoublesEmpty(t *testing.T) {
	k := New(lexOrder{}, 0)
	require.NoError(t, k.PutUnique(key(1), 0))
	require.Nil(t, k.RemoveDoubles())
}

func TestKeysAscendingDescending(t *testing.T) {
	k := New(lexOrder{}, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, k.PutUnique(key(i), int32(i)))
	}

	var asc [][]byte
	c := k.Keys(true, nil)
	for kk, ok := c.Next(); ok; kk, ok = c.Next() {
		asc = append(asc, append([]byte(nil), kk...))
	}
	require.Len(t, asc, 20)
	for i := 1; i < len(asc); i++ {
		require.True(t, bytes.Compare(asc[i-1], asc[i]) < 0)
	}

	var desc [][]byte
	c = k.Keys(false, nil)
	for kk, ok := c.Next(); ok; kk, ok = c.Next() {
		desc = append(desc, append([]byte(nil), kk...))
	}
	require.Len(t, desc, 20)
	for i := 1; i < len(desc); i++ {
		require.True(t, bytes.Compare(desc[i-1], desc[i]) > 0)
	}
}

func TestKeysStartCursor(t *testing.T) {
	k := New(lexOrder{}, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, k.PutUnique(key(i), int32(i)))
	}

	c := k.Keys(true, key(5))
	first, ok := c.Next()
	require.True(t, ok)
	require.Equal(t, key(5), first)
}

func TestSmallestLargestKey(t *testing.T) {
	k := New(lexOrder{}, 0)
	_, ok := k.SmallestKey()
	require.False(t, ok)

	for i := 0; i < 10; i++ {
		require.NoError(t, k.PutUnique(key(i), int32(i)))
	}
	small, ok := k.SmallestKey()
	require.True(t, ok)
	require.Equal(t, key(0), small)

	large, ok := k.LargestKey()
	require.True(t, ok)
	require.Equal(t, key(9), large)
}

func TestClear(t *testing.T) {
	k := New(lexOrder{}, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, k.PutUnique(key(i), int32(i)))
	}
	k.Clear()
	require.Equal(t, 0, k.Size())
	require.True(t, k.IsEmpty())
	require.False(t, k.Has(key(0)))
}

// TestPermutationStress mirrors bit's own permutation-driven table
// tests: insert a random permutation of keys, verify every one
// resolves, remove a random half, and verify what remains.
func TestPermutationStress(t *testing.T) {
	const n = 2000
	rng := rand.New(rand.NewSource(42))
	perm := rng.Perm(n)

	k := New(lexOrder{}, n)
	for _, i := range perm {
		_, err := k.Put(key(i), int32(i))
		require.NoError(t, err)
	}
	require.Equal(t, n, k.Size())

	for i := 0; i < n; i++ {
		got, ok := k.Get(key(i))
		require.True(t, ok)
		require.EqualValues(t, i, got)
	}

	removed := map[int]bool{}
	for _, i := range rng.Perm(n)[:n/2] {
		_, ok := k.Remove(key(i))
		require.True(t, ok)
		removed[i] = true
	}
	require.Equal(t, n-n/2, k.Size())

	for i := 0; i < n; i++ {
		_, ok := k.Get(key(i))
		require.Equal(t, !removed[i], ok)
	}
}

func TestMemGrowsWithSize(t *testing.T) {
	k := New(lexOrder{}, 0)
	base := k.Mem()
	for i := 0; i < 100; i++ {
		_, _ = k.Put(key(i), int32(i))
	}
	require.Greater(t, k.Mem(), base)
}
