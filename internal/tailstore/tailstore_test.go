// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tailstore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func tail(n int) []byte {
	return []byte(fmt.Sprintf("tail-%03d-", n))
}

func TestAddGet(t *testing.T) {
	ts := New(len(tail(0)), 0)
	slot, err := ts.Add(tail(1))
	require.NoError(t, err)
	require.EqualValues(t, 0, slot)

	got, ok := ts.Get(0)
	require.True(t, ok)
	require.True(t, bytes.Equal(tail(1), got))

	_, ok = ts.Get(1)
	require.False(t, ok)
}

func TestSetOverwrite(t *testing.T) {
	ts := New(len(tail(0)), 0)
	_, err := ts.Add(tail(1))
	require.NoError(t, err)

	require.NoError(t, ts.Set(0, tail(9)))
	got, ok := ts.Get(0)
	require.True(t, ok)
	require.True(t, bytes.Equal(tail(9), got))

	require.Error(t, ts.Set(5, tail(1)))
}

func TestAddRejectsWrongLength(t *testing.T) {
	ts := New(10, 0)
	_, err := ts.Add([]byte("short"))
	require.Error(t, err)
}

func TestSwapOnDeleteSequence(t *testing.T) {
	ts := New(len(tail(0)), 0)
	for i := 0; i < 5; i++ {
		_, err := ts.Add(tail(i))
		require.NoError(t, err)
	}

	// Remove slot 1 via swap-on-delete: move the last slot's tail
	// into slot 1, then truncate.
	last, ok := ts.Last()
	require.True(t, ok)
	lastCopy := append([]byte(nil), last...)
	require.NoError(t, ts.Set(1, lastCopy))
	ts.Truncate()

	require.EqualValues(t, 4, ts.Size())
	got, ok := ts.Get(1)
	require.True(t, ok)
	require.True(t, bytes.Equal(tail(4), got))

	got, ok = ts.Get(0)
	require.True(t, ok)
	require.True(t, bytes.Equal(tail(0), got))
}

func TestTruncateToEmpty(t *testing.T) {
	ts := New(4, 0)
	_, err := ts.Add([]byte("abcd"))
	require.NoError(t, err)
	ts.Truncate()
	require.EqualValues(t, 0, ts.Size())
	ts.Truncate() // no-op, must not panic
	require.EqualValues(t, 0, ts.Size())
}

func TestClear(t *testing.T) {
	ts := New(len(tail(0)), 0)
	for i := 0; i < 10; i++ {
		_, err := ts.Add(tail(i))
		require.NoError(t, err)
	}
	ts.Clear()
	require.EqualValues(t, 0, ts.Size())
	_, ok := ts.Get(0)
	require.False(t, ok)
}

func TestMemNonDecreasingOnAdd(t *testing.T) {
	ts := New(len(tail(0)), 0)
	base := ts.Mem()
	for i := 0; i < 50; i++ {
		_, err := ts.Add(tail(i))
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, ts.Mem(), base)
}
