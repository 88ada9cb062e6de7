// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package memoryoracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAvailablePositive(t *testing.T) {
	o := New()
	require.NotZero(t, o.Available())
}

func TestRequestAlwaysTrueForZero(t *testing.T) {
	o := New()
	require.True(t, o.Request(0, false))
}

func TestRequestHardRetriesOnce(t *testing.T) {
	calls := 0
	o := &Oracle{available: func() uint64 {
		calls++
		return 1
	}}
	require.False(t, o.Request(1<<62, true))
	require.Equal(t, 2, calls)
}

func TestShortStatus(t *testing.T) {
	o := &Oracle{available: func() uint64 { return 0 }}
	require.True(t, o.ShortStatus())

	o = &Oracle{available: func() uint64 { return 1 << 40 }}
	require.False(t, o.ShortStatus())
}
