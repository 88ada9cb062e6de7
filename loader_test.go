// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFreshFileSkipsDedup(t *testing.T) {
	tbl := openTemp(t)
	require.Equal(t, 0, tbl.Size())
	require.NoError(t, tbl.ConsistencyCheck())
}

func TestLoadWithoutTailShadowUsesKeysOnlyScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.fixrow")
	raw := append(append([]byte{}, rec("AAAA", "1111")...), rec("BBBB", "2222")...)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	tbl, err := New(path, testSchema(), WithTailShadow(false))
	require.NoError(t, err)
	defer tbl.Close()

	require.False(t, tbl.UsesTailShadow())
	require.Equal(t, 2, tbl.Size())

	got, ok, err := tbl.Get([]byte("AAAA"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec("AAAA", "1111"), got)
}

// Reload round trip (property 6): closing and reopening a Table
// yields the same records for every key.
func TestReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.fixrow")

	tbl, err := New(path, testSchema())
	require.NoError(t, err)
	for _, k := range []string{"AAAA", "BBBB", "CCCC"} {
		_, err := tbl.Put(rec(k, k))
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Close())

	reopened, err := New(path, testSchema())
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 3, reopened.Size())
	for _, k := range []string{"AAAA", "BBBB", "CCCC"} {
		got, ok, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, rec(k, k), got)
	}
}

func TestLoadRepairsTornTrailingBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.fixrow")
	raw := append(append([]byte{}, rec("AAAA", "AAAA")...), []byte{1, 2, 3}...)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	tbl, err := New(path, testSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.Equal(t, 1, tbl.Size())
	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 8, stat.Size())
}

func TestDecideTailShadowRespectsAllowTailShadowFalse(t *testing.T) {
	cfg := newConfig(WithTailShadow(false))
	got := decideTailShadow(cfg, testSchema(), 1000, nil)
	require.False(t, got)
}

func TestDecideTailShadowAllowsOnEmptyFile(t *testing.T) {
	cfg := newConfig()
	got := decideTailShadow(cfg, testSchema(), 0, nil)
	require.True(t, got)
}
