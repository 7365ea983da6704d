package kvcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissThenPutThenHit(t *testing.T) {
	c := New(10)
	_, ok := c.Get("hello")
	assert.False(t, ok)

	c.Put("hello", []int{1, 2, 3}, 3, 10)
	entry, ok := c.Get("hello")
	require.True(t, ok)
	assert.Equal(t, 3, entry.SeqLen)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put("a", []int{1}, 1, 1)
	c.Put("b", []int{1}, 1, 1)
	c.Get("a") // touch a, making b the LRU
	c.Put("c", []int{1}, 1, 1)

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New(10)
	c.Put("hello", []int{1, 2, 3}, 3, 10)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, c.SaveSnapshot(path))

	restored := New(10)
	require.NoError(t, restored.LoadSnapshot(path))

	entry, ok := restored.Get("hello")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, entry.TokenIDs)
}

func TestLoadSnapshotMissingFileIsNotError(t *testing.T) {
	c := New(10)
	err := c.LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
}
