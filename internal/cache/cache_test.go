package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := NewAt(dir)
	require.NoError(t, err)
	assert.NotNil(t, c)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSetAndGet(t *testing.T) {
	c, err := NewAt(t.TempDir())
	require.NoError(t, err)

	node := "7f3a2b9c1d4e5f60718293a4b5c6d7e8f9012345"
	require.NoError(t, c.Set(node, 12345))

	rev, hit := c.Get(node)
	assert.True(t, hit)
	assert.Equal(t, 12345, rev)
}

func TestGetMiss(t *testing.T) {
	c, err := NewAt(t.TempDir())
	require.NoError(t, err)

	rev, hit := c.Get("no-such-node")
	assert.False(t, hit)
	assert.Zero(t, rev)
}

func TestGetCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := NewAt(dir)
	require.NoError(t, err)

	node := "deadbeef"
	require.NoError(t, c.Set(node, 7))

	// Corrupt the file on disk
	require.NoError(t, os.WriteFile(c.getPath(node), []byte("{not json"), 0644))

	rev, hit := c.Get(node)
	assert.False(t, hit)
	assert.Zero(t, rev)

	// Corrupt entry was removed
	_, err = os.Stat(c.getPath(node))
	assert.True(t, os.IsNotExist(err))
}

func TestOverwrite(t *testing.T) {
	c, err := NewAt(t.TempDir())
	require.NoError(t, err)

	node := "abc123"
	require.NoError(t, c.Set(node, 1))
	require.NoError(t, c.Set(node, 2))

	rev, hit := c.Get(node)
	assert.True(t, hit)
	assert.Equal(t, 2, rev)
}

func TestDelete(t *testing.T) {
	c, err := NewAt(t.TempDir())
	require.NoError(t, err)

	node := "abc123"
	require.NoError(t, c.Set(node, 42))
	require.NoError(t, c.Delete(node))

	_, hit := c.Get(node)
	assert.False(t, hit)

	// Deleting a missing binding is not an error
	assert.NoError(t, c.Delete(node))
}

func TestClear(t *testing.T) {
	c, err := NewAt(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Set("node-a", 1))
	require.NoError(t, c.Set("node-b", 2))

	require.NoError(t, c.Clear())

	_, hitA := c.Get("node-a")
	_, hitB := c.Get("node-b")
	assert.False(t, hitA)
	assert.False(t, hitB)
}
