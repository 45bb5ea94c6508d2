package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-conduit/review/internal/cache"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/stack"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewAt(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestResolveIdentities(t *testing.T) {
	t.Run("binds from markers", func(t *testing.T) {
		commits := []*stack.Commit{
			{Node: "aaa", Body: "Differential Revision: https://phab.example.com/D10"},
			{Node: "bbb", Body: "no marker here"},
		}

		fromCache, err := ResolveIdentities(commits, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, commits[0].RevID)
		assert.Zero(t, commits[1].RevID)
		assert.Empty(t, fromCache)
	})

	t.Run("falls back to the cache", func(t *testing.T) {
		store := newTestCache(t)
		require.NoError(t, store.Set("bbb", 20))

		commits := []*stack.Commit{{Node: "bbb", Body: "created but never amended"}}

		fromCache, err := ResolveIdentities(commits, store)
		require.NoError(t, err)
		assert.Equal(t, 20, commits[0].RevID)
		assert.True(t, fromCache["bbb"])
	})

	t.Run("marker wins over cache", func(t *testing.T) {
		store := newTestCache(t)
		require.NoError(t, store.Set("ccc", 30))

		commits := []*stack.Commit{
			{Node: "ccc", Body: "Differential Revision: https://phab.example.com/D31"},
		}

		fromCache, err := ResolveIdentities(commits, store)
		require.NoError(t, err)
		assert.Equal(t, 31, commits[0].RevID)
		assert.False(t, fromCache["ccc"])
	})

	t.Run("rejects duplicate claims", func(t *testing.T) {
		commits := []*stack.Commit{
			{Node: "aaa", Body: "Differential Revision: https://phab.example.com/D10"},
			{Node: "bbb", Body: "Differential Revision: https://phab.example.com/D10"},
		}

		_, err := ResolveIdentities(commits, nil)
		require.Error(t, err)

		var dup *DuplicateIdentityError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, 10, dup.RevID)
		assert.Equal(t, []string{"aaa", "bbb"}, dup.Nodes)
	})
}

func TestCheckBound(t *testing.T) {
	remote := map[int]*phabricator.Revision{
		10: {ID: 10, PHID: "PHID-DREV-10"},
	}

	t.Run("passes when every binding exists", func(t *testing.T) {
		commits := []*stack.Commit{{Node: "aaa", RevID: 10}, {Node: "bbb"}}
		assert.NoError(t, CheckBound(commits, remote))
	})

	t.Run("rejects stale bindings", func(t *testing.T) {
		commits := []*stack.Commit{{Node: "aaa", RevID: 10}, {Node: "bbb", RevID: 999}}
		err := CheckBound(commits, remote)
		require.Error(t, err)

		var stale *StaleIdentityError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, []int{999}, stale.RevIDs)
	})
}

func TestPruneCacheBindings(t *testing.T) {
	store := newTestCache(t)
	require.NoError(t, store.Set("aaa", 999))

	commits := []*stack.Commit{{Node: "aaa", Body: "whatever"}}
	fromCache, err := ResolveIdentities(commits, store)
	require.NoError(t, err)
	require.Equal(t, 999, commits[0].RevID)

	PruneCacheBindings(commits, map[int]*phabricator.Revision{}, store, fromCache)

	assert.Zero(t, commits[0].RevID)
	_, ok := store.Get("aaa")
	assert.False(t, ok)
}

func TestBoundIDs(t *testing.T) {
	commits := []*stack.Commit{{RevID: 5}, {}, {RevID: 7}}
	assert.Equal(t, []int{5, 7}, BoundIDs(commits))
}
