package catalog

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(t *testing.T, name string) (*Indexer, *Cache) {
	t.Helper()
	dir := t.TempDir()
	cache := NewCache(32)
	ix, err := NewIndexer(cache, filepath.Join(dir, name), filepath.Join(dir, "scratch"), 8)
	require.NoError(t, err)
	return ix, cache
}

// Property 3 (ungrouped half): after sort(), keys are non-decreasing.
func TestIndexSortOrder(t *testing.T) {
	ix, _ := newTestIndexer(t, "idx")
	r := rand.New(rand.NewSource(1))
	keys := make([]uint64, 200)
	for i := range keys {
		k := uint64(r.Intn(500))
		keys[i] = k
		require.NoError(t, ix.Insert(k, uint64(i)))
	}
	require.NoError(t, ix.Sort())
	require.Equal(t, int64(len(keys)), ix.Count())

	var prev uint64
	for i := int64(0); i < ix.Count(); i++ {
		k, err := ix.KeyAt(i)
		require.NoError(t, err)
		if i > 0 {
			assert.LessOrEqual(t, prev, k)
		}
		prev = k
	}
}

// Property 3 (grouped half): after group(), keys are strictly increasing
// and element_count equals the number of distinct keys.
func TestIndexGroupDedupesKeysAndCollectsPostings(t *testing.T) {
	ix, _ := newTestIndexer(t, "idx")
	pairs := []entry{
		{Key: 5, Value: 100}, {Key: 1, Value: 10}, {Key: 5, Value: 101},
		{Key: 3, Value: 30}, {Key: 1, Value: 11}, {Key: 5, Value: 100}, // duplicate value under dedupe
	}
	for _, p := range pairs {
		require.NoError(t, ix.Insert(p.Key, p.Value))
	}
	require.NoError(t, ix.Sort())
	require.NoError(t, ix.Group(true))

	assert.EqualValues(t, 3, ix.Count(), "3 distinct keys")

	var prev uint64
	var prevSet bool
	wantSizes := map[uint64]int64{1: 2, 3: 1, 5: 2} // key 5 dedupes to {100,101}
	for i := int64(0); i < ix.Count(); i++ {
		k, err := ix.KeyAt(i)
		require.NoError(t, err)
		if prevSet {
			assert.Less(t, prev, k, "group() keys must be strictly increasing")
		}
		prev, prevSet = k, true

		groupOffset, err := ix.ValueAt(i)
		require.NoError(t, err)
		size, err := ix.GroupSize(groupOffset)
		require.NoError(t, err)
		assert.Equal(t, wantSizes[k], size, "key %d posting-list size", k)
	}
}

func TestIndexLowerBoundAndFindKey(t *testing.T) {
	ix, _ := newTestIndexer(t, "idx")
	for _, k := range []uint64{10, 20, 20, 30, 50} {
		require.NoError(t, ix.Insert(k, k))
	}
	require.NoError(t, ix.Sort())

	lb, err := ix.LowerBound(25)
	require.NoError(t, err)
	k, err := ix.KeyAt(lb)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), k)

	lb, err = ix.LowerBound(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, lb)

	lb, err = ix.LowerBound(1000)
	require.NoError(t, err)
	assert.EqualValues(t, ix.Count(), lb)

	_, ok, err := ix.FindKey(20)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = ix.FindKey(21)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Group() before Sort() is the sort-invariant violation §7 calls fatal.
func TestIndexGroupWithoutSortIsInvariantError(t *testing.T) {
	ix, _ := newTestIndexer(t, "idx")
	require.NoError(t, ix.Insert(1, 1))
	err := ix.Group(false)
	assert.ErrorIs(t, err, ErrSortInvariant)
}

func TestIndexSortBeforeAnyInsertStillWorks(t *testing.T) {
	ix, _ := newTestIndexer(t, "idx")
	require.NoError(t, ix.Sort())
	assert.EqualValues(t, 0, ix.Count())
	_, err := os.Stat(ix.path)
	require.NoError(t, err)
}
