package retriever

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_PutAndGet(t *testing.T) {
	c := NewCache(10, 0)
	key := Key("find top customers", 5, DefaultWeights(), "fp1")

	result := &RetrievalResult{Query: "find top customers", K: 5}
	c.Put(key, result)

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Same(t, result, got)
}

func TestCache_MissOnDifferentKey(t *testing.T) {
	c := NewCache(10, 0)
	c.Put(Key("q1", 5, DefaultWeights(), "fp1"), &RetrievalResult{Query: "q1"})

	_, ok := c.Get(Key("q2", 5, DefaultWeights(), "fp1"))
	assert.False(t, ok)
}

func TestCache_KeyDependsOnFingerprint(t *testing.T) {
	k1 := Key("q", 5, DefaultWeights(), "fp1")
	k2 := Key("q", 5, DefaultWeights(), "fp2")
	assert.NotEqual(t, k1, k2)
}

func TestCache_KeyDependsOnWeights(t *testing.T) {
	k1 := Key("q", 5, DefaultWeights(), "fp")
	k2 := Key("q", 5, AutoAdjustedWeights(), "fp")
	assert.NotEqual(t, k1, k2)
}

func TestCache_KeyDependsOnK(t *testing.T) {
	k1 := Key("q", 5, DefaultWeights(), "fp")
	k2 := Key("q", 10, DefaultWeights(), "fp")
	assert.NotEqual(t, k1, k2)
}

func TestCache_Invalidate_ClearsAllEntries(t *testing.T) {
	c := NewCache(10, 0)
	key := Key("q", 5, DefaultWeights(), "fp1")
	c.Put(key, &RetrievalResult{Query: "q"})
	assert.Equal(t, 1, c.Len())

	c.Invalidate()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_ZeroSizeNeverStores(t *testing.T) {
	c := NewCache(0, 0)
	key := Key("q", 5, DefaultWeights(), "fp1")
	c.Put(key, &RetrievalResult{Query: "q"})

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, 0)
	c.Put("a", &RetrievalResult{Query: "a"})
	c.Put("b", &RetrievalResult{Query: "b"})
	c.Put("c", &RetrievalResult{Query: "c"})

	assert.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestCache_TTLExpiresEntries(t *testing.T) {
	c := NewCache(10, 10*time.Millisecond)
	c.Put("a", &RetrievalResult{Query: "a"})

	_, ok := c.Get("a")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok)
}
