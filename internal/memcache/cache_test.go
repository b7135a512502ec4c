package memcache

import (
	stdimage "image"
	"testing"

	"github.com/stretchr/testify/require"

	"imagepipe/internal/imagepipe"
)

func img(w, h int) imagepipe.Image {
	return imagepipe.Image{Img: stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))}
}

func key(url string) imagepipe.RequestKey {
	return imagepipe.NewRequestKey(imagepipe.NewRequest(url), imagepipe.CachingEquivalence)
}

func TestCache_PutGetRemove(t *testing.T) {
	c := NewCache(0, nil)
	k := key("http://t/a.jpg")
	c.Put(k, img(10, 10))

	got, ok := c.Get(k)
	require.True(t, ok)
	require.Equal(t, int64(10*10*4), got.CostBytes())

	c.Remove(k)
	_, ok = c.Get(k)
	require.False(t, ok)
}

func TestCache_CachingEquivalentHit(t *testing.T) {
	c := NewCache(0, nil)
	a := imagepipe.NewRequest("http://t/a.jpg")
	b := imagepipe.NewRequest("http://t/a.jpg")
	b.Timeout = 99 // transport hint differs, must not matter for caching-equivalence

	c.Put(imagepipe.NewRequestKey(a, imagepipe.CachingEquivalence), img(4, 4))
	got, ok := c.Get(imagepipe.NewRequestKey(b, imagepipe.CachingEquivalence))
	require.True(t, ok)
	require.Equal(t, int64(4*4*4), got.CostBytes())
}

func TestCache_EvictsOverBudget(t *testing.T) {
	// Budget for roughly one 10x10 RGBA image (400 bytes).
	c := NewCache(400, nil)
	k1 := key("http://t/a.jpg")
	k2 := key("http://t/b.jpg")

	c.Put(k1, img(10, 10))
	require.Equal(t, int64(400), c.CostUsed())

	c.Put(k2, img(10, 10))
	require.LessOrEqual(t, c.CostUsed(), int64(400))

	_, ok := c.Get(k1)
	require.False(t, ok, "oldest entry should have been evicted over budget")
	_, ok = c.Get(k2)
	require.True(t, ok)
}

func TestCache_NoEvictionWhenBudgetNonPositive(t *testing.T) {
	c := NewCache(0, nil)
	for i := 0; i < 5; i++ {
		c.Put(key(string(rune('a'+i))+"http://t/x.jpg"), img(100, 100))
	}
	require.Equal(t, int64(5*100*100*4), c.CostUsed())
}

func TestCache_Clear(t *testing.T) {
	c := NewCache(0, nil)
	c.Put(key("http://t/a.jpg"), img(1, 1))
	c.Clear()
	require.Equal(t, int64(0), c.CostUsed())
	_, ok := c.Get(key("http://t/a.jpg"))
	require.False(t, ok)
}

func TestCache_PutReplacesExistingKeyCostAccounting(t *testing.T) {
	c := NewCache(0, nil)
	k := key("http://t/a.jpg")
	c.Put(k, img(10, 10))
	c.Put(k, img(20, 20))
	require.Equal(t, int64(20*20*4), c.CostUsed())
}

func TestDefaultCostLimit_Positive(t *testing.T) {
	require.Greater(t, DefaultCostLimit(), int64(0))
}
