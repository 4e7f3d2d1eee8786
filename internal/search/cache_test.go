package search

import (
	"fmt"
	"sync"
	"testing"
)

func TestCachePutThenGet(t *testing.T) {
	c := NewCache(10)
	sig := Signature("ft", "dune", "", 1, 20)

	c.Put(sig, []byte("page-one"))
	got, ok := c.Get(sig)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "page-one" {
		t.Errorf("got %q, want %q", got, "page-one")
	}
}

func TestCacheSignatureDeterministic(t *testing.T) {
	a := Signature("ft", " Dune ", "", 1, 20)
	b := Signature("ft", "dune", "", 1, 20)
	if a != b {
		t.Error("signature should normalize case and whitespace")
	}
	if Signature("ft", "dune", "", 2, 20) == a {
		t.Error("different pages must produce different signatures")
	}
	if Signature("fields", "dune", "", 1, 20) == a {
		t.Error("free-text and field queries must not share signatures")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("key%d", i), []byte{byte(i)})
	}
	// key0 is the LRU entry; inserting a 4th key evicts it.
	c.Put("key3", []byte{3})

	if _, ok := c.Get("key0"); ok {
		t.Error("expected key0 to be evicted")
	}
	for _, key := range []string{"key1", "key2", "key3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestCacheGetPromotesEntry(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []byte("a"))
	c.Put("b", []byte("b"))

	// Touch a so that b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	c.Put("c", []byte("c"))

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted after a was promoted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive")
	}
}

func TestCachePutReplacesExistingKey(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []byte("old"))
	c.Put("a", []byte("new"))

	got, ok := c.Get("a")
	if !ok || string(got) != "new" {
		t.Errorf("got %q, want replaced value %q", got, "new")
	}
	if stats := c.Stats(); stats.Size != 1 {
		t.Errorf("replacing a key must not grow the cache, size=%d", stats.Size)
	}
}

func TestCacheHitRate(t *testing.T) {
	c := NewCache(10)
	if rate := c.Stats().HitRate; rate != 0 {
		t.Errorf("empty cache hit rate = %v, want 0", rate)
	}

	c.Put("a", []byte("a"))
	c.Get("a") // hit
	c.Get("a") // hit
	c.Get("b") // miss

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 2/1", stats.Hits, stats.Misses)
	}
	want := 2.0 / 3.0
	if stats.HitRate != want {
		t.Errorf("hit rate = %v, want %v", stats.HitRate, want)
	}
}

func TestCacheClearResetsCounters(t *testing.T) {
	c := NewCache(10)
	c.Put("a", []byte("a"))
	c.Get("a")
	c.Get("missing")

	c.Clear()

	stats := c.Stats()
	if stats.Size != 0 || stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("clear should reset everything, got %+v", stats)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("entries must be gone after clear")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key%d", (g+i)%32)
				c.Put(key, []byte(key))
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Size > stats.MaxSize {
		t.Errorf("cache exceeded max size under concurrency: %d > %d", stats.Size, stats.MaxSize)
	}
}
