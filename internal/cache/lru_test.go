package cache

import (
	"testing"
	"time"
)

var _ Cache[string] = (*LRUCache[string])(nil)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Get("key1") // key2 is now least recently used
	c.Set("key4", "value4")

	if _, found := c.Get("key2"); found {
		t.Error("key2 should have been evicted")
	}
	for _, k := range []string{"key1", "key3", "key4"} {
		if _, found := c.Get(k); !found {
			t.Errorf("%s should still exist", k)
		}
	}
	if c.Size() != 3 {
		t.Errorf("expected size 3, got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute).WithClock(func() time.Time { return now })

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(30 * time.Second)
	c.Set("b", 3) // refreshes b's expiry

	now = now.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("expected b=3, got %v %v", v, ok)
	}

	now = now.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("expected 1 cleaned entry, got %d", n)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCacheSetIf(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	newer := func(v int) func(int, bool) bool {
		return func(cur int, exists bool) bool { return !exists || v > cur }
	}

	if !c.SetIf("k", 5, newer(5)) {
		t.Fatal("first set should succeed")
	}
	if c.SetIf("k", 3, newer(3)) {
		t.Fatal("older value must not replace newer one")
	}
	if v, _ := c.Get("k"); v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
	if !c.SetIf("k", 7, newer(7)) {
		t.Fatal("newer value should replace")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache[string](2, time.Hour)
	c.Set("a", "x")
	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}
}

func TestLRUCacheContainsKeepsOrder(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](2, time.Minute).WithClock(func() time.Time { return now })
	c.Set("a", "x")
	c.Set("b", "y")

	if !c.Contains("a") {
		t.Fatal("a should be present")
	}
	c.Set("c", "z") // a is still least recently used
	if c.Contains("a") {
		t.Error("Contains must not refresh recency")
	}

	now = now.Add(2 * time.Minute)
	if c.Contains("b") {
		t.Error("expired entry reported as present")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second).WithClock(func() time.Time { return now })
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(time.Minute)

	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}

	m.StartCleanup(10 * time.Millisecond)
	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() { m.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running cleanup")
	}
}
