package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("overwrite a = %v", v)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should be deleted")
	}
}

func TestLRUExpiry(t *testing.T) {
	clock := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	c := NewLRU[string](10, time.Minute)
	c.now = func() time.Time { return clock }

	c.Set("old", "x")
	clock = clock.Add(45 * time.Second)
	c.Set("new", "y")
	clock = clock.Add(30 * time.Second)

	if _, ok := c.Get("old"); ok {
		t.Fatal("old should have expired")
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("new should still be live")
	}

	c.Set("stale", "z")
	clock = clock.Add(2 * time.Minute)
	if n := c.PurgeExpired(); n != 2 {
		t.Fatalf("PurgeExpired = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after purge", c.Len())
	}
}
