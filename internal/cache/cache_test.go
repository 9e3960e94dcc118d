package cache

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryBasic(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	// Initially empty
	if _, found := c.Get("test"); found {
		t.Error("expected cache miss for non-existent key")
	}

	c.Set("test", "value", time.Minute)

	got, found := c.Get("test")
	if !found {
		t.Fatal("expected cache hit")
	}
	if got != "value" {
		t.Errorf("unexpected value: %q", got)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMemoryTTL(t *testing.T) {
	c := New[int](0)
	defer c.Stop()

	c.Set("short", 1, 50*time.Millisecond)
	c.Set("forever", 2, 0)

	if _, found := c.Get("short"); !found {
		t.Error("expected cache hit immediately after set")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected cache miss after TTL expired")
	}
	if _, found := c.Get("forever"); !found {
		t.Error("entries without TTL must not expire")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	c := New[int](0)
	defer c.Stop()

	c.Set("doc:1:v1", 1, 0)
	c.Set("doc:1:v2", 2, 0)
	c.Set("doc:2:v1", 3, 0)

	c.Invalidate("doc:1:v1")
	if _, found := c.Get("doc:1:v1"); found {
		t.Error("expected doc:1:v1 to be invalidated")
	}

	if n := c.InvalidatePrefix("doc:1:"); n != 1 {
		t.Errorf("expected 1 entry removed by prefix, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected 0 entries after InvalidateAll, got %d", c.Len())
	}
}

func TestMemoryGetOrCreate(t *testing.T) {
	c := New[int](0)
	defer c.Stop()

	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := c.GetOrCreate("answer", 0, create)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected create to run once, ran %d times", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("failing", 0, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("expected create error, got %v", err)
	}
	if _, found := c.Get("failing"); found {
		t.Error("errors must not be cached")
	}
}

func TestEntryIsExpired(t *testing.T) {
	entry := &Entry[int]{ExpiresAt: time.Now().Add(time.Minute)}
	if entry.IsExpired() {
		t.Error("expected entry to not be expired")
	}

	entry.ExpiresAt = time.Now().Add(-time.Minute)
	if !entry.IsExpired() {
		t.Error("expected entry to be expired")
	}

	entry.ExpiresAt = time.Time{}
	if entry.IsExpired() {
		t.Error("zero expiry means never expires")
	}
}

func TestMemoryCleanupLoop(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	defer c.Stop()

	c.Set("a", 1, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	if c.Len() != 0 {
		t.Errorf("expected cleanup to evict expired entry, %d left", c.Len())
	}
}

func TestMemoryStopIdempotent(t *testing.T) {
	c := New[int](time.Minute)

	// Calling Stop() multiple times should not panic
	c.Stop()
	c.Stop()
	c.Stop()
}
