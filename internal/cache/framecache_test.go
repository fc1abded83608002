package cache

import (
	"testing"
	"time"

	"github.com/h1arc/weaveline/rules/contract"
)

func TestFrameCacheSameFrameHit(t *testing.T) {
	c := NewFrameCache(nil)
	c.Insert(100, 200, 1)
	got, ok := c.Lookup(100, 1)
	if !ok || got != 200 {
		t.Fatalf("expected hit with 200, got %d ok=%v", got, ok)
	}
}

func TestFrameCacheStaleFrameMisses(t *testing.T) {
	c := NewFrameCache(nil)
	c.Insert(100, 200, 1)
	if _, ok := c.Lookup(100, 2); ok {
		t.Fatalf("expected miss after frame advance")
	}
	// The stale entry was evicted in place; a same-frame retry misses too.
	if _, ok := c.Lookup(100, 1); ok {
		t.Fatalf("expected evicted entry to stay gone")
	}
}

func TestFrameCacheOverwriteInPlace(t *testing.T) {
	c := NewFrameCache(nil)
	c.Insert(100, 200, 1)
	c.Insert(100, 300, 1)
	got, ok := c.Lookup(100, 1)
	if !ok || got != 300 {
		t.Fatalf("expected overwritten value 300, got %d ok=%v", got, ok)
	}
}

func TestFrameCacheEvictsOlderWay(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewFrameCache(func() time.Time { return now })

	// Three keys landing in the same set: same index bits after the
	// avalanche mix is hard to force with arbitrary keys, so walk key
	// space until three keys collide.
	keys := collidingKeys(t, 3)

	c.Insert(keys[0], 1, 1)
	now = now.Add(time.Millisecond)
	c.Insert(keys[1], 2, 1)
	now = now.Add(time.Millisecond)
	c.Insert(keys[2], 3, 1)

	// keys[0] carried the oldest timestamp and had to go.
	if _, ok := c.Lookup(keys[0], 1); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if got, ok := c.Lookup(keys[1], 1); !ok || got != 2 {
		t.Fatalf("expected keys[1] to survive, got %d ok=%v", got, ok)
	}
	if got, ok := c.Lookup(keys[2], 1); !ok || got != 3 {
		t.Fatalf("expected keys[2] to survive, got %d ok=%v", got, ok)
	}
}

func TestFrameCacheCapacityBound(t *testing.T) {
	c := NewFrameCache(nil)
	for key := contract.ActionID(1); key <= 10*FrameCapacity; key++ {
		c.Insert(key, key+1, 1)
	}
	live := 0
	for key := contract.ActionID(1); key <= 10*FrameCapacity; key++ {
		if _, ok := c.Lookup(key, 1); ok {
			live++
		}
	}
	if live > FrameCapacity {
		t.Fatalf("expected at most %d live entries, found %d", FrameCapacity, live)
	}
}

func TestFrameCacheMRUSwapKeepsBothWays(t *testing.T) {
	c := NewFrameCache(nil)
	keys := collidingKeys(t, 2)

	c.Insert(keys[0], 1, 1)
	c.Insert(keys[1], 2, 1)

	// Touch the way-1 resident; both keys must remain resident afterwards.
	if got, ok := c.Lookup(keys[0], 1); !ok || got != 1 {
		t.Fatalf("expected keys[0] hit, got %d ok=%v", got, ok)
	}
	if got, ok := c.Lookup(keys[1], 1); !ok || got != 2 {
		t.Fatalf("expected keys[1] hit, got %d ok=%v", got, ok)
	}
	if got, ok := c.Lookup(keys[0], 1); !ok || got != 1 {
		t.Fatalf("expected keys[0] to still hit, got %d ok=%v", got, ok)
	}
}

// collidingKeys finds n distinct keys mapping to one set.
func collidingKeys(t *testing.T, n int) []contract.ActionID {
	t.Helper()
	want := avalanche(1) & (frameSets - 1)
	keys := []contract.ActionID{1}
	for key := contract.ActionID(2); len(keys) < n && key < 1<<20; key++ {
		if avalanche(uint32(key))&(frameSets-1) == want {
			keys = append(keys, key)
		}
	}
	if len(keys) < n {
		t.Fatalf("could not find %d colliding keys", n)
	}
	return keys
}
