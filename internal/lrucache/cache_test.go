// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lrucache

import "testing"

func identity(k uint64) uint64 { return k }

func TestSetGet(t *testing.T) {
	c := New[uint64, string](Config{Size: 8, ShardCount: 1}, identity)
	c.Set(1, "one")
	v, ok := c.Get(1)
	if !ok || v != "one" {
		t.Fatalf("expected (one, true), got (%q, %v)", v, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Fatalf("expected miss for absent key")
	}
}

func TestEviction(t *testing.T) {
	c := New[uint64, int](Config{Size: 2, ShardCount: 1}, identity)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3) // evicts 1, the LRU entry
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected key 1 to be evicted")
	}
	if v, ok := c.Get(2); !ok || v != 2 {
		t.Fatalf("expected key 2 to survive")
	}
	if v, ok := c.Get(3); !ok || v != 3 {
		t.Fatalf("expected key 3 to survive")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Fatalf("expected 1 eviction, got %d", got)
	}
}

func TestRecencyProtectsHotKey(t *testing.T) {
	c := New[uint64, int](Config{Size: 2, ShardCount: 1}, identity)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1) // touch 1, making 2 the LRU victim
	c.Set(3, 3)
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected key 1 to survive due to recency")
	}
	if _, ok := c.Get(2); ok {
		t.Fatalf("expected key 2 to be evicted")
	}
}

func TestGetOrInsert(t *testing.T) {
	c := New[uint64, int](Config{Size: 4, ShardCount: 1}, identity)
	calls := 0
	makeNew := func() int { calls++; return 42 }
	v, inserted := c.GetOrInsert(1, makeNew)
	if !inserted || v != 42 || calls != 1 {
		t.Fatalf("expected fresh insert of 42, got v=%d inserted=%v calls=%d", v, inserted, calls)
	}
	v, inserted = c.GetOrInsert(1, makeNew)
	if inserted || v != 42 || calls != 1 {
		t.Fatalf("expected cached hit without calling makeNew again")
	}
}

func TestDeleteAndLen(t *testing.T) {
	c := New[uint64, int](Config{Size: 4, ShardCount: 2}, identity)
	c.Set(1, 1)
	c.Set(2, 2)
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	c.Delete(1)
	if c.Len() != 1 {
		t.Fatalf("expected len 1 after delete, got %d", c.Len())
	}
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected key 1 to be gone")
	}
}

func TestRangeStopsEarly(t *testing.T) {
	c := New[uint64, int](Config{Size: 8, ShardCount: 4}, identity)
	for i := uint64(0); i < 8; i++ {
		c.Set(i, int(i))
	}
	seen := 0
	c.Range(func(k uint64, v int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Fatalf("expected Range to stop after 3 entries, saw %d", seen)
	}
}
