package table

import (
	"fmt"
	"testing"
)

func hashStr(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func TestSetGet(t *testing.T) {
	tb := New()
	tb.Set("a", hashStr("a"), 1)
	tb.Set("b", hashStr("b"), 2)

	if v, ok := tb.Get("a", hashStr("a")); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v ok=%v", v, ok)
	}
	if v, ok := tb.Get("b", hashStr("b")); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v ok=%v", v, ok)
	}
	if _, ok := tb.Get("c", hashStr("c")); ok {
		t.Fatalf("expected c to be absent")
	}
}

func TestDeleteTombstoneDoesNotBreakProbing(t *testing.T) {
	tb := New()
	// Force several collisions onto the same bucket by constructing keys
	// that hash identically modulo the initial capacity.
	for i := 0; i < 4; i++ {
		k := fmt.Sprintf("k%d", i)
		tb.Set(k, 1, i) // identical hash -> same probe chain
	}
	tb.Delete("k1", 1)
	// k2 and k3 must still be reachable even though k1's slot is now a
	// tombstone sitting earlier in the probe chain.
	if v, ok := tb.Get("k2", 1); !ok || v != 2 {
		t.Fatalf("expected k2=2 after tombstone, got %v ok=%v", v, ok)
	}
	if v, ok := tb.Get("k3", 1); !ok || v != 3 {
		t.Fatalf("expected k3=3 after tombstone, got %v ok=%v", v, ok)
	}
	if tb.Len() != 3 {
		t.Fatalf("expected 3 live entries, got %d", tb.Len())
	}
}

func TestGrowRehashesAllEntries(t *testing.T) {
	tb := New()
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key-%d", i)
		tb.Set(k, hashStr(k), i)
	}
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key-%d", i)
		if v, ok := tb.Get(k, hashStr(k)); !ok || v != i {
			t.Fatalf("expected %s=%d, got %v ok=%v", k, i, v, ok)
		}
	}
	if tb.Len() != 100 {
		t.Fatalf("expected 100 live entries, got %d", tb.Len())
	}
}
