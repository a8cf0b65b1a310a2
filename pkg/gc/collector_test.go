package gc

import (
	"testing"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// fakeRoots lets a test control exactly which values the collector treats
// as reachable, without needing a full VM.
type fakeRoots struct {
	values []value.Value
}

func (f *fakeRoots) Roots(add func(value.Value)) {
	for _, v := range f.values {
		add(v)
	}
}

func newString(c *Collector, s string) *object.String {
	str := &object.String{Chars: s}
	c.Track(str)
	return str
}

func TestSweepReclaimsUnreachable(t *testing.T) {
	c := New()
	roots := &fakeRoots{}
	c.AddRootProvider(roots)

	kept := newString(c, "kept")
	_ = newString(c, "garbage")
	roots.values = []value.Value{value.ObjectValue(kept)}

	c.Collect()

	if c.Stats().Allocated != 1 {
		t.Fatalf("expected 1 surviving object, got %d", c.Stats().Allocated)
	}

	count := 0
	for o := c.head; o != nil; o = o.Next() {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 object left in the intrusive list, got %d", count)
	}
}

func TestPinKeepsValueAliveAcrossCollect(t *testing.T) {
	c := New()
	roots := &fakeRoots{}
	c.AddRootProvider(roots)

	d := object.NewDict()
	c.Track(d)
	c.Pin(value.ObjectValue(d))
	defer c.Unpin(1)

	c.Collect()

	if c.Stats().Allocated != 1 {
		t.Fatalf("expected pinned dict to survive, allocated=%d", c.Stats().Allocated)
	}
}

func TestCyclicReferencesAreCollected(t *testing.T) {
	c := New()
	roots := &fakeRoots{}
	c.AddRootProvider(roots)

	a := object.NewDict()
	b := object.NewDict()
	c.Track(a)
	c.Track(b)
	a.Put(value.NumberValue(1), value.ObjectValue(b))
	b.Put(value.NumberValue(1), value.ObjectValue(a))
	// Neither dict is rooted, despite referencing each other.

	c.Collect()

	if c.Stats().Allocated != 0 {
		t.Fatalf("expected cyclic pair to be collected, allocated=%d", c.Stats().Allocated)
	}
}
