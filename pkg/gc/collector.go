// Package gc implements Blade's tri-color mark-sweep collector.
//
// Blade objects are never reclaimed by Go's own garbage collector while
// still reachable from Blade state: every heap object is additionally
// linked into an intrusive, collector-owned list (via the Next/SetNext
// methods promoted from value.Header), and only this package's sweep
// decides when an object's native resources (files, sqlite handles,
// import-cache entries) are released. This lets resource finalization stay
// deterministic — tied to a sweep, not to whenever Go's own collector
// happens to run a value out of scope — exactly as a from-scratch
// mark-sweep interpreter needs for `close()`-shaped semantics.
//
// Design mirrors a classic two-phase collector:
//  1. markRoots walks every root the embedding VM supplies (operand stack,
//     call frames, open upvalues, globals, the compiler's own constant
//     pool while compiling, and any temporarily pinned values) and marks
//     them grey.
//  2. traceReferences repeatedly calls Trace on every grey object,
//     marking everything it reaches, until no grey objects remain (black).
//  3. sweep walks the intrusive object list; anything left unmarked is
//     unreachable, gets Finalize()'d, and is unlinked.
package gc

import "github.com/blade-lang/blade/pkg/value"

// RootProvider is implemented by the VM (and, during compilation, by the
// compiler) to enumerate every Value the collector must treat as a root.
// Roots is called once per collection; it should push every live Value it
// knows about to add.
type RootProvider interface {
	Roots(add func(value.Value))
}

// Pruner is implemented by structures that hold a reference to a heap
// object outside the normal root/Trace graph, so the collector can drop
// those references once the object they point to didn't survive this
// cycle's mark phase — e.g. the VM's string intern set (spec §4.C:
// "entries in the intern set whose key string is unmarked are removed
// before sweep"). PruneUnmarked runs after tracing, while mark bits from
// this cycle are still set, and before Sweep finalizes anything.
type Pruner interface {
	PruneUnmarked()
}

// Collector owns the intrusive list of every object allocated through it
// and the threshold-based scheduling that decides when to collect.
type Collector struct {
	head value.Object // intrusive list head; objects link via Next/SetNext
	grey []value.Object

	providers []RootProvider
	pruners   []Pruner

	// pinned holds values the VM has temporarily pinned outside of any
	// root structure it already enumerates — e.g. a Dict under
	// construction by Clone, per the resolved Open Question in DESIGN.md.
	pinned []value.Value

	allocated int // live object count since last collection
	threshold int // GC triggers once allocated exceeds this

	bytesAllocated int64
	nextGC         int64
}

const (
	initialThreshold = 256
	growthFactor     = 2
	initialNextGC    = 1 << 20 // 1 MiB of notional allocation pressure
)

// New creates a collector with the spec's default initial threshold.
func New() *Collector {
	return &Collector{
		threshold: initialThreshold,
		nextGC:    initialNextGC,
	}
}

// SetThreshold overrides the collection threshold, e.g. from the `-g`
// launcher flag. Takes effect on the next ShouldCollect check.
func (c *Collector) SetThreshold(n int) {
	c.threshold = n
}

// AddRootProvider registers a source of GC roots, typically the VM itself
// and, while a REPL session keeps a compiler alive across statements, the
// compiler.
func (c *Collector) AddRootProvider(p RootProvider) {
	c.providers = append(c.providers, p)
}

// AddPruner registers a Pruner consulted once per Collect, after tracing
// and before sweep.
func (c *Collector) AddPruner(p Pruner) {
	c.pruners = append(c.pruners, p)
}

// Track links obj into the collector's intrusive object list. Every
// constructor for a heap Object (String, List, Dict, Closure, Instance,
// ...) must call this exactly once, immediately after allocation.
func (c *Collector) Track(obj value.Object) {
	obj.SetNext(c.head)
	c.head = obj
	c.allocated++
}

// Pin temporarily roots v for the duration of an operation the collector
// cannot otherwise see into, such as building a Dict with Clone before it
// is stored anywhere reachable. Unpin must be called exactly once, even on
// an error path (defer c.Unpin(len(before))).
func (c *Collector) Pin(v value.Value) {
	c.pinned = append(c.pinned, v)
}

// Unpin drops the most recently pinned n values (LIFO, matching typical
// defer-based pin/unpin pairing).
func (c *Collector) Unpin(n int) {
	if n > len(c.pinned) {
		n = len(c.pinned)
	}
	c.pinned = c.pinned[:len(c.pinned)-n]
}

// ShouldCollect reports whether allocation pressure has crossed the
// current threshold. The VM checks this at opcode safe points (loop back
// edges and function returns) rather than after every single instruction.
func (c *Collector) ShouldCollect() bool {
	return c.allocated > c.threshold
}

// Collect runs a full mark-sweep cycle: mark every root, trace outward
// from them, sweep anything left unmarked, then grow the threshold so the
// next collection doesn't immediately re-trigger.
func (c *Collector) Collect() {
	c.markRoots()
	c.traceReferences()
	for _, p := range c.pruners {
		p.PruneUnmarked()
	}
	freed := c.sweep()
	c.allocated -= freed
	c.threshold = (c.allocated + freed) * growthFactor
	if c.threshold < initialThreshold {
		c.threshold = initialThreshold
	}
}

func (c *Collector) markRoots() {
	mark := func(v value.Value) {
		c.markValue(v)
	}
	for _, p := range c.providers {
		p.Roots(mark)
	}
	for _, v := range c.pinned {
		c.markValue(v)
	}
}

func (c *Collector) markValue(v value.Value) {
	if !v.IsObject() || v.Obj == nil {
		return
	}
	c.markObject(v.Obj)
}

func (c *Collector) markObject(o value.Object) {
	if o.Marked() {
		return
	}
	o.SetMarked(true)
	c.grey = append(c.grey, o)
}

func (c *Collector) traceReferences() {
	for len(c.grey) > 0 {
		n := len(c.grey) - 1
		obj := c.grey[n]
		c.grey = c.grey[:n]
		obj.Trace(c.markValue)
	}
}

// sweep walks the intrusive list, finalizing and unlinking every unmarked
// object, and clears the mark bit on survivors for the next cycle. It
// returns the number of objects freed.
func (c *Collector) sweep() int {
	freed := 0
	var prev value.Object
	cur := c.head
	for cur != nil {
		next := cur.Next()
		if cur.Marked() {
			cur.SetMarked(false)
			cur.BumpStale()
			prev = cur
		} else {
			_ = cur.Finalize()
			freed++
			if prev == nil {
				c.head = next
			} else {
				prev.SetNext(next)
			}
		}
		cur = next
	}
	return freed
}

// Stats reports bookkeeping useful for the §8 allocation-pressure
// regression test and the `-d` debugger's memory view.
type Stats struct {
	Allocated int
	Threshold int
}

func (c *Collector) Stats() Stats {
	return Stats{Allocated: c.allocated, Threshold: c.threshold}
}
