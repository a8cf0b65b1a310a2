package object

import (
	"fmt"
	"strings"

	"github.com/blade-lang/blade/pkg/table"
	"github.com/blade-lang/blade/pkg/value"
)

// String is an immutable, interned byte sequence. Pointer equality between
// two *String values implies byte-for-byte equality, because every String
// is created through the VM's intern table (spec §3, §4.B).
type String struct {
	value.Header
	value.NoFinalize
	Chars string
	Hash  uint64
}

func (s *String) ObjType() value.ObjType       { return value.ObjString }
func (s *String) String() string               { return s.Chars }
func (s *String) Trace(mark func(value.Value)) {}
func (s *String) Len() int                     { return len(s.Chars) }

// ContentHash satisfies value.ContentHasher: dict keys hash strings by
// content, not identity, so a non-interned *String still lands in the same
// bucket as an interned one with equal bytes.
func (s *String) ContentHash() uint64 {
	if s.Hash == 0 {
		return value.HashString(s.Chars)
	}
	return s.Hash
}

// List is a growable, ordered sequence of Values. A hole (an index never
// written, or explicitly cleared) holds value.EmptyValue per spec §3.
type List struct {
	value.Header
	value.NoFinalize
	Elements []value.Value
}

func NewList(elems []value.Value) *List { return &List{Elements: elems} }

func (l *List) ObjType() value.ObjType { return value.ObjList }

func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range l.Elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(value.ToString(e))
	}
	b.WriteByte(']')
	return b.String()
}

func (l *List) Trace(mark func(value.Value)) {
	for _, e := range l.Elements {
		mark(e)
	}
}

func (l *List) Len() int { return len(l.Elements) }

// Bytes is a growable byte buffer.
type Bytes struct {
	value.Header
	value.NoFinalize
	Data []byte
}

func (b *Bytes) ObjType() value.ObjType       { return value.ObjBytes }
func (b *Bytes) String() string               { return fmt.Sprintf("bytes(%d)", len(b.Data)) }
func (b *Bytes) Trace(mark func(value.Value)) {}
func (b *Bytes) Len() int                     { return len(b.Data) }

// Dict is an insertion-ordered mapping. Iteration order (spec §8 property 2)
// is tracked by the Keys slice; the backing table provides O(1) lookup.
// Removing then re-inserting a key appends it to the end of Keys, matching
// the spec's "removal-then-reinsertion places the key at the end" contract.
type Dict struct {
	value.Header
	value.NoFinalize
	Keys  []value.Value
	table *table.Table
}

func NewDict() *Dict {
	return &Dict{table: table.New()}
}

func (d *Dict) ObjType() value.ObjType { return value.ObjDict }

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := d.Get(k)
		b.WriteString(value.ToString(k))
		b.WriteString(": ")
		b.WriteString(value.ToString(v))
	}
	b.WriteByte('}')
	return b.String()
}

func (d *Dict) Trace(mark func(value.Value)) {
	for _, k := range d.Keys {
		mark(k)
		if v, ok := d.Get(k); ok {
			mark(v)
		}
	}
}

func dictKey(v value.Value) interface{} {
	if v.T == value.Obj {
		if s, ok := v.Obj.(*String); ok {
			return s.Chars
		}
	}
	return v
}

// Get returns the value for key, or (value.NilValue, false) on a miss — per
// the resolved Open Question in spec §9, Get never raises.
func (d *Dict) Get(key value.Value) (value.Value, bool) {
	v, ok := d.table.Get(dictKey(key), value.HashValue(key))
	if !ok {
		return value.NilValue, false
	}
	return v.(value.Value), true
}

// Put inserts or updates key -> val. File objects and other unhashable
// values must be rejected by the caller (the VM's SET_INDEX/dict-literal
// handling) before calling Put; Put itself assumes a hashable key.
func (d *Dict) Put(key, val value.Value) {
	isNew := d.table.Set(dictKey(key), value.HashValue(key), val)
	if isNew {
		d.Keys = append(d.Keys, key)
	}
}

// Delete removes key. Re-inserting it afterwards appends it to the end of
// the iteration order, since Put always appends newly created keys.
func (d *Dict) Delete(key value.Value) bool {
	if !d.table.Delete(dictKey(key), value.HashValue(key)) {
		return false
	}
	for i, k := range d.Keys {
		if value.Equal(k, key) {
			d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
			break
		}
	}
	return true
}

func (d *Dict) Len() int { return d.table.Len() }

// Clone makes a shallow copy preserving iteration order. Per the resolved
// Open Question (spec §9), ctx pins the new dict as a GC root for the
// duration of construction (via the NativeContext Pin/Unpin pair) so that
// a collection triggered mid-clone by one of the Put calls below cannot
// sweep it before it is stored anywhere reachable.
func (d *Dict) Clone(ctx NativeContext) *Dict {
	nd := NewDict()
	ctx.Track(nd)
	ctx.Pin(value.ObjectValue(nd))
	defer ctx.Unpin(1)
	for _, k := range d.Keys {
		v, _ := d.Get(k)
		nd.Put(k, v)
	}
	return nd
}

// Range is a lazy, restartable, finite [Lower, Upper) integer sequence.
type Range struct {
	value.Header
	value.NoFinalize
	Lower, Upper int64
}

func (r *Range) ObjType() value.ObjType       { return value.ObjRange }
func (r *Range) String() string               { return fmt.Sprintf("%d..%d", r.Lower, r.Upper) }
func (r *Range) Trace(mark func(value.Value)) {}
func (r *Range) Len() int64 {
	if r.Upper <= r.Lower {
		return 0
	}
	return r.Upper - r.Lower
}
