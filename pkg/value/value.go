// Package value implements Blade's value representation: the tagged Value
// union described in spec §3 (nil, bool, number, empty, object) and the
// heap Object model every collection, callable, and class-related type
// builds on.
//
// A faithful C/Rust port NaN-boxes Value into a single 64-bit word. Go gives
// us no safe way to do that (no raw pointer tagging), so Value here is a
// small tagged struct instead; every invariant spec §3 describes (equality,
// truthiness, hashing) is preserved, only the bit-packing is not attempted.
package value

import (
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Type tags the four non-object Value kinds plus Object.
type Type uint8

const (
	Nil Type = iota
	Bool
	Number
	Empty
	Obj
)

// Value is Blade's polymorphic scalar. Only one of the fields is live,
// selected by Type.
type Value struct {
	T   Type
	B   bool
	N   float64
	Obj Object
}

// NilValue is the singleton nil value.
var NilValue = Value{T: Nil}

// EmptyValue is the "hole" sentinel used for uninitialized list slots and
// the dict-iteration terminator.
var EmptyValue = Value{T: Empty}

func BoolValue(b bool) Value     { return Value{T: Bool, B: b} }
func NumberValue(n float64) Value { return Value{T: Number, N: n} }
func ObjectValue(o Object) Value  { return Value{T: Obj, Obj: o} }

func (v Value) IsNil() bool    { return v.T == Nil }
func (v Value) IsBool() bool   { return v.T == Bool }
func (v Value) IsNumber() bool { return v.T == Number }
func (v Value) IsEmpty() bool  { return v.T == Empty }
func (v Value) IsObject() bool { return v.T == Obj }

func (v Value) IsObjType(ot ObjType) bool {
	return v.T == Obj && v.Obj != nil && v.Obj.ObjType() == ot
}

// Lenable is implemented by heap objects whose truthiness depends on a
// length (strings, lists, dicts, byte buffers). pkg/object's concrete
// collection types implement it so Truthy can judge them without pkg/value
// importing pkg/object — which would import pkg/value right back, a cycle.
type Lenable interface {
	Len() int
}

// Truthy implements spec §4.A's (deliberately unusual) truthiness contract:
// false, nil, NaN, empty string/list/dict/bytes are falsy; numeric zero and
// non-empty containers are truthy.
func Truthy(v Value) bool {
	switch v.T {
	case Nil:
		return false
	case Bool:
		return v.B
	case Number:
		return !math.IsNaN(v.N)
	case Empty:
		return false
	case Obj:
		if l, ok := v.Obj.(Lenable); ok {
			return l.Len() != 0
		}
		return true
	}
	return true
}

// Equal implements spec §4.A equality: scalars compare by value (NaN != NaN
// per IEEE-754), objects compare by identity — which for strings is
// equivalent to value equality because the VM interns every string, so two
// equal strings are always the same pointer behind the Object interface.
func Equal(a, b Value) bool {
	if a.T != b.T {
		// empty compares unequal to everything, including across types.
		return false
	}
	switch a.T {
	case Nil:
		return true
	case Bool:
		return a.B == b.B
	case Number:
		return a.N == b.N
	case Empty:
		return false
	case Obj:
		return a.Obj == b.Obj
	}
	return false
}

// Hashable reports whether v may be used as a dict key: lists, dicts, and
// files are rejected per spec §3.
func Hashable(v Value) bool {
	if v.T != Obj || v.Obj == nil {
		return true
	}
	switch v.Obj.ObjType() {
	case ObjList, ObjDict, ObjFile:
		return false
	default:
		return true
	}
}

// ContentHasher is implemented by heap objects that must hash by content
// rather than identity — strings, so that two distinct (non-interned)
// *object.String values holding equal bytes land in the same dict bucket.
// Like Lenable, this lets pkg/value dispatch on pkg/object's concrete types
// without naming or importing them.
type ContentHasher interface {
	ContentHash() uint64
}

// HashValue computes a stable hash for v, used by dict storage (pkg/table).
// Numbers hash their IEEE-754 bit pattern; strings use their precomputed
// content hash; bool/nil use fixed codes.
func HashValue(v Value) uint64 {
	switch v.T {
	case Nil:
		return 0x9e3779b97f4a7c15
	case Bool:
		if v.B {
			return 0x1
		}
		return 0x2
	case Number:
		return math.Float64bits(v.N)
	case Empty:
		return 0x3
	case Obj:
		if ch, ok := v.Obj.(ContentHasher); ok {
			return ch.ContentHash()
		}
		return objIdentityHash(v.Obj)
	}
	return 0
}

// HashString hashes raw string content for the tables that need a hash
// before they have a Value to wrap one in (intern lookups, module/class
// table keys) — pkg/table's consumers that key off a bare string go
// through here instead of boxing into a String first just to call
// ContentHash. Backed by xxhash rather than a hand-rolled FNV so every
// string/content hash in the VM traces to the same algorithm.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// objIdentityHash derives a stable hash from an object's identity for
// non-string heap values used as dict keys. Go never moves a heap value
// behind a live interface reference, so the pointer's bit pattern is a
// stable identity hash for as long as anything still holds the object.
func objIdentityHash(o Object) uint64 {
	rv := reflect.ValueOf(o)
	if rv.Kind() == reflect.Ptr {
		return uint64(rv.Pointer())
	}
	return 0xdeadbeef
}
