package object

import (
	"bufio"
	"fmt"
	"os"

	"github.com/blade-lang/blade/pkg/value"
)

// File wraps an open OS file handle (spec §3: "File values are never
// hashable and are never GC-safe to duplicate"). Closing happens either
// explicitly (the `close()` method) or during sweep via Finalize, whichever
// comes first; Closed guards against a double-close. Lines is lazily
// initialized by the first line-oriented read so byte reads and line reads
// against the same handle can't desync their buffering.
type File struct {
	value.Header
	Handle *os.File
	Name   string
	Mode   string
	Closed bool
	Lines  *bufio.Reader
}

func (f *File) ObjType() value.ObjType       { return value.ObjFile }
func (f *File) String() string               { return fmt.Sprintf("<file %s>", f.Name) }
func (f *File) Trace(mark func(value.Value)) {}

func (f *File) Finalize() error {
	return f.Close()
}

func (f *File) Close() error {
	if f.Closed || f.Handle == nil {
		return nil
	}
	f.Closed = true
	return f.Handle.Close()
}

// Pointer is an opaque handle to a native resource a stdlib module hands
// back to Blade code (a DB connection, a compiled regex, ...). Blade code
// can hold and pass one around but never inspect its contents; Release is
// invoked by Finalize so the native resource is freed even if the Blade
// program never calls whatever `close`-shaped method the owning module
// exposes.
type Pointer struct {
	value.Header
	Name    string
	Target  interface{}
	Release func() error
}

func (p *Pointer) ObjType() value.ObjType       { return value.ObjPointer }
func (p *Pointer) String() string               { return fmt.Sprintf("<ptr %s>", p.Name) }
func (p *Pointer) Trace(mark func(value.Value)) {}

func (p *Pointer) Finalize() error {
	if p.Release == nil {
		return nil
	}
	return p.Release()
}

// NativeContext is the capability set a host-implemented function gets
// handed at call time, standing in for the VM without pkg/object needing to
// import pkg/vm (which already imports pkg/object — that would cycle).
// pkg/stdlib providers and pkg/module's builtin-type methods use this
// instead of a concrete *vm.VM parameter.
type NativeContext interface {
	// Intern returns the canonical *String for s, allocating and tracking a
	// new one on first sight.
	Intern(s string) *String
	// Track links a freshly allocated heap object into the collector so it
	// participates in the next mark-sweep cycle.
	Track(o value.Object)
	// Call invokes callee (a closure, bound method, or nested native) with
	// args exactly as the CALL opcode would, letting natives like
	// list.each(fn) call back into Blade code.
	Call(callee value.Value, args []value.Value) (value.Value, error)
	// Raise builds a catchable language-level exception of the given kind
	// (spec §7's error-kind table) and returns it as a Go error for the
	// native to return directly.
	Raise(kind, format string, a ...interface{}) error
	// Pin temporarily roots v for the duration of a multi-step construction
	// a native performs before the result is reachable from anywhere the
	// collector's normal root set already covers (e.g. Dict.Clone building
	// a fresh dict key by key). Unpin(n) must be called exactly once per
	// Pin call it balances, typically via defer.
	Pin(v value.Value)
	Unpin(n int)
}

// Native wraps a host Go function as a callable Blade value (spec §6's
// native-module ABI: "a module is a named table of host-implemented
// functions/fields/classes"). Every pkg/stdlib provider and builtin-type
// method (`"hi".length()`, `[1,2].append(3)`) is a *Native under the hood.
type Native struct {
	value.Header
	value.NoFinalize
	Name string
	Fn   func(ctx NativeContext, args []value.Value) (value.Value, error)
}

func (n *Native) ObjType() value.ObjType       { return value.ObjNative }
func (n *Native) String() string               { return fmt.Sprintf("<function %s>", n.Name) }
func (n *Native) Trace(mark func(value.Value)) {}
