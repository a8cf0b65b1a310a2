package object

import (
	"fmt"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/value"
)

// Function is a compiled unit: arity, variadic flag, upvalue count, and its
// bytecode.Blob. A nested function's Blob lives in its enclosing Blob's
// Functions list; the VM wraps it in a Closure at OpClosure before it can
// be called.
type Function struct {
	value.Header
	value.NoFinalize
	Name         string
	Arity        int
	IsVariadic   bool
	UpvalueCount int
	Blob         *bytecode.Blob
	Module       *Module

	// HomeClass is the class whose body lexically defines this function,
	// set by the VM's METHOD opcode handler. SUPER_INVOKE resolves against
	// HomeClass.Superclass rather than the receiver's runtime class, since
	// self can be a more-derived subclass than the method that is currently
	// executing (spec §4.F).
	HomeClass *Class
}

func (f *Function) ObjType() value.ObjType { return value.ObjFunction }
func (f *Function) String() string {
	if f.Name == "" {
		return "<function>"
	}
	return fmt.Sprintf("<function %s>", f.Name)
}
func (f *Function) Trace(mark func(value.Value)) {
	if f.Module != nil {
		mark(value.ObjectValue(f.Module))
	}
}

// Upvalue is either open (Location points into the live VM stack) or
// closed (it owns Closed directly). See spec §3's invariant: an upvalue is
// open iff its Location points into the live stack region.
type Upvalue struct {
	value.Header
	value.NoFinalize
	Location *value.Value // non-nil while open
	Closed   value.Value
	// StackIndex lets the VM find/reuse this upvalue while it is open,
	// keyed by stack slot rather than pointer identity (Go slices may
	// reallocate their backing array on growth).
	StackIndex int
}

func (u *Upvalue) ObjType() value.ObjType { return value.ObjUpvalue }
func (u *Upvalue) String() string         { return "<upvalue>" }
func (u *Upvalue) IsOpen() bool           { return u.Location != nil }

func (u *Upvalue) Get() value.Value {
	if u.IsOpen() {
		return *u.Location
	}
	return u.Closed
}

func (u *Upvalue) Set(v value.Value) {
	if u.IsOpen() {
		*u.Location = v
		return
	}
	u.Closed = v
}

// Close copies the current value out of the stack and detaches from it.
func (u *Upvalue) Close() {
	if !u.IsOpen() {
		return
	}
	u.Closed = *u.Location
	u.Location = nil
}

func (u *Upvalue) Trace(mark func(value.Value)) {
	if !u.IsOpen() {
		mark(u.Closed)
	}
	// An open upvalue's value already lives on the VM stack, itself a
	// root, so tracing it again here would be redundant (spec §4.C).
}

// Closure pairs a Function with its captured Upvalues.
type Closure struct {
	value.Header
	value.NoFinalize
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjType() value.ObjType { return value.ObjClosure }
func (c *Closure) String() string         { return c.Function.String() }
func (c *Closure) Trace(mark func(value.Value)) {
	mark(value.ObjectValue(c.Function))
	for _, uv := range c.Upvalues {
		mark(value.ObjectValue(uv))
	}
}

// BoundMethod pairs a receiver with one of its class's closures, or with a
// builtin-type native method (`"hi".length`), produced by GET_PROPERTY when
// the property resolves to a method rather than a field (spec §4.F). Method
// is a value.Value rather than *Closure specifically so both cases share one
// type instead of needing parallel BoundMethod/BoundNative structs.
type BoundMethod struct {
	value.Header
	value.NoFinalize
	Receiver value.Value
	Method   value.Value
}

func (b *BoundMethod) ObjType() value.ObjType { return value.ObjBoundMethod }
func (b *BoundMethod) String() string         { return value.ToString(b.Method) }
func (b *BoundMethod) Trace(mark func(value.Value)) {
	mark(b.Receiver)
	mark(b.Method)
}
