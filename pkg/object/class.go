package object

import (
	"fmt"

	"github.com/blade-lang/blade/pkg/table"
	"github.com/blade-lang/blade/pkg/value"
)

// Class describes a Blade class: its method table (flattened to include
// every inherited method not overridden, per spec §4.F so lookup never
// walks a superclass chain at call time) and the default field set new
// instances are created with. Methods/SuperMethods/StaticFields share the
// same pkg/table.Table implementation VM globals and module globals use
// (spec §4.B), rather than each being its own bare Go map.
type Class struct {
	value.Header
	value.NoFinalize
	Name       string
	Superclass *Class

	// Methods is flattened at class-definition time (OpInherit copies the
	// superclass's table before OpMethod entries for this class overwrite
	// it), so INVOKE is always a single table lookup. SuperMethods retains
	// the superclass's own table so SUPER_INVOKE can still reach shadowed
	// methods.
	Methods      *table.Table
	SuperMethods *table.Table
	StaticFields *table.Table

	// FieldNames / FieldDefaults describe the instance fields declared in
	// the class body (the `var` declarations spec §3 allows inside a
	// class), used to initialize every new Instance's field set.
	FieldNames    []string
	FieldDefaults []value.Value
}

func NewClass(name string) *Class {
	return &Class{
		Name:         name,
		Methods:      table.New(),
		SuperMethods: table.New(),
		StaticFields: table.New(),
	}
}

func (c *Class) ObjType() value.ObjType { return value.ObjClass }
func (c *Class) String() string         { return fmt.Sprintf("<class %s>", c.Name) }

func (c *Class) Trace(mark func(value.Value)) {
	if c.Superclass != nil {
		mark(value.ObjectValue(c.Superclass))
	}
	c.Methods.Each(func(_, m interface{}) {
		mark(value.ObjectValue(m.(*Closure)))
	})
	c.SuperMethods.Each(func(_, m interface{}) {
		mark(value.ObjectValue(m.(*Closure)))
	})
	c.StaticFields.Each(func(_, v interface{}) {
		mark(v.(value.Value))
	})
	for _, v := range c.FieldDefaults {
		mark(v)
	}
}

// Method looks up name in the flattened method table. ok is false for an
// unknown selector, letting the caller raise a PropertyError with the
// selector name attached.
func (c *Class) Method(name string) (*Closure, bool) {
	m, ok := c.Methods.Get(name, value.HashString(name))
	if !ok {
		return nil, false
	}
	return m.(*Closure), true
}

// SetMethod installs a compiled method under name, flattening it into the
// class's own table (used by OpMethod and by OpInherit to copy a
// superclass's table into a subclass before its own methods overwrite it).
func (c *Class) SetMethod(name string, m *Closure) {
	c.Methods.Set(name, value.HashString(name), m)
}

// SuperMethod looks up name starting from the superclass's own table,
// used by OpSuperInvoke.
func (c *Class) SuperMethod(name string) (*Closure, bool) {
	m, ok := c.SuperMethods.Get(name, value.HashString(name))
	if !ok {
		return nil, false
	}
	return m.(*Closure), true
}

// SetSuperMethod records a single superclass method. OpInherit does not use
// it: module.Inherit assigns the superclass's whole method table instead.
func (c *Class) SetSuperMethod(name string, m *Closure) {
	c.SuperMethods.Set(name, value.HashString(name), m)
}

// StaticField looks up a class-level (static) field by name.
func (c *Class) StaticField(name string) (value.Value, bool) {
	v, ok := c.StaticFields.Get(name, value.HashString(name))
	if !ok {
		return value.NilValue, false
	}
	return v.(value.Value), true
}

// SetStaticField installs or updates a class-level field.
func (c *Class) SetStaticField(name string, v value.Value) {
	c.StaticFields.Set(name, value.HashString(name), v)
}

// Operator overload selectors, per spec §4.F. A class implementing one of
// these methods opts its instances into the corresponding infix/prefix
// operator; the VM's binary/unary opcode handlers check for these before
// falling back to the built-in scalar semantics.
const (
	OpSelAdd    = "@add"
	OpSelSub    = "@sub"
	OpSelMul    = "@mul"
	OpSelDiv    = "@div"
	OpSelMod    = "@mod"
	OpSelEq     = "@eq"
	OpSelLt     = "@lt"
	OpSelGt     = "@gt"
	OpSelNeg    = "@neg"
	OpSelIndex  = "@index"
	OpSelIter   = "@iter"
	OpSelIterN  = "@itern"
	OpSelToStr  = "@to_string"
	OpSelIter2  = "@iter_value" // value at the current iteration key, if distinct from @index
)

// Instance is a live object of some Class: its class pointer plus a field
// table. Field storage is pkg/table.Table rather than a fixed-offset slot
// array (unlike the teacher's class-var-offset scheme) because Blade
// classes can add fields dynamically via `self.name = value` in any
// method, not only in field declarations.
type Instance struct {
	value.Header
	value.NoFinalize
	Class  *Class
	Fields *table.Table
}

func NewInstance(c *Class) *Instance {
	fields := table.New()
	for i, name := range c.FieldNames {
		fields.Set(name, value.HashString(name), c.FieldDefaults[i])
	}
	return &Instance{Class: c, Fields: fields}
}

func (i *Instance) ObjType() value.ObjType { return value.ObjInstance }
func (i *Instance) String() string         { return fmt.Sprintf("<instance of %s>", i.Class.Name) }

func (i *Instance) Trace(mark func(value.Value)) {
	mark(value.ObjectValue(i.Class))
	i.Fields.Each(func(_, v interface{}) {
		mark(v.(value.Value))
	})
}

func (i *Instance) GetField(name string) (value.Value, bool) {
	v, ok := i.Fields.Get(name, value.HashString(name))
	if !ok {
		return value.NilValue, false
	}
	return v.(value.Value), true
}

func (i *Instance) SetField(name string, v value.Value) {
	i.Fields.Set(name, value.HashString(name), v)
}
