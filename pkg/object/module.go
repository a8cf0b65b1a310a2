package object

import (
	"fmt"

	"github.com/blade-lang/blade/pkg/table"
	"github.com/blade-lang/blade/pkg/value"
)

// Module is a loaded compilation unit: either a Blade source file compiled
// to its own top-level Function, or a native module registered through
// pkg/module's Registration ABI (spec §6). Globals holds whichever of the
// two populated them — the compiled top-level globals for a source
// module, or the Registration's Fields/Functions/Classes for a native one.
// Backed by pkg/table.Table, the same open-addressed table VM globals and
// class method tables use (spec §4.B).
type Module struct {
	value.Header
	value.NoFinalize
	Name    string
	Path    string
	Globals *table.Table
	Native  bool

	// Preloader is invoked by the VM when a native module is first
	// imported; Unloader by Finalize, when the collector sweeps the module
	// (spec §6's Registration contract). They are
	// stored here as opaque closures rather than function pointers so the
	// module package can inject them without this package depending on it.
	Preloader func() error
	Unloader  func() error
}

func NewModule(name, path string) *Module {
	return &Module{Name: name, Path: path, Globals: table.New()}
}

func (m *Module) ObjType() value.ObjType { return value.ObjModule }
func (m *Module) String() string         { return fmt.Sprintf("<module %s>", m.Name) }

func (m *Module) Trace(mark func(value.Value)) {
	m.Globals.Each(func(_, v interface{}) {
		mark(v.(value.Value))
	})
}

func (m *Module) Finalize() error {
	if m.Unloader != nil {
		return m.Unloader()
	}
	return nil
}

func (m *Module) Get(name string) (value.Value, bool) {
	v, ok := m.Globals.Get(name, value.HashString(name))
	if !ok {
		return value.NilValue, false
	}
	return v.(value.Value), true
}

func (m *Module) Set(name string, v value.Value) {
	m.Globals.Set(name, value.HashString(name), v)
}
