// Package vm implements Blade's bytecode virtual machine: a stack-based
// interpreter that executes the bytecode.Blob the compiler produces.
//
// The VM is the final stage in the execution pipeline:
//
//	Source -> lexer -> compiler -> bytecode.Blob -> vm.VM -> result
//
// Architecture:
//
//  1. Value stack: a single, fixed-capacity slice shared by every call
//     frame. Fixed capacity matters: an open upvalue holds a raw
//     *value.Value into this slice (see pkg/object.Upvalue), which would
//     dangle if append ever reallocated the backing array.
//  2. Call-frame stack: one Frame per active closure invocation, each
//     with its own instruction pointer and a window onto the shared
//     value stack (slotBase).
//  3. Globals: a single named table, swapped out per imported module so
//     each source file gets its own top-level namespace (spec §4.F).
//
// The VM also implements three small interfaces so the layers below it
// never import it back: gc.RootProvider (so the collector can find every
// live value), compiler.Interner (so string literals and runtime-built
// strings share one intern table), and object.NativeContext (the
// capability set handed to every native/stdlib function).
package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/compiler"
	"github.com/blade-lang/blade/pkg/gc"
	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/table"
	"github.com/blade-lang/blade/pkg/value"
)

// maxStack bounds the shared value stack. It is allocated up front at its
// full capacity (never grown via append) so that `&vm.stack[i]`, taken by
// captureUpvalue, remains valid for as long as the VM lives.
const maxStack = 1 << 16

// maxFrames bounds call-frame depth; exceeding it raises StackOverflow
// rather than exhausting the host's own stack or the value stack.
const maxFrames = 1024

// VM executes one program: a script plus whatever modules it imports.
type VM struct {
	stack  []value.Value
	frames []*Frame

	// globals, interned, and the per-class method/field tables in pkg/object
	// all share the same open-addressed pkg/table.Table implementation
	// (spec §4.B) rather than each growing its own bare Go map.
	globals *table.Table

	interned *table.Table
	openUV   map[int]*object.Upvalue

	collector *gc.Collector
	registry  *module.Registry

	// excClass is the built-in class every raised runtime error (as
	// opposed to a value a Blade program raises directly) is an instance
	// of. It has no compiled @new; the VM populates its fields directly.
	excClass *object.Class

	stdout io.Writer
	stderr io.Writer
	stdin  *bufio.Reader

	scriptDir string
	libDir    string

	// debugger is non-nil once NewDebugger(vm) attaches one (the `-d` CLI
	// flag); runLoop consults it once per instruction.
	debugger *Debugger

	// lastValue holds the entry script's return value after a successful
	// Run, for the REPL's "print the last expression" behavior (spec §6).
	lastValue value.Value
}

// Options configures a VM at construction time.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Stdin     io.Reader
	ScriptDir string // directory of the entry script, for relative imports
	LibDir    string // installation standard-library directory
	Registry  *module.Registry
}

// New builds a VM ready to Run a compiled script.
func New(opts Options) *VM {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Registry == nil {
		opts.Registry = module.NewRegistry()
	}
	vm := &VM{
		stack:     make([]value.Value, 0, maxStack),
		globals:   table.New(),
		interned:  table.New(),
		openUV:    make(map[int]*object.Upvalue),
		collector: gc.New(),
		registry:  opts.Registry,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		stdin:     bufio.NewReader(opts.Stdin),
		scriptDir: opts.ScriptDir,
		libDir:    opts.LibDir,
	}
	vm.collector.AddRootProvider(vm)
	vm.collector.AddPruner(vm)
	vm.excClass = object.NewClass("Exception")
	vm.collector.Track(vm.excClass)
	vm.installGlobals()
	return vm
}

// Collector exposes the VM's collector, e.g. so the launcher's `-g` flag
// can set its threshold.
func (vm *VM) Collector() *gc.Collector { return vm.collector }

// Registry exposes the VM's module registry so pkg/stdlib providers can
// be registered before Run.
func (vm *VM) Registry() *module.Registry { return vm.registry }

// --- stack helpers -----------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// --- gc.RootProvider -----------------------------------------------------

// Roots enumerates every live value the collector must not reclaim: the
// value stack, every frame's closure, every open upvalue, globals, and
// the exception class.
func (vm *VM) Roots(add func(value.Value)) {
	for _, v := range vm.stack {
		add(v)
	}
	for _, f := range vm.frames {
		add(value.ObjectValue(f.closure))
	}
	for _, uv := range vm.openUV {
		add(value.ObjectValue(uv))
	}
	vm.globals.Each(func(_, v interface{}) {
		add(v.(value.Value))
	})
	add(value.ObjectValue(vm.excClass))
}

// PruneUnmarked satisfies gc.Pruner: any interned string that survived
// tracing unmarked has no other reachable reference, so the intern entry
// itself must go too, or it would hold the string alive forever (spec
// §4.C; see testable property 7's bounded-memory contract in SPEC_FULL.md).
func (vm *VM) PruneUnmarked() {
	var dead []string
	vm.interned.Each(func(key, val interface{}) {
		if !val.(*object.String).Marked() {
			dead = append(dead, key.(string))
		}
	})
	for _, k := range dead {
		vm.interned.Delete(k, value.HashString(k))
	}
}

func (vm *VM) track(o value.Object) { vm.collector.Track(o) }

func (vm *VM) maybeCollect() {
	if vm.collector.ShouldCollect() {
		vm.collector.Collect()
	}
}

// --- compiler.Interner / object.NativeContext ---------------------------

// InternString returns the canonical *object.String for s, satisfying
// compiler.Interner.
func (vm *VM) InternString(s string) *object.String { return vm.Intern(s) }

// Intern returns the canonical *object.String for s, satisfying
// object.NativeContext.
func (vm *VM) Intern(s string) *object.String {
	h := value.HashString(s)
	if str, ok := vm.interned.Get(s, h); ok {
		return str.(*object.String)
	}
	str := &object.String{Chars: s, Hash: h}
	vm.track(str)
	vm.interned.Set(s, h, str)
	return str
}

// Track satisfies object.NativeContext.
func (vm *VM) Track(o value.Object) { vm.track(o) }

// InternedCount reports the live size of the string intern set, exposed
// for tests asserting spec §4.C's prune-before-sweep contract keeps it
// from growing unboundedly.
func (vm *VM) InternedCount() int { return vm.interned.Len() }

// Pin and Unpin satisfy object.NativeContext, delegating to the
// collector's temporary-root stack so a native like Dict.Clone can hold a
// not-yet-reachable object alive across multiple allocations.
func (vm *VM) Pin(v value.Value) { vm.collector.Pin(v) }

func (vm *VM) Unpin(n int) { vm.collector.Unpin(n) }

// Call satisfies object.NativeContext: it invokes callee synchronously
// and returns its result, recursing the dispatch loop if callee is a
// Blade closure rather than a native function.
func (vm *VM) Call(callee value.Value, args []value.Value) (value.Value, error) {
	return vm.invokeSync(callee, args)
}

// Raise satisfies object.NativeContext.
func (vm *VM) Raise(kind, format string, a ...interface{}) error {
	return vm.raiseRuntime(kind, format, a...)
}

func (vm *VM) newList(elems []value.Value) *object.List {
	l := object.NewList(elems)
	vm.track(l)
	return l
}

// --- running a script ----------------------------------------------------

// Run executes an already-compiled top-level Blob as the program's entry
// script, returning the uncaught error (if any) as a *RuntimeError.
func (vm *VM) Run(blob *bytecode.Blob) error {
	fn := &object.Function{Name: "<script>", Blob: blob}
	vm.track(fn)
	cl := &object.Closure{Function: fn}
	vm.track(cl)
	base := len(vm.stack)
	vm.push(value.ObjectValue(cl))
	if err := vm.pushCallFrame(cl, base, 0); err != nil {
		return err
	}
	if err := vm.runLoop(0); err != nil {
		return err
	}
	vm.lastValue = value.NilValue
	if len(vm.stack) > base {
		vm.lastValue = vm.pop()
	}
	return nil
}

// LastValue returns the entry script's return value from the most recent
// successful Run — ordinarily nil, unless the caller rewrote the compiled
// Blob's implicit trailing `nil; return` into `return <last expression>`
// (the REPL's evalREPL does this).
func (vm *VM) LastValue() value.Value { return vm.lastValue }

// --- hidden globals: print, __import__ -----------------------------------

func (vm *VM) installGlobals() {
	printNative := &object.Native{Name: "print", Fn: vm.nativePrint}
	vm.track(printNative)
	vm.defineGlobal("print", value.ObjectValue(printNative))

	importNative := &object.Native{Name: "__import__", Fn: vm.nativeImport}
	vm.track(importNative)
	vm.defineGlobal("__import__", value.ObjectValue(importNative))

	// Exception must be a resolvable global so `raise Exception('oops')`
	// and `catch Exception as e` (spec §4.D/§8 scenario S4) can name it
	// from Blade source; construct special-cases vm.excClass since it has
	// no compiled @new to invoke.
	vm.defineGlobal("Exception", value.ObjectValue(vm.excClass))
}

func (vm *VM) defineGlobal(name string, v value.Value) {
	vm.globals.Set(name, value.HashString(name), v)
}

func (vm *VM) getGlobal(name string) (value.Value, bool) {
	v, ok := vm.globals.Get(name, value.HashString(name))
	if !ok {
		return value.NilValue, false
	}
	return v.(value.Value), true
}

func (vm *VM) nativePrint(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := vm.stringify(a)
		if err != nil {
			return value.NilValue, err
		}
		parts[i] = s
	}
	fmt.Fprintln(vm.stdout, strings.Join(parts, " "))
	return value.NilValue, nil
}

// stringify is value.ToString enriched with the @to_string operator
// overload (spec §4.F): an Instance whose class defines @to_string gets
// a chance to produce its own representation before falling back to the
// generic "<instance of X>".
func (vm *VM) stringify(v value.Value) (string, error) {
	if v.IsObject() {
		if inst, ok := v.Obj.(*object.Instance); ok {
			if m, ok := inst.Class.Method(object.OpSelToStr); ok {
				bound := value.ObjectValue(&object.BoundMethod{Receiver: v, Method: value.ObjectValue(m)})
				res, err := vm.invokeSync(bound, nil)
				if err != nil {
					return "", err
				}
				return value.ToString(res), nil
			}
		}
	}
	return value.ToString(v), nil
}

func (vm *VM) nativeImport(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.NilValue, vm.Raise("ArgumentError", "import expects 1 argument, got %d", len(args))
	}
	s, ok := args[0].Obj.(*object.String)
	if !ok {
		return value.NilValue, vm.Raise("TypeError", "import path must be a string")
	}
	mod, err := vm.resolveImport(s.Chars)
	if err != nil {
		return value.NilValue, err
	}
	return value.ObjectValue(mod), nil
}

// resolveImport implements spec §4.F/§6's import resolution: a native
// module registered under this name wins over a source-file search, and
// both are cached so "subsequent imports return the cached module
// object".
func (vm *VM) resolveImport(path string) (*object.Module, error) {
	if reg, ok := vm.registry.Native(path); ok {
		key := "native:" + path
		if cached, ok := vm.registry.CacheGet(key); ok {
			return cached, nil
		}
		mod := reg.Build(vm.track)
		if mod.Preloader != nil {
			if err := mod.Preloader(); err != nil {
				return nil, vm.Raise("ImportError", "%s", err.Error())
			}
		}
		vm.registry.CachePut(key, mod)
		return mod, nil
	}

	abspath, err := module.ResolveSourcePath(path, vm.scriptDir, vm.libDir)
	if err != nil {
		return nil, vm.Raise("ImportError", "%s", err.Error())
	}
	return vm.importSource(abspath)
}

// importSource compiles and runs a Blade source file as its own module:
// a fresh Globals table is swapped in for the duration of its top-level
// script, so the imported file's globals never leak into the importer's
// (spec §4.F: "an imported module is executed once").
func (vm *VM) importSource(abspath string) (*object.Module, error) {
	if cached, ok := vm.registry.CacheGet(abspath); ok {
		return cached, nil
	}
	src, err := os.ReadFile(abspath)
	if err != nil {
		return nil, vm.Raise("ImportError", "cannot read %s: %s", abspath, err.Error())
	}
	blob := compiler.New(string(src), abspath, vm).Compile()
	if blob == nil {
		return nil, vm.Raise("ImportError", "failed to compile %s", abspath)
	}

	name := strings.TrimSuffix(filepath.Base(abspath), filepath.Ext(abspath))
	mod := object.NewModule(name, abspath)
	vm.track(mod)

	fn := &object.Function{Name: "<script>", Blob: blob, Module: mod}
	vm.track(fn)
	cl := &object.Closure{Function: fn}
	vm.track(cl)

	savedGlobals := vm.globals
	savedDir := vm.scriptDir
	vm.globals = mod.Globals
	vm.scriptDir = filepath.Dir(abspath)
	_, err = vm.invokeSync(value.ObjectValue(cl), nil)
	vm.globals = savedGlobals
	vm.scriptDir = savedDir
	if err != nil {
		return nil, err
	}

	vm.registry.CachePut(abspath, mod)
	return mod, nil
}
