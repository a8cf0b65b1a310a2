// Package module implements Blade's module and class dispatch layer (spec
// §4.F): the native-module registration ABI, import-path resolution and
// caching, class inheritance flattening, operator-overload dispatch, the
// iterator protocol, and the property/method lookup chain GET_PROPERTY and
// INVOKE compile down to.
//
// This package never calls back into pkg/vm — every lookup here returns a
// plain value.Value (or an error) and leaves the actual closure/native
// invocation to the caller, so pkg/vm can import pkg/module freely without
// a cycle.
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// Registration is the native-module ABI (spec §6): a named table of
// host-implemented functions/fields/classes a pkg/stdlib provider builds and
// hands to a Registry. Preloader runs once, immediately after the module's
// Globals table is populated; Unloader runs when the module object is swept
// (spec §5's resource-discipline contract).
type Registration struct {
	Name      string
	Fields    map[string]value.Value
	Functions map[string]func(ctx object.NativeContext, args []value.Value) (value.Value, error)
	Classes   map[string]*object.Class
	Preloader func() error
	Unloader  func() error
}

// Build materializes a Registration into a loaded *object.Module, wrapping
// each native function in an *object.Native value. track is called for
// every heap object allocated here (the Module itself and each Native) so
// the caller's collector can link them in.
func (r *Registration) Build(track func(value.Object)) *object.Module {
	m := object.NewModule(r.Name, "native:"+r.Name)
	m.Native = true
	for name, v := range r.Fields {
		m.Set(name, v)
	}
	for name, fn := range r.Functions {
		n := &object.Native{Name: name, Fn: fn}
		track(n)
		m.Set(name, value.ObjectValue(n))
	}
	for name, c := range r.Classes {
		track(c)
		m.Set(name, value.ObjectValue(c))
	}
	m.Preloader = r.Preloader
	m.Unloader = r.Unloader
	track(m)
	return m
}

// Registry holds every native module registered at startup (keyed by import
// name, e.g. "os", "json") plus an LRU cache of already-loaded source
// modules keyed by their resolved canonical path, so "subsequent imports
// return the cached module object" (spec §4.F) without an unbounded map.
type Registry struct {
	natives map[string]*Registration
	loaded  *lru.Cache[string, *object.Module]
}

const defaultModuleCacheSize = 128

// NewRegistry creates an empty registry with the default loaded-module
// cache capacity.
func NewRegistry() *Registry {
	cache, _ := lru.New[string, *object.Module](defaultModuleCacheSize)
	return &Registry{natives: make(map[string]*Registration), loaded: cache}
}

// RegisterNative adds a native module provider, callable by name from
// `import name`.
func (r *Registry) RegisterNative(reg *Registration) {
	r.natives[reg.Name] = reg
}

// Native looks up a registered native module by import name.
func (r *Registry) Native(name string) (*Registration, bool) {
	reg, ok := r.natives[name]
	return reg, ok
}

// CacheGet returns a previously loaded source module for path, if any.
func (r *Registry) CacheGet(path string) (*object.Module, bool) {
	return r.loaded.Get(path)
}

// CachePut records a loaded source module under its canonical path.
func (r *Registry) CachePut(path string, m *object.Module) {
	r.loaded.Add(path, m)
}

// ResolveSourcePath implements the BLADE_PATH resolution order (spec §6):
//  1. relative to the importing file's own directory
//  2. relative to the current working directory
//  3. each directory listed in the BLADE_PATH environment variable
//     (platform path-list separator, e.g. ":" on POSIX, ";" on Windows)
//  4. the installation's standard library directory (libDir)
//
// Each candidate is tried both as "name.b" and as a "name/index.b" package
// directory. The first candidate that exists on disk wins; an ImportError
// (reported by the caller) results if none do.
func ResolveSourcePath(importPath, importingDir, libDir string) (string, error) {
	rel := filepath.FromSlash(importPath)
	if !strings.HasSuffix(rel, ".b") {
		rel += ".b"
	}
	pkgIndex := filepath.Join(filepath.FromSlash(importPath), "index.b")

	roots := []string{importingDir, "."}
	if envPath := os.Getenv("BLADE_PATH"); envPath != "" {
		roots = append(roots, filepath.SplitList(envPath)...)
	}
	if libDir != "" {
		roots = append(roots, libDir)
	}

	for _, root := range roots {
		for _, candidate := range [...]string{filepath.Join(root, rel), filepath.Join(root, pkgIndex)} {
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				abs, err := filepath.Abs(candidate)
				if err != nil {
					return candidate, nil
				}
				return abs, nil
			}
		}
	}
	return "", fmt.Errorf("module not found: %s", importPath)
}
