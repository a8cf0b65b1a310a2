package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

func TestRegistrationBuildWrapsFieldsAndFunctions(t *testing.T) {
	var tracked []value.Object
	reg := &Registration{
		Name:   "demo",
		Fields: map[string]value.Value{"PI": value.NumberValue(3)},
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"noop": func(object.NativeContext, []value.Value) (value.Value, error) { return value.NilValue, nil },
		},
	}
	mod := reg.Build(func(o value.Object) { tracked = append(tracked, o) })

	if !mod.Native {
		t.Fatalf("expected Build to mark the module Native")
	}
	if v, ok := mod.Get("PI"); !ok || v.N != 3 {
		t.Fatalf("Get(PI) = %v, %v, want 3, true", v, ok)
	}
	fn, ok := mod.Get("noop")
	if !ok {
		t.Fatalf("expected a noop function field")
	}
	if _, ok := fn.Obj.(*object.Native); !ok {
		t.Fatalf("expected noop to be wrapped as *object.Native, got %T", fn.Obj)
	}

	// track is called for the module itself and for the wrapped Native, but
	// not for plain Fields values (value.NumberValue isn't a heap object).
	if len(tracked) != 2 {
		t.Fatalf("tracked %d objects, want 2 (native fn + module)", len(tracked))
	}
}

func TestRegistryNativeLookupAndCache(t *testing.T) {
	reg := NewRegistry()
	demo := &Registration{Name: "demo"}
	reg.RegisterNative(demo)

	got, ok := reg.Native("demo")
	if !ok || got != demo {
		t.Fatalf("Native(demo) = %v, %v, want the registered Registration", got, ok)
	}
	if _, ok := reg.Native("missing"); ok {
		t.Fatalf("expected no registration for an unregistered name")
	}

	mod := object.NewModule("demo", "native:demo")
	reg.CachePut("native:demo", mod)
	cached, ok := reg.CacheGet("native:demo")
	if !ok || cached != mod {
		t.Fatalf("CacheGet did not return the module just cached")
	}
}

func TestResolveSourcePathFindsRelativeFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "helper.b"), []byte("var x = 1;"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ResolveSourcePath("helper", dir, "")
	if err != nil {
		t.Fatalf("ResolveSourcePath: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(dir, "helper.b"))
	if got != want {
		t.Fatalf("resolved path = %q, want %q", got, want)
	}
}

func TestResolveSourcePathFindsPackageIndex(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "index.b"), []byte("var x = 1;"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ResolveSourcePath("pkg", dir, "")
	if err != nil {
		t.Fatalf("ResolveSourcePath: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(pkgDir, "index.b"))
	if got != want {
		t.Fatalf("resolved path = %q, want %q", got, want)
	}
}

func TestResolveSourcePathFallsBackToLibDir(t *testing.T) {
	importerDir := t.TempDir()
	libDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(libDir, "stdmodule.b"), []byte("var x = 1;"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ResolveSourcePath("stdmodule", importerDir, libDir)
	if err != nil {
		t.Fatalf("ResolveSourcePath: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(libDir, "stdmodule.b"))
	if got != want {
		t.Fatalf("resolved path = %q, want %q", got, want)
	}
}

func TestResolveSourcePathMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := ResolveSourcePath("does-not-exist", dir, ""); err == nil {
		t.Fatalf("expected an error for an unresolvable import path")
	}
}
