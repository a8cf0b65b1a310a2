package module

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// fakeCtx is a minimal object.NativeContext for calling a builtin method
// directly, in the same spirit as pkg/stdlib's own fakeCtx.
type fakeCtx struct {
	pins int
}

func (*fakeCtx) Intern(s string) *object.String { return &object.String{Chars: s} }
func (*fakeCtx) Track(o value.Object)            {}
func (*fakeCtx) Call(callee value.Value, args []value.Value) (value.Value, error) {
	return value.NilValue, nil
}
func (*fakeCtx) Raise(kind, format string, a ...interface{}) error {
	return fmt.Errorf(kind+": "+format, a...)
}
func (c *fakeCtx) Pin(v value.Value) { c.pins++ }
func (c *fakeCtx) Unpin(n int)       { c.pins -= n }

func TestDictCloneMethodPinsAndUnpins(t *testing.T) {
	ctx := &fakeCtx{}
	d := object.NewDict()
	d.Put(value.ObjectValue(&object.String{Chars: "a"}), value.NumberValue(1))

	result, err := dictMethods["clone"](ctx, value.ObjectValue(d), nil)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if ctx.pins != 0 {
		t.Fatalf("expected every Pin to be balanced by Unpin, net pins = %d", ctx.pins)
	}
	cloned, ok := result.Obj.(*object.Dict)
	if !ok {
		t.Fatalf("expected *object.Dict, got %#v", result)
	}
	if cloned == d {
		t.Fatalf("clone must allocate a new dict, not alias the receiver")
	}
	v, ok := cloned.Get(value.ObjectValue(&object.String{Chars: "a"}))
	if !ok || v.N != 1 {
		t.Fatalf("cloned dict missing key, got %#v, %v", v, ok)
	}
}

func TestFileMethodsReadWriteRoundTrip(t *testing.T) {
	ctx := &fakeCtx{}
	path := filepath.Join(t.TempDir(), "module-file-test.txt")

	wf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("open for write: %v", err)
	}
	file := &object.File{Handle: wf, Name: path, Mode: "w+"}
	recv := value.ObjectValue(file)

	if _, err := fileMethods["write"](ctx, recv, []value.Value{value.ObjectValue(&object.String{Chars: "hello"})}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wf.Seek(0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	read, err := fileMethods["read"](ctx, recv, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s, ok := read.Obj.(*object.String)
	if !ok || s.Chars != "hello" {
		t.Fatalf("read back %#v, want \"hello\"", read)
	}

	if _, err := fileMethods["close"](ctx, recv, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !file.Closed {
		t.Fatalf("expected file to be marked closed")
	}
	if _, err := fileMethods["read"](ctx, recv, nil); err == nil {
		t.Fatalf("expected an error reading a closed file")
	}
}
