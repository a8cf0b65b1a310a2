package module

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// builtinMethodTable maps a heap ObjType to its native method set (spec
// §4.F: "dispatch to a table of builtin methods registered per type").
// Scalars (numbers, booleans, nil) have no entry. A map literal, so
// GetProperty's fallback is a plain two-level map lookup.
var builtinMethodTable = map[value.ObjType]map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	value.ObjString: stringMethods,
	value.ObjList:   listMethods,
	value.ObjDict:   dictMethods,
	value.ObjBytes:  bytesMethods,
	value.ObjRange:  rangeMethods,
	value.ObjFile:   fileMethods,
}

// builtinMethod resolves `recv.name` for a receiver that is not an
// instance/class/module — a built-in container — by binding a
// *object.Native out of the per-type table above. A scalar receiver gets a
// PropertyError.
func builtinMethod(recv value.Value, name string) (value.Value, error) {
	if !recv.IsObject() {
		return value.NilValue, propErr("undefined property '%s' on %s", name, value.ToString(recv))
	}
	table, ok := builtinMethodTable[recv.Obj.ObjType()]
	if !ok {
		return value.NilValue, propErr("%s has no methods", recv.Obj.ObjType())
	}
	fn, ok := table[name]
	if !ok {
		return value.NilValue, propErr("undefined method '%s' on %s", name, recv.Obj.ObjType())
	}
	native := &object.Native{Name: name, Fn: func(ctx object.NativeContext, args []value.Value) (value.Value, error) {
		return fn(ctx, recv, args)
	}}
	return value.ObjectValue(&object.BoundMethod{Receiver: recv, Method: value.ObjectValue(native)}), nil
}

func arityErr(name string, want int, got int) error {
	return &DispatchError{Kind: "ArgumentError", Msg: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got)}
}

var stringMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"length": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		s := recv.Obj.(*object.String)
		return value.NumberValue(float64(len([]rune(s.Chars)))), nil
	},
	"upper": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		s := recv.Obj.(*object.String)
		return value.ObjectValue(ctx.Intern(strings.ToUpper(s.Chars))), nil
	},
	"lower": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		s := recv.Obj.(*object.String)
		return value.ObjectValue(ctx.Intern(strings.ToLower(s.Chars))), nil
	},
	"split": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.NilValue, arityErr("split", 1, len(args))
		}
		sep, ok := args[0].Obj.(*object.String)
		if !ok {
			return value.NilValue, typeErr("split separator must be a string")
		}
		s := recv.Obj.(*object.String)
		parts := strings.Split(s.Chars, sep.Chars)
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.ObjectValue(ctx.Intern(p))
		}
		return value.ObjectValue(object.NewList(elems)), nil
	},
	"trim": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		s := recv.Obj.(*object.String)
		return value.ObjectValue(ctx.Intern(strings.TrimSpace(s.Chars))), nil
	},
	"contains": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.NilValue, arityErr("contains", 1, len(args))
		}
		needle, ok := args[0].Obj.(*object.String)
		if !ok {
			return value.NilValue, typeErr("contains argument must be a string")
		}
		s := recv.Obj.(*object.String)
		return value.BoolValue(strings.Contains(s.Chars, needle.Chars)), nil
	},
}

var listMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"length": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		l := recv.Obj.(*object.List)
		return value.NumberValue(float64(len(l.Elements))), nil
	},
	"append": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		l := recv.Obj.(*object.List)
		l.Elements = append(l.Elements, args...)
		return recv, nil
	},
	"pop": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		l := recv.Obj.(*object.List)
		if len(l.Elements) == 0 {
			return value.NilValue, &DispatchError{Kind: "RangeError", Msg: "pop from empty list"}
		}
		last := l.Elements[len(l.Elements)-1]
		l.Elements = l.Elements[:len(l.Elements)-1]
		return last, nil
	},
	"contains": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.NilValue, arityErr("contains", 1, len(args))
		}
		l := recv.Obj.(*object.List)
		for _, e := range l.Elements {
			if value.Equal(e, args[0]) {
				return value.BoolValue(true), nil
			}
		}
		return value.BoolValue(false), nil
	},
	"each": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.NilValue, arityErr("each", 1, len(args))
		}
		l := recv.Obj.(*object.List)
		for i, e := range l.Elements {
			if _, err := ctx.Call(args[0], []value.Value{e, value.NumberValue(float64(i))}); err != nil {
				return value.NilValue, err
			}
		}
		return recv, nil
	},
}

var dictMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"length": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		d := recv.Obj.(*object.Dict)
		return value.NumberValue(float64(d.Len())), nil
	},
	"keys": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		d := recv.Obj.(*object.Dict)
		return value.ObjectValue(object.NewList(append([]value.Value{}, d.Keys...))), nil
	},
	"remove": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.NilValue, arityErr("remove", 1, len(args))
		}
		d := recv.Obj.(*object.Dict)
		return value.BoolValue(d.Delete(args[0])), nil
	},
	"clone": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		d := recv.Obj.(*object.Dict)
		cloned := d.Clone(ctx)
		return value.ObjectValue(cloned), nil
	},
}

var bytesMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"length": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		b := recv.Obj.(*object.Bytes)
		return value.NumberValue(float64(len(b.Data))), nil
	},
}

var rangeMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"length": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		r := recv.Obj.(*object.Range)
		return value.NumberValue(float64(r.Len())), nil
	},
}

// fileMethods implements the `f.read()`/`f.write(s)`/`f.readln()`/`f.close()`
// surface against value.ObjFile (spec §3's File heap type, opened by
// pkg/stdlib's io.open()), registered here rather than in pkg/stdlib so
// GET_PROPERTY/INVOKE reach it through the same table as every other
// builtin-type method without pkg/module importing pkg/stdlib back.
var fileMethods = map[string]func(object.NativeContext, value.Value, []value.Value) (value.Value, error){
	"read": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		f := recv.Obj.(*object.File)
		if f.Closed {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("read from a closed file %s", f.Name)}
		}
		data, err := readAllRemaining(f)
		if err != nil {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("failed to read %s: %s", f.Name, err.Error())}
		}
		return value.ObjectValue(ctx.Intern(string(data))), nil
	},
	"readln": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		f := recv.Obj.(*object.File)
		if f.Closed {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("read from a closed file %s", f.Name)}
		}
		if f.Lines == nil {
			f.Lines = bufio.NewReader(f.Handle)
		}
		line, err := f.Lines.ReadString('\n')
		if err != nil && line == "" {
			return value.NilValue, nil
		}
		return value.ObjectValue(ctx.Intern(trimNewline(line))), nil
	},
	"write": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		f := recv.Obj.(*object.File)
		if f.Closed {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("write to a closed file %s", f.Name)}
		}
		if len(args) != 1 {
			return value.NilValue, arityErr("write", 1, len(args))
		}
		var data []byte
		switch o := args[0].Obj.(type) {
		case *object.String:
			data = []byte(o.Chars)
		case *object.Bytes:
			data = o.Data
		default:
			return value.NilValue, typeErr("write argument must be a string or bytes")
		}
		n, werr := f.Handle.Write(data)
		if werr != nil {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("failed to write %s: %s", f.Name, werr.Error())}
		}
		return value.NumberValue(float64(n)), nil
	},
	"close": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		f := recv.Obj.(*object.File)
		if err := f.Close(); err != nil {
			return value.NilValue, &DispatchError{Kind: "ValueError", Msg: fmt.Sprintf("failed to close %s: %s", f.Name, err.Error())}
		}
		return value.NilValue, nil
	},
	"name": func(ctx object.NativeContext, recv value.Value, args []value.Value) (value.Value, error) {
		f := recv.Obj.(*object.File)
		return value.ObjectValue(ctx.Intern(f.Name)), nil
	},
}

func readAllRemaining(f *object.File) ([]byte, error) {
	info, err := f.Handle.Stat()
	if err != nil {
		return nil, err
	}
	pos, err := f.Handle.Seek(0, 1)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size()-pos)
	n, err := f.Handle.Read(buf)
	return buf[:n], err
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
