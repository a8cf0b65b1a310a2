package stdlib

import (
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// argString extracts the i'th argument as a Blade string, raising a
// catchable TypeError (rather than panicking) on an arity or type
// mismatch — every native here follows this same shape, matching the
// "native functions validate like any other call site" contract (spec
// §6).
func argString(ctx object.NativeContext, args []value.Value, i int, fn string) (string, error) {
	if i >= len(args) {
		return "", ctx.Raise("ArgumentError", "%s() expects at least %d argument(s)", fn, i+1)
	}
	s, ok := args[i].Obj.(*object.String)
	if !ok {
		return "", ctx.Raise("TypeError", "%s() argument %d must be a string", fn, i+1)
	}
	return s.Chars, nil
}

func argNumber(ctx object.NativeContext, args []value.Value, i int, fn string) (float64, error) {
	if i >= len(args) {
		return 0, ctx.Raise("ArgumentError", "%s() expects at least %d argument(s)", fn, i+1)
	}
	if !args[i].IsNumber() {
		return 0, ctx.Raise("TypeError", "%s() argument %d must be a number", fn, i+1)
	}
	return args[i].N, nil
}

func argInt(ctx object.NativeContext, args []value.Value, i int, fn string) (int64, error) {
	n, err := argNumber(ctx, args, i, fn)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func optString(args []value.Value, i int, def string) string {
	if i >= len(args) {
		return def
	}
	if s, ok := args[i].Obj.(*object.String); ok {
		return s.Chars
	}
	return def
}

func optInt(args []value.Value, i int, def int64) int64 {
	if i >= len(args) || !args[i].IsNumber() {
		return def
	}
	return int64(args[i].N)
}

func argBytes(ctx object.NativeContext, args []value.Value, i int, fn string) ([]byte, error) {
	if i >= len(args) {
		return nil, ctx.Raise("ArgumentError", "%s() expects at least %d argument(s)", fn, i+1)
	}
	switch o := args[i].Obj.(type) {
	case *object.String:
		return []byte(o.Chars), nil
	case *object.Bytes:
		return o.Data, nil
	default:
		return nil, ctx.Raise("TypeError", "%s() argument %d must be a string or bytes", fn, i+1)
	}
}

func newString(ctx object.NativeContext, s string) value.Value {
	return value.ObjectValue(ctx.Intern(s))
}

func newBytes(ctx object.NativeContext, b []byte) value.Value {
	bs := &object.Bytes{Data: b}
	ctx.Track(bs)
	return value.ObjectValue(bs)
}

func newList(ctx object.NativeContext, elems []value.Value) value.Value {
	l := object.NewList(elems)
	ctx.Track(l)
	return value.ObjectValue(l)
}

func newDict(ctx object.NativeContext) *object.Dict {
	d := object.NewDict()
	ctx.Track(d)
	return d
}
