package module

import (
	"fmt"
	"unicode/utf8"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// DispatchError names one of spec §7's catchable runtime error kinds. pkg/vm
// wraps it into a language-level exception object carrying Kind as its
// `type` field; it is never a bare Go error surfaced to the user directly.
type DispatchError struct {
	Kind string
	Msg  string
}

func (e *DispatchError) Error() string { return e.Msg }

func propErr(format string, a ...interface{}) error {
	return &DispatchError{Kind: "PropertyError", Msg: fmt.Sprintf(format, a...)}
}

func typeErr(format string, a ...interface{}) error {
	return &DispatchError{Kind: "TypeError", Msg: fmt.Sprintf(format, a...)}
}

// Inherit flattens super's method table into sub at class-definition time
// (spec §4.F: "copies P's methods into C's method table... shallow
// flattening, so dispatch is a single table lookup"), seeds sub's field set
// with super's defaults, and retains super's own table in SuperMethods so
// SUPER_INVOKE can still reach methods sub has overridden.
func Inherit(sub, super *object.Class) {
	sub.Superclass = super
	sub.SuperMethods = super.Methods
	super.Methods.Each(func(key, m interface{}) {
		sub.SetMethod(key.(string), m.(*object.Closure))
	})
	sub.FieldNames = append(append([]string{}, super.FieldNames...), sub.FieldNames...)
	sub.FieldDefaults = append(append([]value.Value{}, super.FieldDefaults...), sub.FieldDefaults...)
}

// GetProperty implements the GET_PROPERTY lookup chain (spec §4.F):
// instance field, then instance's class method table (bound), then class
// static member, then module global, then builtin-type method — in that
// order, per receiver kind. Returns PropertyError on exhausting every case.
func GetProperty(receiver value.Value, name string) (value.Value, error) {
	if !receiver.IsObject() {
		return builtinMethod(receiver, name)
	}
	switch recv := receiver.Obj.(type) {
	case *object.Instance:
		if v, ok := recv.GetField(name); ok {
			return v, nil
		}
		if m, ok := recv.Class.Method(name); ok {
			return value.ObjectValue(&object.BoundMethod{Receiver: receiver, Method: value.ObjectValue(m)}), nil
		}
		return value.NilValue, propErr("undefined property '%s' on instance of %s", name, recv.Class.Name)
	case *object.Class:
		if v, ok := recv.StaticField(name); ok {
			return v, nil
		}
		return value.NilValue, propErr("undefined static member '%s' on class %s", name, recv.Name)
	case *object.Module:
		if v, ok := recv.Get(name); ok {
			return v, nil
		}
		return value.NilValue, propErr("undefined property '%s' on module %s", name, recv.Name)
	default:
		return builtinMethod(receiver, name)
	}
}

// ResolveInvoke resolves `recv.name(...)` for the INVOKE fast path (spec
// §4.E: "compiled as a single INVOKE rather than GET_PROPERTY+CALL,
// avoiding a bound-method allocation for the overwhelmingly common call
// case"). It returns the callee to invoke and, when self != value.NilValue
// with hasSelf true, a receiver the VM must insert ahead of the call's
// arguments exactly like a bound-method call — letting instance methods run
// without ever materializing an *object.BoundMethod.
func ResolveInvoke(receiver value.Value, name string) (callee value.Value, self value.Value, hasSelf bool, err error) {
	if inst, ok := receiver.Obj.(*object.Instance); ok {
		if v, ok := inst.GetField(name); ok {
			return v, value.NilValue, false, nil
		}
		if m, ok := inst.Class.Method(name); ok {
			return value.ObjectValue(m), receiver, true, nil
		}
		return value.NilValue, value.NilValue, false, propErr("undefined property '%s' on instance of %s", name, inst.Class.Name)
	}
	v, err := GetProperty(receiver, name)
	return v, value.NilValue, false, err
}

// SuperInvoke resolves `parent.name(...)` directly against the enclosing
// class's SuperMethods table, bypassing the flattened Methods table so an
// override on the current class is never re-entered (spec §4.F).
func SuperInvoke(class *object.Class, name string) (*object.Closure, error) {
	if m, ok := class.SuperMethod(name); ok {
		return m, nil
	}
	return nil, propErr("undefined property '%s' on superclass of %s", name, class.Name)
}

// Operator overload selector for each binary/unary op INVOKE-dispatches to
// when the left operand is an instance (spec §4.F's `@add`/`@sub`/... table).
func OperatorMethod(recv value.Value, selector string) (*object.Closure, bool) {
	inst, ok := recv.Obj.(*object.Instance)
	if !ok {
		return nil, false
	}
	m, ok := inst.Class.Method(selector)
	return m, ok
}

// IterNext/IterValue implement the iterator protocol for built-in
// containers (spec §4.F): lists/ranges/bytes use integer keys, dicts use
// their insertion-ordered key sequence, strings use byte offsets. Instance
// receivers are resolved by the caller via OperatorMethod(@iter/@itern)
// instead, since user-defined iteration is just another overload hook.
func IterNext(recv value.Value, key value.Value) (value.Value, error) {
	switch o := recv.Obj.(type) {
	case *object.List:
		return iterNextIndexed(key, len(o.Elements))
	case *object.Bytes:
		return iterNextIndexed(key, len(o.Data))
	case *object.Range:
		return iterNextIndexed(key, int(o.Len()))
	case *object.Dict:
		return iterNextKeyed(key, o.Keys)
	case *object.String:
		return iterNextRune(key, o.Chars)
	}
	return value.NilValue, typeErr("%s is not iterable", value.ToString(recv))
}

func iterNextIndexed(key value.Value, length int) (value.Value, error) {
	if key.IsNil() {
		if length == 0 {
			return value.NilValue, nil
		}
		return value.NumberValue(0), nil
	}
	next := key.N + 1
	if int(next) >= length {
		return value.NilValue, nil
	}
	return value.NumberValue(next), nil
}

// iterNextRune steps key (a byte offset) to the start of the next UTF-8
// code point in s, so string iteration never lands mid-rune (spec §4.F:
// "strings use byte offsets aligned to UTF-8 code-point boundaries").
func iterNextRune(key value.Value, s string) (value.Value, error) {
	if key.IsNil() {
		if len(s) == 0 {
			return value.NilValue, nil
		}
		return value.NumberValue(0), nil
	}
	offset := int(key.N)
	if offset < 0 || offset >= len(s) {
		return value.NilValue, nil
	}
	_, size := utf8.DecodeRuneInString(s[offset:])
	next := offset + size
	if next >= len(s) {
		return value.NilValue, nil
	}
	return value.NumberValue(float64(next)), nil
}

func iterNextKeyed(key value.Value, keys []value.Value) (value.Value, error) {
	if key.IsNil() {
		if len(keys) == 0 {
			return value.NilValue, nil
		}
		return keys[0], nil
	}
	for i, k := range keys {
		if value.Equal(k, key) && i+1 < len(keys) {
			return keys[i+1], nil
		}
	}
	return value.NilValue, nil
}

func IterValue(ctx object.NativeContext, recv value.Value, key value.Value) (value.Value, error) {
	switch o := recv.Obj.(type) {
	case *object.String:
		offset := int(key.N)
		if offset < 0 || offset >= len(o.Chars) {
			return value.NilValue, &DispatchError{Kind: "RangeError", Msg: "string index out of range"}
		}
		r, _ := utf8.DecodeRuneInString(o.Chars[offset:])
		return value.ObjectValue(ctx.Intern(string(r))), nil
	case *object.List:
		idx := int(key.N)
		if idx < 0 || idx >= len(o.Elements) {
			return value.NilValue, &DispatchError{Kind: "RangeError", Msg: "list index out of range"}
		}
		return o.Elements[idx], nil
	case *object.Range:
		return value.NumberValue(float64(o.Lower) + key.N), nil
	case *object.Dict:
		v, _ := o.Get(key)
		return v, nil
	case *object.Bytes:
		idx := int(key.N)
		if idx < 0 || idx >= len(o.Data) {
			return value.NilValue, &DispatchError{Kind: "RangeError", Msg: "bytes index out of range"}
		}
		return value.NumberValue(float64(o.Data[idx])), nil
	}
	return value.NilValue, typeErr("%s is not iterable", value.ToString(recv))
}
