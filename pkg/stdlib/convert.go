package stdlib

import (
	"strconv"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// convertModule provides explicit scalar conversions; Blade's own operator
// semantics (spec §4.A) are deliberately loose about implicit coercion, so
// a script that wants "123" -> 123 reaches for this instead.
func convertModule() *module.Registration {
	return &module.Registration{
		Name: "convert",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"to_number": convertToNumber,
			"to_string": convertToString,
			"to_bool":   convertToBool,
		},
	}
}

func convertToNumber(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.NilValue, ctx.Raise("ArgumentError", "to_number() expects 1 argument")
	}
	v := args[0]
	if v.IsNumber() {
		return v, nil
	}
	s, ok := v.Obj.(*object.String)
	if !ok {
		return value.NilValue, ctx.Raise("TypeError", "to_number() argument must be a string or number")
	}
	n, err := strconv.ParseFloat(s.Chars, 64)
	if err != nil {
		return value.NilValue, ctx.Raise("ValueError", "cannot convert %q to a number", s.Chars)
	}
	return value.NumberValue(n), nil
}

func convertToString(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.NilValue, ctx.Raise("ArgumentError", "to_string() expects 1 argument")
	}
	return newString(ctx, value.ToString(args[0])), nil
}

func convertToBool(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.NilValue, ctx.Raise("ArgumentError", "to_bool() expects 1 argument")
	}
	return value.BoolValue(value.Truthy(args[0])), nil
}
