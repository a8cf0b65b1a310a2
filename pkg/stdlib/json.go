package stdlib

import (
	"encoding/json"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// jsonModule covers the teacher's jsonParse/jsonGenerate primitives,
// translated through Blade's actual List/Dict types rather than the
// teacher's placeholder Go map (spec §3's collections were not built yet
// when primitives.go was written; Blade's are).
func jsonModule() *module.Registration {
	return &module.Registration{
		Name: "json",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"parse":    jsonParse,
			"generate": jsonGenerate,
		},
	}
}

func jsonParse(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	s, err := argString(ctx, args, 0, "parse")
	if err != nil {
		return value.NilValue, err
	}
	var decoded interface{}
	if jerr := json.Unmarshal([]byte(s), &decoded); jerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "invalid json: %s", jerr.Error())
	}
	return fromJSON(ctx, decoded), nil
}

func jsonGenerate(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.NilValue, ctx.Raise("ArgumentError", "generate() expects 1 argument")
	}
	out, err := toJSON(args[0])
	if err != nil {
		return value.NilValue, ctx.Raise("TypeError", "%s", err.Error())
	}
	encoded, jerr := json.Marshal(out)
	if jerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", jerr.Error())
	}
	return newString(ctx, string(encoded)), nil
}

func fromJSON(ctx object.NativeContext, v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.NilValue
	case bool:
		return value.BoolValue(t)
	case float64:
		return value.NumberValue(t)
	case string:
		return newString(ctx, t)
	case []interface{}:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			elems[i] = fromJSON(ctx, e)
		}
		return newList(ctx, elems)
	case map[string]interface{}:
		d := newDict(ctx)
		for k, e := range t {
			d.Put(newString(ctx, k), fromJSON(ctx, e))
		}
		return value.ObjectValue(d)
	default:
		return value.NilValue
	}
}

func toJSON(v value.Value) (interface{}, error) {
	switch v.T {
	case value.Nil, value.Empty:
		return nil, nil
	case value.Bool:
		return v.B, nil
	case value.Number:
		return v.N, nil
	}
	switch o := v.Obj.(type) {
	case *object.String:
		return o.Chars, nil
	case *object.List:
		out := make([]interface{}, len(o.Elements))
		for i, e := range o.Elements {
			conv, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case *object.Dict:
		out := make(map[string]interface{}, len(o.Keys))
		for _, k := range o.Keys {
			ev, _ := o.Get(k)
			conv, err := toJSON(ev)
			if err != nil {
				return nil, err
			}
			out[value.ToString(k)] = conv
		}
		return out, nil
	default:
		return nil, errUnencodable(v)
	}
}

type unencodableError struct{ repr string }

func (e *unencodableError) Error() string { return "cannot encode " + e.repr + " as json" }

func errUnencodable(v value.Value) error {
	return &unencodableError{repr: value.ToString(v)}
}
