package stdlib

import (
	"encoding/base64"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// base64Module mirrors the teacher's base64Encode/base64Decode primitives,
// lifted behind the native-module ABI (spec §6).
func base64Module() *module.Registration {
	return &module.Registration{
		Name: "base64",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"encode": base64Encode,
			"decode": base64Decode,
		},
	}
}

func base64Encode(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b, err := argBytes(ctx, args, 0, "encode")
	if err != nil {
		return value.NilValue, err
	}
	return newString(ctx, base64.StdEncoding.EncodeToString(b)), nil
}

func base64Decode(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	s, err := argString(ctx, args, 0, "decode")
	if err != nil {
		return value.NilValue, err
	}
	decoded, derr := base64.StdEncoding.DecodeString(s)
	if derr != nil {
		return value.NilValue, ctx.Raise("ValueError", "invalid base64: %s", derr.Error())
	}
	return newBytes(ctx, decoded), nil
}
