package stdlib

import (
	"crypto/rand"
	"io"
	"math"
	"math/big"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// mathModule covers common numeric helpers plus the teacher's
// randomInt/randomFloat/randomBytes primitives, all backed by
// crypto/rand rather than math/rand (the teacher already made this
// choice; Blade keeps it).
func mathModule() *module.Registration {
	return &module.Registration{
		Name: "math",
		Fields: map[string]value.Value{
			"PI": value.NumberValue(math.Pi),
			"E":  value.NumberValue(math.E),
		},
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"sqrt":         unary(math.Sqrt),
			"abs":          unary(math.Abs),
			"floor":        unary(math.Floor),
			"ceil":         unary(math.Ceil),
			"round":        unary(math.Round),
			"pow":          mathPow,
			"log":          unary(math.Log),
			"log2":         unary(math.Log2),
			"log10":        unary(math.Log10),
			"sin":          unary(math.Sin),
			"cos":          unary(math.Cos),
			"tan":          unary(math.Tan),
			"random_int":   randomInt,
			"random_float": randomFloat,
			"random_bytes": randomBytes,
		},
	}
}

func unary(fn func(float64) float64) func(object.NativeContext, []value.Value) (value.Value, error) {
	return func(ctx object.NativeContext, args []value.Value) (value.Value, error) {
		n, err := argNumber(ctx, args, 0, "math")
		if err != nil {
			return value.NilValue, err
		}
		return value.NumberValue(fn(n)), nil
	}
}

func mathPow(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	base, err := argNumber(ctx, args, 0, "pow")
	if err != nil {
		return value.NilValue, err
	}
	exp, err := argNumber(ctx, args, 1, "pow")
	if err != nil {
		return value.NilValue, err
	}
	return value.NumberValue(math.Pow(base, exp)), nil
}

func randomInt(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	min, err := argInt(ctx, args, 0, "random_int")
	if err != nil {
		return value.NilValue, err
	}
	max, err := argInt(ctx, args, 1, "random_int")
	if err != nil {
		return value.NilValue, err
	}
	if min > max {
		return value.NilValue, ctx.Raise("ArgumentError", "min must be <= max")
	}
	n, rerr := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to generate random number: %s", rerr.Error())
	}
	return value.NumberValue(float64(n.Int64() + min)), nil
}

func randomFloat(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to generate random float: %s", err.Error())
	}
	n := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	return value.NumberValue(float64(n>>11) / float64(uint64(1)<<53)), nil
}

func randomBytes(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	n, err := argInt(ctx, args, 0, "random_bytes")
	if err != nil {
		return value.NilValue, err
	}
	b := make([]byte, n)
	if _, rerr := io.ReadFull(rand.Reader, b); rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to generate random bytes: %s", rerr.Error())
	}
	return newBytes(ctx, b), nil
}
