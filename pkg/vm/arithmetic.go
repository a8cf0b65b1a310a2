package vm

import (
	"math"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// operatorSelectors maps each overloadable binary opcode to the instance
// method spec §4.F dispatches to when the left operand is an Instance.
var operatorSelectors = map[bytecode.Opcode]string{
	bytecode.OpAdd: object.OpSelAdd,
	bytecode.OpSub: object.OpSelSub,
	bytecode.OpMul: object.OpSelMul,
	bytecode.OpDiv: object.OpSelDiv,
	bytecode.OpMod: object.OpSelMod,
	bytecode.OpEq:  object.OpSelEq,
	bytecode.OpLt:  object.OpSelLt,
	bytecode.OpGt:  object.OpSelGt,
}

// binaryOp pops the right then left operand, applies op, and pushes the
// result. An Instance left operand with a matching overload (spec §4.F's
// @add/@sub/... table) is tried before falling back to built-in scalar/
// string/list semantics.
func (vm *VM) binaryOp(op bytecode.Opcode) error {
	b := vm.pop()
	a := vm.pop()

	if sel, ok := operatorSelectors[op]; ok {
		if m, ok := module.OperatorMethod(a, sel); ok {
			bound := value.ObjectValue(&object.BoundMethod{Receiver: a, Method: value.ObjectValue(m)})
			res, err := vm.invokeSync(bound, []value.Value{b})
			if err != nil {
				return err
			}
			vm.push(res)
			return nil
		}
	}

	switch op {
	case bytecode.OpEq:
		vm.push(value.BoolValue(vm.valuesEqual(a, b)))
		return nil
	case bytecode.OpAdd:
		return vm.add(a, b)
	case bytecode.OpGt, bytecode.OpLt, bytecode.OpGe, bytecode.OpLe:
		return vm.compare(op, a, b)
	}

	an, aok := numberOf(a)
	bn, bok := numberOf(b)
	if !aok || !bok {
		return vm.raiseRuntime("TypeError", "unsupported operand types for %s: %s and %s", op, value.ToString(a), value.ToString(b))
	}
	switch op {
	case bytecode.OpSub:
		vm.push(value.NumberValue(an - bn))
	case bytecode.OpMul:
		vm.push(value.NumberValue(an * bn))
	case bytecode.OpDiv:
		vm.push(value.NumberValue(an / bn))
	case bytecode.OpFDiv:
		vm.push(value.NumberValue(math.Floor(an / bn)))
	case bytecode.OpMod:
		vm.push(value.NumberValue(fmod(an, bn)))
	case bytecode.OpPow:
		vm.push(value.NumberValue(math.Pow(an, bn)))
	case bytecode.OpBitAnd:
		vm.push(value.NumberValue(float64(toI64(an) & toI64(bn))))
	case bytecode.OpBitOr:
		vm.push(value.NumberValue(float64(toI64(an) | toI64(bn))))
	case bytecode.OpBitXor:
		vm.push(value.NumberValue(float64(toI64(an) ^ toI64(bn))))
	case bytecode.OpShl:
		vm.push(value.NumberValue(float64(toI64(an) << (uint64(toI64(bn)) % 64))))
	case bytecode.OpShr:
		vm.push(value.NumberValue(float64(toI64(an) >> (uint64(toI64(bn)) % 64))))
	case bytecode.OpUShr:
		vm.push(value.NumberValue(float64(uint64(toI64(an)) >> (uint64(toI64(bn)) % 64))))
	default:
		return vm.raiseRuntime("ValueError", "unhandled binary operator %s", op)
	}
	return nil
}

// fmod implements spec §4.D's Python-style modulo: the result takes the
// sign of the divisor, mod = a - floor(a/b)*b.
func fmod(a, b float64) float64 {
	return a - math.Floor(a/b)*b
}

// toI64 truncates a float64 operand to i64 for bitwise ops (spec §4.D:
// "coerce operands to 64-bit signed integers via truncating to i64").
func toI64(f float64) int64 { return int64(f) }

func numberOf(v value.Value) (float64, bool) {
	if v.IsNumber() {
		return v.N, true
	}
	return 0, false
}

// add implements ADD's three receiver shapes: numeric addition, string
// concatenation (stringifying the non-string operand per spec §4.A), and
// list concatenation producing a new list.
func (vm *VM) add(a, b value.Value) error {
	if a.IsNumber() && b.IsNumber() {
		vm.push(value.NumberValue(a.N + b.N))
		return nil
	}
	if s, ok := a.Obj.(*object.String); a.IsObject() && ok {
		rs, err := vm.stringify(b)
		if err != nil {
			return err
		}
		vm.push(value.ObjectValue(vm.Intern(s.Chars + rs)))
		return nil
	}
	if l, ok := a.Obj.(*object.List); a.IsObject() && ok {
		rl, ok := b.Obj.(*object.List)
		if !ok {
			return vm.raiseRuntime("TypeError", "cannot concatenate list with %s", value.ToString(b))
		}
		combined := append(append([]value.Value(nil), l.Elements...), rl.Elements...)
		vm.push(value.ObjectValue(vm.newList(combined)))
		return nil
	}
	return vm.raiseRuntime("TypeError", "unsupported operand types for +: %s and %s", value.ToString(a), value.ToString(b))
}

// compare implements GT/LT/GE/LE for numbers and strings (lexicographic,
// per spec §4.A); GE/LT and LE/GT are each other's negation of EQ-adjacent
// cases only for numbers/strings, so both are computed directly rather than
// synthesized from GT/LT+NOT to keep NaN comparisons honest (NaN compares
// false against everything, including itself, under every operator).
func (vm *VM) compare(op bytecode.Opcode, a, b value.Value) error {
	if a.IsNumber() && b.IsNumber() {
		var res bool
		switch op {
		case bytecode.OpGt:
			res = a.N > b.N
		case bytecode.OpLt:
			res = a.N < b.N
		case bytecode.OpGe:
			res = a.N >= b.N
		case bytecode.OpLe:
			res = a.N <= b.N
		}
		vm.push(value.BoolValue(res))
		return nil
	}
	as, aok := a.Obj.(*object.String)
	bs, bok := b.Obj.(*object.String)
	if a.IsObject() && b.IsObject() && aok && bok {
		var res bool
		switch op {
		case bytecode.OpGt:
			res = as.Chars > bs.Chars
		case bytecode.OpLt:
			res = as.Chars < bs.Chars
		case bytecode.OpGe:
			res = as.Chars >= bs.Chars
		case bytecode.OpLe:
			res = as.Chars <= bs.Chars
		}
		vm.push(value.BoolValue(res))
		return nil
	}
	return vm.raiseRuntime("TypeError", "unsupported operand types for %s: %s and %s", op, value.ToString(a), value.ToString(b))
}

// valuesEqual enriches value.Equal with the @eq overload for instances.
func (vm *VM) valuesEqual(a, b value.Value) bool {
	if m, ok := module.OperatorMethod(a, object.OpSelEq); ok {
		bound := value.ObjectValue(&object.BoundMethod{Receiver: a, Method: value.ObjectValue(m)})
		res, err := vm.invokeSync(bound, []value.Value{b})
		if err != nil {
			return false
		}
		return value.Truthy(res)
	}
	return value.Equal(a, b)
}

// unaryNeg implements NEG: numeric negation, or the @neg overload on an
// Instance operand.
func (vm *VM) unaryNeg() error {
	v := vm.pop()
	if m, ok := module.OperatorMethod(v, object.OpSelNeg); ok {
		bound := value.ObjectValue(&object.BoundMethod{Receiver: v, Method: value.ObjectValue(m)})
		res, err := vm.invokeSync(bound, nil)
		if err != nil {
			return err
		}
		vm.push(res)
		return nil
	}
	n, ok := numberOf(v)
	if !ok {
		return vm.raiseRuntime("TypeError", "- requires a number, got %s", value.ToString(v))
	}
	vm.push(value.NumberValue(-n))
	return nil
}

// --- iteration protocol (spec §4.F) -----------------------------------

// iterValue implements ITER: given [iterable, key] on the stack (key
// already popped by the caller), returns the value at key — an Instance
// with @index delegates there, everything else goes through
// module.IterValue.
// iterValue returns (value, nil) on success. On a dispatch-level
// error it returns (_, err) for the caller to translate via
// raiseDispatch (keeping the "continue vs. return" decision in the main
// loop, consistent with every other opcode that can raise).
func (vm *VM) iterValue(iterable, key value.Value) (value.Value, error) {
	if m, ok := module.OperatorMethod(iterable, object.OpSelIndex); ok {
		bound := value.ObjectValue(&object.BoundMethod{Receiver: iterable, Method: value.ObjectValue(m)})
		return vm.invokeSync(bound, []value.Value{key})
	}
	return module.IterValue(vm, iterable, key)
}

// iterNext implements ITERN: given [iterable, key], returns the next key
// (value.NilValue when exhausted) — an Instance with @itern delegates there,
// everything else goes through module.IterNext. Dispatch-level errors are
// returned raw for the caller to translate, as in iterValue.
func (vm *VM) iterNext(iterable, key value.Value) (value.Value, error) {
	if m, ok := module.OperatorMethod(iterable, object.OpSelIterN); ok {
		bound := value.ObjectValue(&object.BoundMethod{Receiver: iterable, Method: value.ObjectValue(m)})
		return vm.invokeSync(bound, []value.Value{key})
	}
	v, err := module.IterNext(iterable, key)
	if err != nil {
		return value.NilValue, err
	}
	return v, nil
}
