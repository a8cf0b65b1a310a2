package vm

import (
	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// runLoop is the VM's fetch-dispatch cycle. It runs until the frame stack
// drops back to stopDepth — 0 for the program's entry script, or the
// frame depth recorded by invokeSync for a synchronous nested call.
func (vm *VM) runLoop(stopDepth int) error {
	for {
		if len(vm.frames) <= stopDepth {
			return nil
		}
		if vm.debugger != nil && vm.debugger.ShouldPause() {
			if !vm.debugger.InteractivePrompt() {
				return newRuntimeError("Aborted", "execution aborted from debugger", vm.captureTrace())
			}
		}
		frame := vm.currentFrame()
		code := frame.closure.Function.Blob.Code
		opIP := frame.ip
		instr := code[opIP]
		frame.ip++

		switch instr.Op {

		// --- stack ---
		case bytecode.OpNil:
			vm.push(value.NilValue)
		case bytecode.OpTrue:
			vm.push(value.BoolValue(true))
		case bytecode.OpFalse:
			vm.push(value.BoolValue(false))
		case bytecode.OpEmpty:
			vm.push(value.EmptyValue)
		case bytecode.OpConst:
			vm.push(frame.closure.Function.Blob.Constants[instr.Operand])
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpPopN:
			vm.stack = vm.stack[:len(vm.stack)-instr.Operand]
		case bytecode.OpDup:
			vm.push(vm.peek(0))

		// --- locals/upvalues/globals ---
		case bytecode.OpGetLocal:
			vm.push(vm.stack[frame.slotBase+instr.Operand])
		case bytecode.OpSetLocal:
			vm.stack[frame.slotBase+instr.Operand] = vm.peek(0)
		case bytecode.OpGetUpvalue:
			vm.push(frame.closure.Upvalues[instr.Operand].Get())
		case bytecode.OpSetUpvalue:
			frame.closure.Upvalues[instr.Operand].Set(vm.peek(0))
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalue(len(vm.stack) - 1)
			vm.pop()
		case bytecode.OpGetGlobal:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			v, ok := vm.getGlobal(name)
			if !ok {
				if err := vm.raiseRuntime("NameError", "undefined global '%s'", name); err != nil {
					return err
				}
				continue
			}
			vm.push(v)
		case bytecode.OpSetGlobal:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			if _, ok := vm.getGlobal(name); !ok {
				if err := vm.raiseRuntime("NameError", "undefined global '%s'", name); err != nil {
					return err
				}
				continue
			}
			vm.defineGlobal(name, vm.peek(0))
		case bytecode.OpDefineGlobal:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			vm.defineGlobal(name, vm.pop())

		// --- arithmetic/logic ---
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpMod, bytecode.OpFDiv, bytecode.OpPow,
			bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor,
			bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr,
			bytecode.OpEq, bytecode.OpGt, bytecode.OpLt, bytecode.OpGe, bytecode.OpLe:
			if err := vm.binaryOp(instr.Op); err != nil {
				return err
			}
		case bytecode.OpNeg:
			if err := vm.unaryNeg(); err != nil {
				return err
			}
		case bytecode.OpNot:
			v := vm.pop()
			vm.push(value.BoolValue(!value.Truthy(v)))
		case bytecode.OpBitNot:
			v := vm.pop()
			n, ok := numberOf(v)
			if !ok {
				if err := vm.raiseRuntime("TypeError", "~ requires a number, got %s", value.ToString(v)); err != nil {
					return err
				}
				continue
			}
			vm.push(value.NumberValue(float64(^int64(n))))

		// --- containers ---
		case bytecode.OpList:
			n := instr.Operand
			elems := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
			vm.stack = vm.stack[:len(vm.stack)-n]
			vm.push(value.ObjectValue(vm.newList(elems)))
		case bytecode.OpDict:
			n := instr.Operand
			start := len(vm.stack) - n*2
			pairs := append([]value.Value(nil), vm.stack[start:]...)
			vm.stack = vm.stack[:start]
			d := object.NewDict()
			vm.track(d)
			badKey := -1
			for i := 0; i < n; i++ {
				if !value.Hashable(pairs[i*2]) {
					badKey = i * 2
					break
				}
				d.Put(pairs[i*2], pairs[i*2+1])
			}
			if badKey >= 0 {
				if err := vm.raiseRuntime("TypeError", "%s is not a valid dict key", value.ToString(pairs[badKey])); err != nil {
					return err
				}
			} else {
				vm.push(value.ObjectValue(d))
			}
		case bytecode.OpRange:
			upper := vm.pop()
			lower := vm.pop()
			r := &object.Range{Lower: int64(lower.N), Upper: int64(upper.N)}
			vm.track(r)
			vm.push(value.ObjectValue(r))
		case bytecode.OpIndex:
			idx := vm.pop()
			recv := vm.pop()
			v, err := module.IterValue(vm, recv, idx)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			vm.push(v)
		case bytecode.OpSetIndex:
			val := vm.pop()
			idx := vm.pop()
			recv := vm.pop()
			if err := vm.setIndex(recv, idx, val); err != nil {
				return err
			}
			vm.push(val)
		case bytecode.OpGetProperty:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			recv := vm.pop()
			v, err := module.GetProperty(recv, name)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			vm.push(v)
		case bytecode.OpSetProperty:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			val := vm.pop()
			recv := vm.pop()
			if err := vm.setProperty(recv, name, val); err != nil {
				return err
			}
			vm.push(val)
		case bytecode.OpGetSelfProperty:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			self := vm.stack[frame.slotBase]
			v, err := module.GetProperty(self, name)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			vm.push(v)
		case bytecode.OpInvoke:
			nameIdx, argc := bytecode.UnpackIndexArgc(instr.Operand)
			name := frame.closure.Function.Blob.Constants[nameIdx].Obj.(*object.String).Chars
			base := len(vm.stack) - argc - 1
			recv := vm.stack[base]
			callee, self, hasSelf, err := module.ResolveInvoke(recv, name)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			if hasSelf {
				vm.stack[base] = self
				if err := vm.pushCallFrame(callee.Obj.(*object.Closure), base, argc); err != nil {
					return err
				}
			} else {
				vm.stack[base] = callee
				if err := vm.dispatchCall(callee, base, argc); err != nil {
					return err
				}
			}
		case bytecode.OpSuperInvoke:
			nameIdx, argc := bytecode.UnpackIndexArgc(instr.Operand)
			name := frame.closure.Function.Blob.Constants[nameIdx].Obj.(*object.String).Chars
			base := len(vm.stack) - argc - 1
			home := frame.closure.Function.HomeClass
			if home == nil || home.Superclass == nil {
				if err := vm.raiseRuntime("PropertyError", "no superclass for '%s'", name); err != nil {
					return err
				}
				continue
			}
			m, err := module.SuperInvoke(home, name)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			if err := vm.pushCallFrame(m, base, argc); err != nil {
				return err
			}

		// --- control ---
		case bytecode.OpJump:
			frame.ip = opIP + 1 + instr.Operand
		case bytecode.OpJumpIfFalse:
			if !value.Truthy(vm.peek(0)) {
				frame.ip = opIP + 1 + instr.Operand
			}
		case bytecode.OpJumpIfFalseOrPop:
			if !value.Truthy(vm.peek(0)) {
				frame.ip = opIP + 1 + instr.Operand
			} else {
				vm.pop()
			}
		case bytecode.OpLoop:
			frame.ip = opIP - instr.Operand
			vm.maybeCollect()
		case bytecode.OpCall:
			if err := vm.call(instr.Operand); err != nil {
				return err
			}
		case bytecode.OpInvokeSelf:
			nameIdx, argc := bytecode.UnpackIndexArgc(instr.Operand)
			name := frame.closure.Function.Blob.Constants[nameIdx].Obj.(*object.String).Chars
			self := vm.stack[frame.slotBase]
			callee, selfOut, hasSelf, err := module.ResolveInvoke(self, name)
			if err != nil {
				if err2 := vm.raiseDispatch(err); err2 != nil {
					return err2
				}
				continue
			}
			tail := append([]value.Value(nil), vm.stack[len(vm.stack)-argc:]...)
			vm.stack = vm.stack[:len(vm.stack)-argc]
			base := len(vm.stack)
			if hasSelf {
				vm.push(selfOut)
			} else {
				vm.push(callee)
			}
			vm.stack = append(vm.stack, tail...)
			if hasSelf {
				if err := vm.pushCallFrame(callee.Obj.(*object.Closure), base, argc); err != nil {
					return err
				}
			} else {
				if err := vm.dispatchCall(callee, base, argc); err != nil {
					return err
				}
			}
		case bytecode.OpReturn:
			result := vm.pop()
			vm.completeReturn(frame, result)

		// --- closures/classes ---
		case bytecode.OpClosure:
			cl := vm.makeClosure(frame, instr.Operand)
			vm.push(value.ObjectValue(cl))
		case bytecode.OpClass:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			class := object.NewClass(name)
			vm.track(class)
			vm.push(value.ObjectValue(class))
		case bytecode.OpMethod:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			cl := vm.pop().Obj.(*object.Closure)
			class := vm.peek(0).Obj.(*object.Class)
			cl.Function.HomeClass = class
			class.SetMethod(name, cl)
		case bytecode.OpInherit:
			super := vm.pop().Obj.(*object.Class)
			sub := vm.peek(0).Obj.(*object.Class)
			module.Inherit(sub, super)
		case bytecode.OpField:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			v := vm.pop()
			class := vm.peek(0).Obj.(*object.Class)
			class.FieldNames = append(class.FieldNames, name)
			class.FieldDefaults = append(class.FieldDefaults, v)
		case bytecode.OpStaticField:
			name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
			v := vm.pop()
			class := vm.peek(0).Obj.(*object.Class)
			class.SetStaticField(name, v)

		// --- exceptions ---
		case bytecode.OpTry:
			catchOff, finallyOff := bytecode.UnpackJumpPair(instr.Operand)
			h := tryHandler{catchIP: -1, finallyIP: -1, stackDepth: len(vm.stack)}
			if catchOff != -1 {
				h.catchIP = opIP + catchOff
			}
			if finallyOff != -1 {
				h.finallyIP = opIP + finallyOff
			}
			frame.handlers = append(frame.handlers, h)
		case bytecode.OpTryFilter:
			if instr.Operand != -1 {
				name := frame.closure.Function.Blob.Constants[instr.Operand].Obj.(*object.String).Chars
				g, ok := vm.getGlobal(name)
				if !ok {
					if err := vm.raiseRuntime("NameError", "undefined global '%s'", name); err != nil {
						return err
					}
					continue
				}
				class, ok := g.Obj.(*object.Class)
				if !ok {
					if err := vm.raiseRuntime("TypeError", "'%s' is not a class", name); err != nil {
						return err
					}
					continue
				}
				frame.handlers[len(frame.handlers)-1].classFilter = class
			}
		case bytecode.OpEndTry:
			frame.handlers = frame.handlers[:len(frame.handlers)-1]
			switch {
			case frame.pendingRaise != nil:
				val := *frame.pendingRaise
				frame.pendingRaise = nil
				if err := vm.raise(val); err != nil {
					return err
				}
			case frame.pendingReturn != nil:
				result := *frame.pendingReturn
				frame.pendingReturn = nil
				vm.completeReturn(frame, result)
			case frame.pendingJump != nil:
				pj := frame.pendingJump
				frame.pendingJump = nil
				vm.completeJump(frame, pj.target, pj.remaining)
			}
		case bytecode.OpRaise:
			val := vm.pop()
			if err := vm.raise(val); err != nil {
				return err
			}
		case bytecode.OpExitFinally:
			// frame.ip already points at the break/continue's own
			// OpJump/OpLoop (opIP was advanced past this instruction above);
			// peek its target without executing it, since diverting through
			// a finally must run before control actually reaches it.
			next := code[frame.ip]
			var target int
			switch next.Op {
			case bytecode.OpJump:
				target = frame.ip + 1 + next.Operand
			case bytecode.OpLoop:
				target = frame.ip - next.Operand
			}
			frame.ip++
			vm.completeJump(frame, target, instr.Operand)

		// --- iteration ---
		case bytecode.OpIter:
			key := vm.pop()
			iterable := vm.peek(0)
			v, err := vm.iterValue(iterable, key)
			if err != nil {
				if _, isDispatch := err.(*module.DispatchError); isDispatch {
					if err2 := vm.raiseDispatch(err); err2 != nil {
						return err2
					}
					continue
				}
				return err
			}
			vm.push(v)
		case bytecode.OpIterN:
			key := vm.pop()
			iterable := vm.peek(0)
			next, err := vm.iterNext(iterable, key)
			if err != nil {
				if _, isDispatch := err.(*module.DispatchError); isDispatch {
					if err2 := vm.raiseDispatch(err); err2 != nil {
						return err2
					}
					continue
				}
				return err
			}
			vm.push(next)

		default:
			if err := vm.raiseRuntime("ValueError", "unimplemented opcode %s", instr.Op.String()); err != nil {
				return err
			}
		}
	}
}

// raiseDispatch lifts a module.DispatchError (or any error) returned by
// the pkg/module lookup chain into a catchable Blade exception.
func (vm *VM) raiseDispatch(err error) error {
	if de, ok := err.(*module.DispatchError); ok {
		return vm.raiseRuntime(de.Kind, "%s", de.Msg)
	}
	return vm.raiseRuntime("ValueError", "%s", err.Error())
}

// setIndex implements SET_INDEX across every mutable container type.
func (vm *VM) setIndex(recv, idx, val value.Value) error {
	if !recv.IsObject() {
		return vm.raiseRuntime("TypeError", "%s does not support index assignment", value.ToString(recv))
	}
	switch o := recv.Obj.(type) {
	case *object.List:
		i := int(idx.N)
		if i < 0 {
			return vm.raiseRuntime("RangeError", "list index out of range")
		}
		for i >= len(o.Elements) {
			o.Elements = append(o.Elements, value.EmptyValue)
		}
		o.Elements[i] = val
		return nil
	case *object.Dict:
		if !value.Hashable(idx) {
			return vm.raiseRuntime("TypeError", "%s is not a valid dict key", value.ToString(idx))
		}
		o.Put(idx, val)
		return nil
	case *object.Bytes:
		i := int(idx.N)
		if i < 0 || i >= len(o.Data) {
			return vm.raiseRuntime("RangeError", "bytes index out of range")
		}
		o.Data[i] = byte(int64(val.N))
		return nil
	case *object.Instance:
		if m, ok := module.OperatorMethod(recv, object.OpSelIndex); ok {
			_, err := vm.invokeSync(value.ObjectValue(&object.BoundMethod{Receiver: recv, Method: value.ObjectValue(m)}), []value.Value{idx, val})
			return err
		}
	}
	return vm.raiseRuntime("TypeError", "%s does not support index assignment", value.ToString(recv))
}

// setProperty implements SET_PROPERTY for instances (fields), classes
// (static fields), and modules (globals); every other receiver kind is
// rejected since built-in scalar/container properties are read-only.
func (vm *VM) setProperty(recv value.Value, name string, val value.Value) error {
	if !recv.IsObject() {
		return vm.raiseRuntime("TypeError", "cannot set property '%s' on %s", name, value.ToString(recv))
	}
	switch o := recv.Obj.(type) {
	case *object.Instance:
		o.SetField(name, val)
		return nil
	case *object.Class:
		o.SetStaticField(name, val)
		return nil
	case *object.Module:
		o.Set(name, val)
		return nil
	}
	return vm.raiseRuntime("TypeError", "cannot set property '%s' on %s", name, value.ToString(recv))
}
