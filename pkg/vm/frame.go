package vm

import (
	"fmt"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// tryHandler is one entry of a frame's per-call handler stack (spec
// §4.E: "each frame carries a small stack of active try-handlers").
// consumed marks a handler that has already had control transferred into
// it, so a second exception raised from inside its own catch/finally
// body skips back past it to an outer handler instead of re-entering
// itself.
type tryHandler struct {
	catchIP    int // -1 if the try has no catch clause
	finallyIP  int // -1 if the try has no finally clause
	stackDepth int
	consumed   bool
	// classFilter restricts the catch clause to instances of this class (or
	// a subclass); nil means the catch (if any) accepts any raised value.
	classFilter *object.Class
}

// Frame is one active closure invocation: its own instruction pointer
// and a window (slotBase) onto the VM's shared value stack. slotBase
// points at local slot 0 (self, for methods/initializers; the callee
// closure itself, for plain functions — spec §4.E's call protocol).
type Frame struct {
	closure  *object.Closure
	ip       int
	slotBase int
	handlers []tryHandler

	// pendingRaise/pendingReturn/pendingJump carry an in-flight control-flow
	// action (raise, return, or break/continue) through a finally block
	// that sits between the action's origin and its destination (spec
	// §4.E's "pending action" convention): whichever one is set is
	// consumed and completed by END_TRY once the finally body runs.
	// Exactly one is ever non-nil/non-zero at a time.
	pendingRaise  *value.Value
	pendingReturn *value.Value
	pendingJump   *pendingJump
}

// pendingJump carries a break/continue through an active finally. target
// is the jump's final destination; remaining bounds how many more
// try-levels (entered after the break/continue's own loop began) the
// jump may still divert through once this finally completes.
type pendingJump struct {
	target    int
	remaining int
}

func (vm *VM) currentFrame() *Frame { return vm.frames[len(vm.frames)-1] }

// --- call protocol (spec §4.E) -------------------------------------------

// call dispatches a CALL(argc) instruction: callee sits at
// stack_top-argc-1.
func (vm *VM) call(argc int) error {
	base := len(vm.stack) - argc - 1
	return vm.dispatchCall(vm.stack[base], base, argc)
}

// dispatchCall resolves callee, already sitting at vm.stack[base], into
// one of the four call shapes spec §4.E names: closure, native, bound
// method, or class construction.
func (vm *VM) dispatchCall(callee value.Value, base, argc int) error {
	if !callee.IsObject() {
		return vm.raiseRuntime("TypeError", "%s is not callable", value.ToString(callee))
	}
	switch o := callee.Obj.(type) {
	case *object.Closure:
		return vm.pushCallFrame(o, base, argc)
	case *object.Native:
		return vm.callNative(o, base, argc)
	case *object.BoundMethod:
		vm.stack[base] = o.Receiver
		if cl, ok := o.Method.Obj.(*object.Closure); ok {
			return vm.pushCallFrame(cl, base, argc)
		}
		if nt, ok := o.Method.Obj.(*object.Native); ok {
			return vm.callNative(nt, base, argc)
		}
		return vm.raiseRuntime("TypeError", "%s is not callable", value.ToString(o.Method))
	case *object.Class:
		return vm.construct(o, base, argc)
	default:
		return vm.raiseRuntime("TypeError", "%s is not callable", value.ToString(callee))
	}
}

func (vm *VM) callNative(nt *object.Native, base, argc int) error {
	args := append([]value.Value(nil), vm.stack[base+1:]...)
	result, err := nt.Fn(vm, args)
	if err != nil {
		kind, msg := classifyNativeError(err)
		return vm.raiseRuntime(kind, "%s", msg)
	}
	vm.stack = vm.stack[:base]
	vm.push(result)
	return nil
}

// construct implements class-value calls: allocate an instance, bind
// and call @new if the class defines one, otherwise reject any
// constructor arguments. @new always returns self (enforced by the
// compiler's endFunc for funcTypeInitializer), so no substitution of the
// call's return value is needed here.
func (vm *VM) construct(class *object.Class, base, argc int) error {
	if class == vm.excClass {
		return vm.constructException(base, argc)
	}
	inst := object.NewInstance(class)
	vm.track(inst)
	if ctor, ok := class.Method("@new"); ok {
		vm.stack[base] = value.ObjectValue(inst)
		return vm.pushCallFrame(ctor, base, argc)
	}
	if argc != 0 {
		return vm.raiseRuntime("ArgumentError", "%s has no constructor accepting arguments", class.Name)
	}
	vm.stack = vm.stack[:base]
	vm.push(value.ObjectValue(inst))
	return nil
}

// constructException builds an Exception instance directly rather than
// through a compiled @new (the built-in class has none): `Exception(msg)`
// and bare `Exception()` both produce a catchable instance with `type` set
// to "Exception" and `message` set from the sole optional argument, the
// same shape raiseRuntime gives VM-detected errors.
func (vm *VM) constructException(base, argc int) error {
	if argc > 1 {
		return vm.raiseRuntime("ArgumentError", "Exception expects at most 1 argument, got %d", argc)
	}
	msg := ""
	if argc == 1 {
		msg = value.ToString(vm.stack[base+1])
	}
	inst := object.NewInstance(vm.excClass)
	vm.track(inst)
	inst.SetField("type", value.ObjectValue(vm.Intern("Exception")))
	inst.SetField("message", value.ObjectValue(vm.Intern(msg)))
	vm.stack = vm.stack[:base]
	vm.push(value.ObjectValue(inst))
	return nil
}

// pushCallFrame installs a new Frame for cl, with its arguments already
// sitting at vm.stack[base+1:base+1+argc]. A variadic function's trailing
// arguments are collected into a single list bound to its last param.
func (vm *VM) pushCallFrame(cl *object.Closure, base, argc int) error {
	fn := cl.Function
	if fn.IsVariadic {
		fixed := fn.Arity - 1
		if argc < fixed {
			return vm.raiseRuntime("ArgumentError", "%s expects at least %d argument(s), got %d", fnName(fn), fixed, argc)
		}
		rest := append([]value.Value(nil), vm.stack[base+1+fixed:]...)
		vm.stack = vm.stack[:base+1+fixed]
		vm.push(value.ObjectValue(vm.newList(rest)))
	} else if argc != fn.Arity {
		return vm.raiseRuntime("ArgumentError", "%s expects %d argument(s), got %d", fnName(fn), fn.Arity, argc)
	}
	if len(vm.frames) >= maxFrames {
		return vm.raiseRuntime("StackOverflow", "stack overflow calling %s", fnName(fn))
	}
	for len(vm.stack) < base+fn.NumLocals {
		vm.push(value.NilValue)
	}
	vm.frames = append(vm.frames, &Frame{closure: cl, slotBase: base})
	return nil
}

func fnName(fn *object.Function) string {
	if fn.Name == "" {
		return "<anonymous>"
	}
	return fn.Name
}

// invokeSync calls callee with args and runs it to completion before
// returning, recursing the dispatch loop when callee is a Blade closure.
// Used by object.NativeContext.Call, operator-overload dispatch, the
// iterator protocol, and @to_string stringification — every place that
// needs a value back immediately rather than letting the flat CALL/RETURN
// cycle drive it.
func (vm *VM) invokeSync(callee value.Value, args []value.Value) (value.Value, error) {
	base := len(vm.stack)
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	depthBefore := len(vm.frames)
	if err := vm.dispatchCall(callee, base, len(args)); err != nil {
		return value.NilValue, err
	}
	if len(vm.frames) > depthBefore {
		if err := vm.runLoop(depthBefore); err != nil {
			return value.NilValue, err
		}
	}
	return vm.pop(), nil
}

// --- closures & upvalues --------------------------------------------------

// makeClosure materializes OpClosure's operand (an index into the
// current frame's nested-function table) into a live Closure, capturing
// each upvalue left-to-right per spec §4.E's ordering guarantee.
func (vm *VM) makeClosure(frame *Frame, protoIdx int) *object.Closure {
	proto := frame.closure.Function.Blob.Functions[protoIdx]
	fn := &object.Function{
		Name:         proto.Name,
		Arity:        proto.Arity,
		IsVariadic:   proto.IsVariadic,
		UpvalueCount: len(proto.Upvalues),
		Blob:         proto,
		Module:       frame.closure.Function.Module,
	}
	vm.track(fn)

	upvalues := make([]*object.Upvalue, len(proto.Upvalues))
	for i, desc := range proto.Upvalues {
		if desc.IsLocal {
			upvalues[i] = vm.captureUpvalue(frame.slotBase + desc.Index)
		} else {
			upvalues[i] = frame.closure.Upvalues[desc.Index]
		}
	}
	cl := &object.Closure{Function: fn, Upvalues: upvalues}
	vm.track(cl)
	return cl
}

func (vm *VM) captureUpvalue(absIdx int) *object.Upvalue {
	if uv, ok := vm.openUV[absIdx]; ok {
		return uv
	}
	uv := &object.Upvalue{Location: &vm.stack[absIdx], StackIndex: absIdx}
	vm.track(uv)
	vm.openUV[absIdx] = uv
	return uv
}

// closeUpvalue closes (if open) the upvalue anchored at absIdx,
// detaching it from the stack so it survives that slot being popped.
func (vm *VM) closeUpvalue(absIdx int) {
	if uv, ok := vm.openUV[absIdx]; ok {
		uv.Close()
		delete(vm.openUV, absIdx)
	}
}

// closeUpvaluesFrom closes every open upvalue at or above minIdx — used
// by RETURN (spec §4.E: "closes all upvalues whose stack address is >=
// the current frame base") to catch any local the function's own
// top-level scope never ran an explicit CLOSE_UPVALUE for.
func (vm *VM) closeUpvaluesFrom(minIdx int) {
	for idx, uv := range vm.openUV {
		if idx >= minIdx {
			uv.Close()
			delete(vm.openUV, idx)
		}
	}
}

// --- exceptions (spec §4.E) ----------------------------------------------

// raiseRuntime builds a language-level exception instance of the VM's
// built-in Exception class and raises it — the path every VM-detected
// error (type mismatches, arity errors, missing properties) takes to
// become a catchable Blade value.
func (vm *VM) raiseRuntime(kind, format string, a ...interface{}) error {
	msg := kind
	if format != "" {
		msg = fmt.Sprintf(format, a...)
	}
	inst := object.NewInstance(vm.excClass)
	vm.track(inst)
	inst.SetField("type", value.ObjectValue(vm.Intern(kind)))
	inst.SetField("message", value.ObjectValue(vm.Intern(msg)))
	return vm.raise(value.ObjectValue(inst))
}

// raise implements RAISE's unwinding (spec §4.E): search every frame
// from innermost out for the first unconsumed handler whose catch matches
// val (spec §4.D: "if the raised value matches the declared class, or no
// filter is given"). A match truncates the value stack to the handler's
// recorded depth, closes upvalues at or above it, drops any
// more-deeply-nested (now-abandoned) handlers above the match, and
// transfers control to its catch or finally PC. A handler whose filter
// rejects val is passed through without being consumed — unless it has a
// finally, which still must run on the way past. Frames with no matching
// handler are discarded entirely. An exception that escapes every frame
// becomes a terminal *RuntimeError.
func (vm *VM) raise(val value.Value) error {
	trace := vm.captureTrace()
	for fi := len(vm.frames) - 1; fi >= 0; fi-- {
		f := vm.frames[fi]
		for hi := len(f.handlers) - 1; hi >= 0; hi-- {
			h := f.handlers[hi]
			if h.consumed {
				continue
			}
			matched := h.catchIP != -1 && matchesFilter(val, h.classFilter)
			if !matched && h.finallyIP == -1 {
				continue
			}
			f.handlers[hi].consumed = true
			f.handlers = f.handlers[:hi+1]
			vm.frames = vm.frames[:fi+1]
			vm.closeUpvaluesFrom(h.stackDepth)
			vm.stack = vm.stack[:h.stackDepth]
			if matched {
				vm.push(val)
				f.ip = h.catchIP
			} else {
				f.pendingRaise = &val
				f.ip = h.finallyIP
			}
			return nil
		}
	}
	return vm.wrapException(val, trace)
}

// matchesFilter reports whether val satisfies class (spec §4.D's catch
// filter): true unconditionally when class is nil (no filter given),
// otherwise true when val is an instance of class or one of its
// subclasses.
func matchesFilter(val value.Value, class *object.Class) bool {
	if class == nil {
		return true
	}
	inst, ok := val.Obj.(*object.Instance)
	if !ok {
		return false
	}
	for c := inst.Class; c != nil; c = c.Superclass {
		if c == class {
			return true
		}
	}
	return false
}

// activeHandlerAny returns the innermost unconsumed handler in frame that
// has a finally clause, regardless of depth — used by return, which must
// run every still-open finally in its own frame before actually exiting.
func activeHandlerAny(frame *Frame) (int, tryHandler, bool) {
	for hi := len(frame.handlers) - 1; hi >= 0; hi-- {
		h := frame.handlers[hi]
		if h.consumed {
			continue
		}
		if h.finallyIP != -1 {
			return hi, h, true
		}
	}
	return 0, tryHandler{}, false
}

// activeHandlerWithinDepth is activeHandlerAny bounded to at most
// maxLevels handler slots from the top — used by break/continue, which
// must only divert through try statements entered after their own loop
// began, never one that merely wraps the whole loop. It returns how many
// levels remain unconsumed by the search, for the caller to pass to a
// further divert once the matched finally completes.
func activeHandlerWithinDepth(frame *Frame, maxLevels int) (int, tryHandler, int, bool) {
	count := 0
	for hi := len(frame.handlers) - 1; hi >= 0 && count < maxLevels; hi-- {
		count++
		h := frame.handlers[hi]
		if h.consumed {
			continue
		}
		if h.finallyIP != -1 {
			return hi, h, maxLevels - count, true
		}
	}
	return 0, tryHandler{}, 0, false
}

// divertOrFinish truncates frame's handlers/stack to h's recorded depth
// and jumps into its finally, shared by completeReturn/completeJump.
func (vm *VM) divertOrFinish(frame *Frame, hi int, h tryHandler) {
	frame.handlers[hi].consumed = true
	frame.handlers = frame.handlers[:hi+1]
	vm.closeUpvaluesFrom(h.stackDepth)
	vm.stack = vm.stack[:h.stackDepth]
	frame.ip = h.finallyIP
}

// completeReturn finishes a RETURN, diverting through every still-active
// finally in frame before the frame is actually popped (spec §8 property
// 6: "finally runs exactly once whether the try body... executes
// return").
func (vm *VM) completeReturn(frame *Frame, result value.Value) {
	if hi, h, ok := activeHandlerAny(frame); ok {
		vm.divertOrFinish(frame, hi, h)
		frame.pendingReturn = &result
		return
	}
	vm.closeUpvaluesFrom(frame.slotBase)
	vm.stack = vm.stack[:frame.slotBase]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.push(result)
	vm.maybeCollect()
}

// completeJump finishes a break/continue's OpExitFinally, diverting
// through up to remaining more active finally blocks before jumping to
// target.
func (vm *VM) completeJump(frame *Frame, target, remaining int) {
	if remaining > 0 {
		if hi, h, rem, ok := activeHandlerWithinDepth(frame, remaining); ok {
			vm.divertOrFinish(frame, hi, h)
			frame.pendingJump = &pendingJump{target: target, remaining: rem}
			return
		}
	}
	frame.ip = target
}

func (vm *VM) captureTrace() []StackFrame {
	trace := make([]StackFrame, 0, len(vm.frames))
	for _, f := range vm.frames {
		line := -1
		if f.closure != nil && f.closure.Function.Blob != nil {
			line = f.closure.Function.Blob.LineAt(f.ip)
		}
		name := "<script>"
		if f.closure != nil {
			name = fnName(f.closure.Function)
		}
		trace = append(trace, StackFrame{Name: name, SourceLine: line})
	}
	return trace
}

func (vm *VM) wrapException(val value.Value, trace []StackFrame) *RuntimeError {
	if inst, ok := val.Obj.(*object.Instance); ok && inst.Class == vm.excClass {
		kind := "Error"
		if t, ok := inst.GetField("type"); ok {
			kind = value.ToString(t)
		}
		msg := ""
		if m, ok := inst.GetField("message"); ok {
			msg = value.ToString(m)
		}
		return newRuntimeError(kind, msg, trace)
	}
	return newRuntimeError("Error", value.ToString(val), trace)
}
