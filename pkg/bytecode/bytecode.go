// Package bytecode defines the bytecode format and opcodes for Blade.
//
// The bytecode is the low-level intermediate representation the Blade
// virtual machine executes. It consists of a sequence of instructions, each
// with an opcode and an optional operand, plus a constant pool for literal
// values and a line table mapping instruction offsets back to source lines
// for stack traces.
//
// Architecture:
//
// The bytecode system follows a stack-based architecture where:
//  1. Values are pushed onto and popped from a runtime stack
//  2. Operations consume values from the stack and push results back
//  3. Locals, upvalues, and globals are addressed by slot/index, never name
//     lookup (except globals, which are named)
//  4. Message-shaped operations (GET_PROPERTY, INVOKE, ...) drive the
//     module/class dispatch described in pkg/module
//
// Instruction format:
//
// Each instruction is a one-byte opcode plus a single int operand. The
// operand's meaning is opcode-specific: a constant-pool index, a local
// slot, a jump offset, or a packed (index, count) pair for call-shaped
// opcodes. Packing keeps the in-memory Instruction format uniform (see
// teacher smog's identical SEND-operand-packing idiom) even though the
// spec's own wire format uses 16-bit jump/selector fields; this package's
// binary encoder (format.go) writes every operand as a fixed int32 in the
// ".bldb" file format.
package bytecode

import "github.com/blade-lang/blade/pkg/value"

// Opcode represents a bytecode instruction operation. Opcodes are grouped
// below exactly as spec §4.E groups them.
type Opcode byte

const (
	// === Stack ===
	OpNil Opcode = iota
	OpTrue
	OpFalse
	OpEmpty
	OpConst    // operand: constant pool index
	OpPop
	OpPopN     // operand: count
	OpDup

	// === Locals / upvalues / globals ===
	OpGetLocal    // operand: slot
	OpSetLocal    // operand: slot
	OpGetUpvalue  // operand: upvalue index
	OpSetUpvalue  // operand: upvalue index
	OpCloseUpvalue
	OpGetGlobal   // operand: name constant index
	OpSetGlobal   // operand: name constant index
	OpDefineGlobal // operand: name constant index

	// === Arithmetic / logic ===
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpFDiv
	OpPow
	OpNeg
	OpNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr
	OpUShr
	OpEq
	OpGt
	OpLt
	OpGe
	OpLe

	// === Container ===
	OpList      // operand: element count
	OpDict      // operand: pair count
	OpRange
	OpIndex
	OpSetIndex
	OpGetProperty     // operand: name constant index
	OpSetProperty     // operand: name constant index
	OpGetSelfProperty // operand: name constant index
	OpInvoke          // operand: packed (name const index, argc)
	OpSuperInvoke      // operand: packed (name const index, argc)

	// === Control ===
	OpJump             // operand: forward offset
	OpJumpIfFalse      // operand: forward offset
	OpJumpIfFalseOrPop // operand: forward offset
	OpLoop             // operand: backward offset
	OpCall             // operand: argc
	OpInvokeSelf       // operand: packed (name const index, argc)
	OpReturn

	// === Closures / classes ===
	OpClosure // operand: index into the enclosing Blob's Functions slice; the
	// indexed Blob carries its own Upvalues descriptor slice, so no inline
	// per-upvalue operand bytes trail this instruction (contrast classic
	// Crafting-Interpreters bytecode, which packs them after OP_CLOSURE)
	OpClass   // operand: name constant index
	OpMethod  // operand: name constant index
	OpInherit
	OpField       // operand: name constant index (instance field initializer)
	OpStaticField // operand: name constant index

	// === Exceptions ===
	OpTry        // operand: packed (catch offset, finally offset)
	OpTryFilter  // operand: constant pool index of the catch clause's class name, or -1 for no filter; always immediately follows OpTry
	OpEndTry
	OpRaise
	OpExitFinally // operand: how many enclosing try levels (entered since the break/continue's own loop started) a break/continue must still divert through; immediately precedes the break/continue's own OpJump/OpLoop

	// === Iteration ===
	OpIter  // operand: unused; expects [iterable, key] on stack
	OpIterN // operand: unused; expects [iterable, key] on stack
)

// opcodeNames mirrors the const block above for String() and the
// disassembler; keeping it as a flat table (rather than a switch, as the
// teacher's smog does for its much shorter opcode list) scales better once
// the ISA reaches Blade's ~70 entries.
var opcodeNames = [...]string{
	"NIL", "TRUE", "FALSE", "EMPTY", "CONST", "POP", "POP_N", "DUP",
	"GET_LOCAL", "SET_LOCAL", "GET_UPVALUE", "SET_UPVALUE", "CLOSE_UPVALUE",
	"GET_GLOBAL", "SET_GLOBAL", "DEFINE_GLOBAL",
	"ADD", "SUB", "MUL", "DIV", "MOD", "FDIV", "POW", "NEG", "NOT",
	"BIT_AND", "BIT_OR", "BIT_XOR", "BIT_NOT", "SHL", "SHR", "USHR",
	"EQ", "GT", "LT", "GE", "LE",
	"LIST", "DICT", "RANGE", "INDEX", "SET_INDEX",
	"GET_PROPERTY", "SET_PROPERTY", "GET_SELF_PROPERTY", "INVOKE", "SUPER_INVOKE",
	"JUMP", "JUMP_IF_FALSE", "JUMP_IF_FALSE_OR_POP", "LOOP", "CALL", "INVOKE_SELF", "RETURN",
	"CLOSURE", "CLASS", "METHOD", "INHERIT", "FIELD", "STATIC_FIELD",
	"TRY", "TRY_FILTER", "END_TRY", "RAISE", "EXIT_FINALLY",
	"ITER", "ITERN",
}

// String returns a human-readable opcode name, used by the disassembler and
// debugger.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// Instruction is a single bytecode instruction: opcode plus operand.
type Instruction struct {
	Op      Opcode
	Operand int
	Line    int // source line, duplicated here for convenience; authoritative copy is Blob's RLE line table
}

// Packing helpers for call-shaped opcodes (INVOKE, SUPER_INVOKE,
// INVOKE_SELF): high bits hold a constant-pool/function index, low 8 bits
// hold an argument count. This is the same bit-packing idiom the teacher's
// smog uses for SEND/SUPER_SEND.
const (
	IndexShift = 8
	ArgCountMask = 0xFF
)

func PackIndexArgc(index, argc int) int {
	return (index << IndexShift) | (argc & ArgCountMask)
}

func UnpackIndexArgc(operand int) (index, argc int) {
	return operand >> IndexShift, operand & ArgCountMask
}

// PackJumpPair packs a try-block's catch/finally targets (relative to the
// OpTry instruction itself) into one operand.
func PackJumpPair(catchOff, finallyOff int) int {
	return (catchOff << 16) | (finallyOff & 0xFFFF)
}

// UnpackJumpPair reverses PackJumpPair. finallyOff is sign-extended from
// its 16 bits, so a -1 ("no finally clause") comes back as -1.
func UnpackJumpPair(operand int) (catchOff, finallyOff int) {
	return operand >> 16, int(int16(operand & 0xFFFF))
}

// UpvalueDescriptor tells OpClosure where each of a closure's upvalues
// comes from: a slot in the enclosing function's locals (IsLocal true) or
// an upvalue already captured by the enclosing function (IsLocal false).
type UpvalueDescriptor struct {
	Index   int
	IsLocal bool
}

// Blob is a compiled unit of code: one function body's instructions, its
// constant pool, and the upvalue descriptors and line table needed to run
// and debug it. The compiler emits one Blob per function/method/block
// literal (spec §4.D); the top-level script body is itself a Blob bound to
// an implicit zero-arity function.
//
// Named Blob rather than the teacher's Bytecode to match the wire-format
// term spec §6 uses for the ".bldb" file container.
type Blob struct {
	Name       string
	Arity      int
	IsVariadic bool
	Code       []Instruction
	Constants  []value.Value
	// Functions holds the compiled bodies of every function/method/block
	// literal nested directly inside this one. OpClosure's operand indexes
	// into this slice, not Constants — a Blob cannot itself be boxed into
	// a value.Value constant without pkg/bytecode depending on pkg/object
	// for the Function wrapper, which would invert the intended
	// value -> bytecode -> object layering. The VM wraps the indexed Blob
	// in an object.Function (then an object.Closure) the first time
	// OpClosure runs.
	Functions []*Blob
	Upvalues  []UpvalueDescriptor
	NumLocals int
	lines     lineTable
}

// lineTable is a run-length-encoded mapping from instruction index to
// source line, avoiding one int per instruction for the (common) case of
// long straight-line runs on the same source line.
type lineTable struct {
	runs []lineRun
}

type lineRun struct {
	count int
	line  int
}

// AddLine records the source line for the next instruction appended to
// Code. Called once per instruction as the compiler emits it.
func (b *Blob) AddLine(line int) {
	n := len(b.lines.runs)
	if n > 0 && b.lines.runs[n-1].line == line {
		b.lines.runs[n-1].count++
		return
	}
	b.lines.runs = append(b.lines.runs, lineRun{count: 1, line: line})
}

// LineAt returns the source line recorded for instruction index ip.
func (b *Blob) LineAt(ip int) int {
	remaining := ip
	for _, r := range b.lines.runs {
		if remaining < r.count {
			return r.line
		}
		remaining -= r.count
	}
	return -1
}

// Emit appends an instruction and its source line, returning the
// instruction's index (useful for patching jump targets later).
func (b *Blob) Emit(op Opcode, operand int, line int) int {
	idx := len(b.Code)
	b.Code = append(b.Code, Instruction{Op: op, Operand: operand, Line: line})
	b.AddLine(line)
	return idx
}

// Patch overwrites the operand of an already-emitted instruction, used by
// the compiler to back-patch forward jump offsets once the jump target is
// known.
func (b *Blob) Patch(idx int, operand int) {
	b.Code[idx].Operand = operand
}

// AddConstant interns v into the constant pool, returning its index. The
// compiler calls this for every literal; it does not itself dedupe by
// value (string/number interning already happens one layer down, in
// the VM's intern table and pkg/value's scalar representation).
func (b *Blob) AddConstant(v value.Value) int {
	b.Constants = append(b.Constants, v)
	return len(b.Constants) - 1
}

// AddFunction registers a nested function/method/block prototype, returning
// its index for use as OpClosure's operand.
func (b *Blob) AddFunction(fn *Blob) int {
	b.Functions = append(b.Functions, fn)
	return len(b.Functions) - 1
}
