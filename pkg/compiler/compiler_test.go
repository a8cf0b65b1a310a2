package compiler

import (
	"testing"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/object"
)

// stubInterner is not a real string-intern table — it allocates a fresh
// *object.String per call — which is fine for these tests since none of
// them depend on interned identity, only on the Blob a program compiles
// to. The real table lives with the VM (see pkg/vm).
type stubInterner struct{}

func (stubInterner) InternString(s string) *object.String {
	return &object.String{Chars: s}
}

func compileOK(t *testing.T, src string) *bytecode.Blob {
	t.Helper()
	c := New(src, "<test>", stubInterner{})
	blob := c.Compile()
	if c.HadError() {
		t.Fatalf("unexpected compile errors for %q: %v", src, c.Errors())
	}
	if blob == nil {
		t.Fatalf("expected a blob for %q", src)
	}
	return blob
}

func countOp(blob *bytecode.Blob, op bytecode.Opcode) int {
	n := 0
	for _, in := range blob.Code {
		if in.Op == op {
			n++
		}
	}
	return n
}

func TestArithmeticExpression(t *testing.T) {
	blob := compileOK(t, "1 + 2 * 3;")
	if countOp(blob, bytecode.OpMul) != 1 || countOp(blob, bytecode.OpAdd) != 1 {
		t.Fatalf("expected one MUL and one ADD, got %v", blob.Code)
	}
}

func TestVarDeclAndGlobalRoundtrip(t *testing.T) {
	blob := compileOK(t, "var x = 5; x = x + 1;")
	if countOp(blob, bytecode.OpDefineGlobal) != 1 {
		t.Fatalf("expected one DEFINE_GLOBAL, got %v", blob.Code)
	}
	if countOp(blob, bytecode.OpSetGlobal) != 1 || countOp(blob, bytecode.OpGetGlobal) != 1 {
		t.Fatalf("expected one SET_GLOBAL and one GET_GLOBAL, got %v", blob.Code)
	}
}

func TestIfElse(t *testing.T) {
	blob := compileOK(t, "var x = 1; if (x > 0) { x = 1; } else { x = 2; }")
	if countOp(blob, bytecode.OpJumpIfFalse) != 1 || countOp(blob, bytecode.OpJump) != 1 {
		t.Fatalf("expected exactly one conditional and one unconditional jump, got %v", blob.Code)
	}
}

func TestWhileWithBreak(t *testing.T) {
	blob := compileOK(t, "var i = 0; while (i < 10) { i = i + 1; if (i == 5) { break; } }")
	if countOp(blob, bytecode.OpLoop) != 1 {
		t.Fatalf("expected one backward LOOP jump, got %v", blob.Code)
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	src := `
		def makeCounter() {
			var count = 0;
			def inc() {
				count = count + 1;
				return count;
			}
			return inc;
		}
	`
	blob := compileOK(t, src)
	if len(blob.Functions) != 1 {
		t.Fatalf("expected one top-level nested function prototype, got %d", len(blob.Functions))
	}
	makeCounter := blob.Functions[0]
	if len(makeCounter.Functions) != 1 {
		t.Fatalf("expected makeCounter to have one nested function, got %d", len(makeCounter.Functions))
	}
	inc := makeCounter.Functions[0]
	if len(inc.Upvalues) != 1 || !inc.Upvalues[0].IsLocal {
		t.Fatalf("expected inc to capture count as a local upvalue, got %+v", inc.Upvalues)
	}
}

func TestClassWithInheritanceAndOperatorOverload(t *testing.T) {
	src := `
		class Animal {
			var name = "";
			Animal(n) {
				self.name = n;
			}
			speak() {
				return self.name;
			}
		}
		class Dog < Animal {
			@add(other) {
				return self.name;
			}
		}
	`
	blob := compileOK(t, src)
	if countOp(blob, bytecode.OpClass) != 2 {
		t.Fatalf("expected two CLASS opcodes, got %v", blob.Code)
	}
	if countOp(blob, bytecode.OpInherit) != 1 {
		t.Fatalf("expected one INHERIT opcode, got %v", blob.Code)
	}
	if countOp(blob, bytecode.OpMethod) != 3 {
		t.Fatalf("expected three METHOD opcodes (2 on Animal + 1 on Dog), got %v", blob.Code)
	}
}

func TestTryCatchFinally(t *testing.T) {
	blob := compileOK(t, `
		try {
			raise "boom";
		} catch e {
			var x = e;
		} finally {
			var y = 1;
		}
	`)
	if countOp(blob, bytecode.OpTry) != 1 || countOp(blob, bytecode.OpEndTry) != 1 {
		t.Fatalf("expected exactly one TRY/END_TRY pair, got %v", blob.Code)
	}
	if countOp(blob, bytecode.OpRaise) != 1 {
		t.Fatalf("expected one RAISE, got %v", blob.Code)
	}
}

func constantOperand(t *testing.T, blob *bytecode.Blob, op bytecode.Opcode) int {
	t.Helper()
	for _, in := range blob.Code {
		if in.Op == op {
			return in.Operand
		}
	}
	t.Fatalf("no %s instruction in %v", op, blob.Code)
	return 0
}

func TestCatchGrammarVariants(t *testing.T) {
	cases := []struct {
		name     string
		src      string
		filtered bool
	}{
		{"unfiltered unbound", `try { raise "x"; } catch { }`, false},
		{"unfiltered bound via as", `try { raise "x"; } catch as e { var y = e; }`, false},
		{"unfiltered bound bare", `try { raise "x"; } catch e { var y = e; }`, false},
		{"filtered bound", `try { raise "x"; } catch ValueError as e { var y = e; }`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blob := compileOK(t, tc.src)
			if countOp(blob, bytecode.OpTry) != 1 || countOp(blob, bytecode.OpTryFilter) != 1 {
				t.Fatalf("expected one TRY/TRY_FILTER pair, got %v", blob.Code)
			}
			operand := constantOperand(t, blob, bytecode.OpTryFilter)
			if tc.filtered && operand == -1 {
				t.Fatalf("expected a class-filter constant index, got -1")
			}
			if !tc.filtered && operand != -1 {
				t.Fatalf("expected no class filter (-1), got %d", operand)
			}
		})
	}
}

func TestBreakInsideTryEmitsExitFinally(t *testing.T) {
	blob := compileOK(t, `
		while (true) {
			try {
				break;
			} finally {
				var z = 1;
			}
		}
	`)
	if countOp(blob, bytecode.OpExitFinally) != 1 {
		t.Fatalf("expected one EXIT_FINALLY guarding the break, got %v", blob.Code)
	}
}

func TestBreakOutsideTryHasNoExitFinally(t *testing.T) {
	blob := compileOK(t, `
		try {
			while (true) {
				break;
			}
		} finally {
			var z = 1;
		}
	`)
	if countOp(blob, bytecode.OpExitFinally) != 0 {
		t.Fatalf("a break that never leaves the wrapping try should not divert through its finally, got %v", blob.Code)
	}
}

func TestForInDesugarsToIterOpcodes(t *testing.T) {
	blob := compileOK(t, `
		for x in [1, 2, 3] {
			echo x;
		}
	`)
	if countOp(blob, bytecode.OpIter) != 1 || countOp(blob, bytecode.OpIterN) != 1 {
		t.Fatalf("expected one ITER and one ITERN, got %v", blob.Code)
	}
}

func TestSyntaxErrorIsReported(t *testing.T) {
	c := New("var = ;", "<test>", stubInterner{})
	c.Compile()
	if !c.HadError() {
		t.Fatalf("expected a syntax error for malformed var declaration")
	}
	if len(c.Errors()) == 0 {
		t.Fatalf("expected at least one error message")
	}
}
