package main

import (
	"errors"
	"testing"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/vm"
)

func TestExposeLastExprSplicesTrailingPopNilReturn(t *testing.T) {
	blob := &bytecode.Blob{
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},
			{Op: bytecode.OpPop},
			{Op: bytecode.OpNil},
			{Op: bytecode.OpReturn},
		},
	}
	if !exposeLastExpr(blob) {
		t.Fatalf("expected the splice to apply")
	}
	want := []bytecode.Instruction{
		{Op: bytecode.OpConst, Operand: 0},
		{Op: bytecode.OpReturn},
	}
	if len(blob.Code) != len(want) {
		t.Fatalf("spliced code = %v, want %v", blob.Code, want)
	}
	for i := range want {
		if blob.Code[i].Op != want[i].Op || blob.Code[i].Operand != want[i].Operand {
			t.Fatalf("instruction %d = %+v, want %+v", i, blob.Code[i], want[i])
		}
	}
}

func TestExposeLastExprLeavesNonExpressionTailUntouched(t *testing.T) {
	// A top-level `var x = 1;` ends on OpDefineGlobal, not OpPop - there is
	// no expression statement's value to expose, so the rewrite must not
	// apply.
	blob := &bytecode.Blob{
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},
			{Op: bytecode.OpDefineGlobal, Operand: 0},
			{Op: bytecode.OpNil},
			{Op: bytecode.OpReturn},
		},
	}
	if exposeLastExpr(blob) {
		t.Fatalf("expected the splice not to apply")
	}
	if len(blob.Code) != 4 {
		t.Fatalf("code length changed despite no matching tail: %v", blob.Code)
	}
}

func TestExposeLastExprIgnoresTooShortBlob(t *testing.T) {
	blob := &bytecode.Blob{Code: []bytecode.Instruction{{Op: bytecode.OpReturn}}}
	if exposeLastExpr(blob) {
		t.Fatalf("a one-instruction blob has no trailing triple to splice")
	}
}

func TestExitCodeForStackOverflowIsDistinct(t *testing.T) {
	overflow := &vm.RuntimeError{Kind: "StackOverflow"}
	if got := exitCodeFor(overflow); got != 71 {
		t.Fatalf("exit code for StackOverflow = %d, want 71", got)
	}
	generic := &vm.RuntimeError{Kind: "TypeError"}
	if got := exitCodeFor(generic); got != 70 {
		t.Fatalf("exit code for a generic uncaught exception = %d, want 70", got)
	}
	if got := exitCodeFor(errors.New("some non-RuntimeError failure")); got != 70 {
		t.Fatalf("exit code for a non-RuntimeError error = %d, want 70", got)
	}
}
