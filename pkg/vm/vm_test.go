package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/blade-lang/blade/pkg/compiler"
	"github.com/blade-lang/blade/pkg/table"
	"github.com/blade-lang/blade/pkg/value"
)

// runSource compiles and runs src on a fresh VM whose stdout is captured,
// failing the test on a compile error or an uncaught runtime error.
func runSource(t *testing.T, src string) (*VM, string) {
	t.Helper()
	var out bytes.Buffer
	m := New(Options{Stdout: &out})
	comp := compiler.New(src, "<test>", m)
	blob := comp.Compile()
	if comp.HadError() {
		t.Fatalf("compile error(s): %v", comp.Errors())
	}
	if err := m.Run(blob); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return m, out.String()
}

func TestPrintBuiltin(t *testing.T) {
	_, out := runSource(t, `print("hello", "world");`)
	if got := strings.TrimSpace(out); got != "hello world" {
		t.Fatalf("stdout = %q, want %q", got, "hello world")
	}
}

func TestArithmeticAndVariables(t *testing.T) {
	m, out := runSource(t, `
var a = 3;
var b = 4;
print(a * a + b * b);
`)
	if got := strings.TrimSpace(out); got != "25" {
		t.Fatalf("stdout = %q, want %q", got, "25")
	}
	_ = m
}

func TestIfElseControlFlow(t *testing.T) {
	_, out := runSource(t, `
def classify(n) {
  if (n < 0) return "negative";
  else if (n == 0) return "zero";
  else return "positive";
}
print(classify(-1));
print(classify(0));
print(classify(1));
`)
	want := "negative\nzero\npositive"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestWhileLoopAccumulates(t *testing.T) {
	_, out := runSource(t, `
var i = 0;
var sum = 0;
while (i < 5) {
  sum = sum + i;
  i = i + 1;
}
print(sum);
`)
	if got := strings.TrimSpace(out); got != "10" {
		t.Fatalf("stdout = %q, want %q", got, "10")
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	_, out := runSource(t, `
def make_counter() {
  var n = 0;
  def increment() {
    n = n + 1;
    return n;
  }
  return increment;
}
var counter = make_counter();
print(counter());
print(counter());
print(counter());
`)
	want := "1\n2\n3"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestStackOverflowRaisesSpecificKind(t *testing.T) {
	var out bytes.Buffer
	m := New(Options{Stdout: &out})
	comp := compiler.New(`
def recurse() {
  return recurse();
}
recurse();
`, "<test>", m)
	blob := comp.Compile()
	if comp.HadError() {
		t.Fatalf("compile error(s): %v", comp.Errors())
	}
	err := m.Run(blob)
	if err == nil {
		t.Fatalf("expected a stack overflow error")
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected a *RuntimeError, got %T: %v", err, err)
	}
	if re.Kind != "StackOverflow" {
		t.Fatalf("error kind = %q, want %q", re.Kind, "StackOverflow")
	}
}

func TestUncaughtExceptionPropagates(t *testing.T) {
	var out bytes.Buffer
	m := New(Options{Stdout: &out})
	comp := compiler.New(`
def boom() {
  raise "kaboom";
}
boom();
`, "<test>", m)
	blob := comp.Compile()
	if comp.HadError() {
		t.Fatalf("compile error(s): %v", comp.Errors())
	}
	if err := m.Run(blob); err == nil {
		t.Fatalf("expected an uncaught exception")
	}
}

func TestTryCatchRecoversFromRaise(t *testing.T) {
	_, out := runSource(t, `
try {
  raise "nope";
} catch e {
  print("caught: " + e);
}
`)
	if got := strings.TrimSpace(out); got != "caught: nope" {
		t.Fatalf("stdout = %q, want %q", got, "caught: nope")
	}
}

// TestInternSetPrunedUnderAllocationPressure exercises spec §8's
// allocation-pressure property (bounded resident memory within a small
// factor of the live set) against the string intern set specifically: a
// tight loop that builds a fresh, never-retained string each iteration
// must not leave the intern table growing without bound, since spec §4.C
// requires unmarked intern entries to be pruned before sweep.
func TestInternSetPrunedUnderAllocationPressure(t *testing.T) {
	var out bytes.Buffer
	m := New(Options{Stdout: &out})
	m.Collector().SetThreshold(64)

	comp := compiler.New(`
var i = 0;
while (i < 20000) {
  var s = "garbage-" + i;
  i = i + 1;
}
`, "<test>", m)
	blob := comp.Compile()
	if comp.HadError() {
		t.Fatalf("compile error(s): %v", comp.Errors())
	}
	if err := m.Run(blob); err != nil {
		t.Fatalf("run error: %v", err)
	}

	if n := m.InternedCount(); n > 1000 {
		t.Fatalf("intern set held %d entries after a 20000-iteration loop; pruning is not bounding it", n)
	}
}

// TestBreakRunsFinallyBeforeLeavingLoop covers spec §8 property 6 for the
// break/continue half, not just return: a break inside a try nested in a
// loop must still run that try's finally before control reaches the
// statement after the loop.
func TestBreakRunsFinallyBeforeLeavingLoop(t *testing.T) {
	_, out := runSource(t, `
while (true) {
  try {
    break;
  } finally {
    print("cleanup");
  }
}
print("after");
`)
	want := "cleanup\nafter"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

// TestBreakInWrappingTryDoesNotRunFinallyEarly covers the other half of
// the same property: a break whose loop is nested *inside* a try must NOT
// trigger that try's finally, since control never actually leaves the try
// (the finally still runs once, after the loop completes normally).
func TestBreakInWrappingTryDoesNotRunFinallyEarly(t *testing.T) {
	_, out := runSource(t, `
try {
  while (true) {
    break;
  }
  print("loop done");
} finally {
  print("cleanup");
}
`)
	want := "loop done\ncleanup"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

// TestCatchFilterMatchesSubclass exercises spec §8 scenario S4: a filtered
// catch binds when the raised value is an instance of the named class or
// one of its subclasses.
func TestCatchFilterMatchesSubclass(t *testing.T) {
	_, out := runSource(t, `
class ValueError < Exception {
  @new(msg) {
    self.message = msg;
  }
}

try {
  raise ValueError("bad value");
} catch Exception as e {
  print("caught: " + e.message);
}
`)
	want := "caught: bad value"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

// TestCatchFilterSkipsNonMatchingClass verifies a filtered catch that
// doesn't match lets the exception pass through to an outer handler
// instead of swallowing it.
func TestCatchFilterSkipsNonMatchingClass(t *testing.T) {
	_, out := runSource(t, `
class ValueError < Exception {
  @new(msg) {
    self.message = msg;
  }
}
class TypeErr < Exception {
  @new(msg) {
    self.message = msg;
  }
}

try {
  try {
    raise TypeErr("wrong type");
  } catch ValueError as e {
    print("should not reach here");
  }
} catch e {
  print("outer caught: " + e.message);
}
`)
	want := "outer caught: wrong type"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestListAndDictLiterals(t *testing.T) {
	_, out := runSource(t, `
var list = [1, 2, 3];
var dict = {"a": 1, "b": 2};
print(list[0] + list[1] + list[2]);
print(dict["a"] + dict["b"]);
`)
	want := "6\n3"
	if got := strings.TrimSpace(out); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestLastValueExposesFinalExpression(t *testing.T) {
	var out bytes.Buffer
	m := New(Options{Stdout: &out})
	comp := compiler.New(`21 * 2;`, "<test>", m)
	blob := comp.Compile()
	if comp.HadError() {
		t.Fatalf("compile error(s): %v", comp.Errors())
	}

	// Splice the implicit trailing [OpPop, OpNil, OpReturn] down to a bare
	// OpReturn, exactly as cmd/blade's REPL does, so the last expression's
	// value survives as the script's own return value.
	n := len(blob.Code)
	blob.Code = append(blob.Code[:n-3], blob.Code[n-1])

	if err := m.Run(blob); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := m.LastValue()
	if !got.IsNumber() || got.N != 42 {
		t.Fatalf("LastValue() = %v, want 42", got)
	}
}

func TestGlobalsAreIsolatedPerImportedModule(t *testing.T) {
	m := New(Options{Stdout: &bytes.Buffer{}})
	m.defineGlobal("leaked", value.BoolValue(true))
	savedGlobals := m.globals
	m.globals = table.New()
	if _, ok := m.getGlobal("leaked"); ok {
		t.Fatalf("fresh globals table should not see the outer script's globals")
	}
	m.globals = savedGlobals
}
