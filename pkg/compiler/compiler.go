// Package compiler implements Blade's single-pass Pratt compiler: scanner
// tokens go in, a bytecode.Blob comes out, with no intermediate AST. Each
// syntactic construct has a declared precedence and a prefix/infix rule
// function (see precedence.go), following the classic Pratt/"Crafting
// Interpreters" structure the teacher's own recursive-descent parser used,
// adapted here to emit bytecode directly instead of building parse nodes.
package compiler

import (
	"fmt"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/lexer"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// Interner lets the compiler intern string literals through the same
// table the runtime uses, so that a string constant and an
// identically-valued string built at runtime are pointer-identical (spec
// §8 property 1). The VM implements this over its own intern table; the
// compiler never owns interning itself.
type Interner interface {
	InternString(s string) *object.String
}

// funcType distinguishes the few compile-time behaviors that differ by
// what kind of callable is being compiled (e.g. a class's `@new` must
// implicitly return `self`, a plain function may not use `self`).
type funcType int

const (
	funcTypeScript funcType = iota
	funcTypeFunction
	funcTypeMethod
	funcTypeInitializer
)

type local struct {
	name       string
	depth      int
	isCaptured bool
	// initialized is false between a var's declaration and the point its
	// initializer expression has finished compiling, so that `var x = x`
	// can be rejected (§4.D: "referencing a local declared but not yet
	// initialized ... is an error").
	initialized bool
}

type loopCtx struct {
	continueTarget int
	breakJumps     []int
	scopeDepth     int
	// localsCountAtEntry/continueJumps support break/continue's local-var
	// unwinding and the do-while form's forward-patched continue sites.
	localsCountAtEntry int
	continueJumps      []int
	// tryDepthAtEntry is funcState.tryDepth as of this loop's first
	// instruction, so a break/continue only diverts through try levels
	// entered after the loop started — never a try that merely wraps the
	// loop in its entirety (spec §4.D/§8 property 6).
	tryDepthAtEntry int
}

// classCtx tracks compile-time state for the class body currently being
// compiled, so `parent.m()` can resolve to SUPER_INVOKE and nested classes
// restore the enclosing class on exit.
type classCtx struct {
	enclosing    *classCtx
	name         string
	hasSuperclass bool
}

// funcState is one compiler "frame": one per function/method/block
// literal/script being compiled, chained via enclosing so upvalue
// resolution can walk outward exactly as spec §4.D describes.
type funcState struct {
	enclosing *funcState
	blob      *bytecode.Blob
	kind      funcType

	locals     []local
	upvalues   []bytecode.UpvalueDescriptor
	upvalueIdx map[string]int
	scopeDepth int

	loops []*loopCtx
	// tryDepth counts try statements currently open (body or catch clause,
	// not finally) in this function, so a loop can record how many of them
	// were entered after it started (loopCtx.tryDepthAtEntry).
	tryDepth int
}

// Compiler is a single-pass Pratt compiler over one token stream. A fresh
// Compiler is created per top-level script/REPL entry; class and function
// bodies push/pop funcState frames on the same Compiler instance.
type Compiler struct {
	lex      *lexer.Lexer
	interner Interner

	cur, prev lexer.Token

	current      *funcState
	currentClass *classCtx

	hadError  bool
	panicMode bool
	errors    []string

	moduleName string
}

// New creates a compiler for source, attributing diagnostics to
// moduleName (typically the file path, or "<repl>").
func New(source, moduleName string, interner Interner) *Compiler {
	c := &Compiler{
		lex:        lexer.New(source),
		interner:   interner,
		moduleName: moduleName,
	}
	c.pushFunc(funcTypeScript, "<script>")
	c.advance()
	return c
}

// Compile parses the whole token stream and returns the top-level script
// Blob. On a syntax error it returns nil and the caller should inspect
// Errors().
func (c *Compiler) Compile() *bytecode.Blob {
	for !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	blob := c.endFunc()
	if c.hadError {
		return nil
	}
	return blob
}

func (c *Compiler) HadError() bool      { return c.hadError }
func (c *Compiler) Errors() []string    { return c.errors }

// --- token stream plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.cur
	for {
		c.cur = c.lex.NextToken()
		if c.cur.Type != lexer.TokenIllegal {
			break
		}
		c.errorAtCurrent(fmt.Sprintf("unexpected character %q", c.cur.Literal))
	}
}

func (c *Compiler) check(tt lexer.TokenType) bool { return c.cur.Type == tt }

func (c *Compiler) match(tt lexer.TokenType) bool {
	if !c.check(tt) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(tt lexer.TokenType, msg string) {
	if c.cur.Type == tt {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.cur, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	where := "end"
	if tok.Type != lexer.TokenEOF {
		where = fmt.Sprintf("%q", tok.Literal)
	}
	c.errors = append(c.errors, fmt.Sprintf("%s:%d: SyntaxError at %s: %s", c.moduleName, tok.Line, where, msg))
}

// synchronize discards tokens after a syntax error until a plausible
// statement boundary, so one bad statement doesn't cascade into dozens of
// spurious errors (§7: "report one per line where possible").
func (c *Compiler) synchronize() {
	c.panicMode = false
	for !c.check(lexer.TokenEOF) {
		if c.prev.Type == lexer.TokenSemicolon {
			return
		}
		switch c.cur.Type {
		case lexer.TokenClass, lexer.TokenDef, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenReturn, lexer.TokenTry:
			return
		}
		c.advance()
	}
}

// --- emission helpers -------------------------------------------------------

func (c *Compiler) emit(op bytecode.Opcode, operand int) int {
	return c.current.blob.Emit(op, operand, c.prev.Line)
}

func (c *Compiler) emitOp(op bytecode.Opcode) int { return c.emit(op, 0) }

func (c *Compiler) emitJump(op bytecode.Opcode) int { return c.emit(op, 0) }

func (c *Compiler) patchJump(offset int) {
	target := len(c.current.blob.Code) - offset - 1
	c.current.blob.Patch(offset, target)
}

func (c *Compiler) emitLoop(loopStart int) {
	offset := len(c.current.blob.Code) - loopStart
	c.emit(bytecode.OpLoop, offset)
}

func (c *Compiler) makeConstant(v value.Value) int {
	return c.current.blob.AddConstant(v)
}

func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(value.ObjectValue(c.interner.InternString(name)))
}

func (c *Compiler) numberConstant(n float64) int {
	return c.current.blob.Emit(bytecode.OpConst, c.makeConstant(value.NumberValue(n)), c.prev.Line)
}

// --- function frame management ---------------------------------------------

func (c *Compiler) pushFunc(kind funcType, name string) {
	fs := &funcState{
		enclosing:  c.current,
		blob:       &bytecode.Blob{Name: name},
		kind:       kind,
		upvalueIdx: make(map[string]int),
	}
	// Slot 0 is reserved for `self` in methods/initializers, and for the
	// called closure itself in plain functions (never addressed by name).
	selfName := ""
	if kind == funcTypeMethod || kind == funcTypeInitializer {
		selfName = "self"
	}
	fs.locals = append(fs.locals, local{name: selfName, depth: 0, initialized: true})
	c.current = fs
}

func (c *Compiler) endFunc() *bytecode.Blob {
	// An implicit `return` covers fall-through; initializers implicitly
	// return `self` rather than `nil`.
	if c.current.kind == funcTypeInitializer {
		c.emit(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)

	blob := c.current.blob
	blob.NumLocals = len(c.current.locals)
	blob.Upvalues = c.current.upvalues
	c.current = c.current.enclosing
	return blob
}

// --- scopes & locals ---------------------------------------------------------

func (c *Compiler) beginScope() { c.current.scopeDepth++ }

func (c *Compiler) endScope() {
	c.current.scopeDepth--
	for len(c.current.locals) > 0 && c.current.locals[len(c.current.locals)-1].depth > c.current.scopeDepth {
		last := c.current.locals[len(c.current.locals)-1]
		if last.isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		c.current.locals = c.current.locals[:len(c.current.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string) {
	if c.current.scopeDepth == 0 {
		return
	}
	for i := len(c.current.locals) - 1; i >= 0; i-- {
		l := c.current.locals[i]
		if l.depth != -1 && l.depth < c.current.scopeDepth {
			break
		}
		if l.name == name {
			c.error(fmt.Sprintf("variable %q already declared in this scope", name))
		}
	}
	c.current.locals = append(c.current.locals, local{name: name, depth: c.current.scopeDepth})
}

func (c *Compiler) markInitialized() {
	if c.current.scopeDepth == 0 {
		return
	}
	c.current.locals[len(c.current.locals)-1].initialized = true
}

func (c *Compiler) resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if !fs.locals[i].initialized {
				c.error(fmt.Sprintf("cannot reference %q in its own initializer", name))
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if idx, ok := fs.upvalueIdx[name]; ok {
		return idx
	}
	if local := c.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fs, local, true, name)
	}
	if up := c.resolveUpvalue(fs.enclosing, name); up != -1 {
		return c.addUpvalue(fs, up, false, name)
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index int, isLocal bool, name string) int {
	for i, uv := range fs.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, bytecode.UpvalueDescriptor{Index: index, IsLocal: isLocal})
	idx := len(fs.upvalues) - 1
	fs.upvalueIdx[name] = idx
	return idx
}
