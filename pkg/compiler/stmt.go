package compiler

import (
	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/lexer"
	"github.com/blade-lang/blade/pkg/value"
)

// declaration is the top of the statement grammar: anything that may
// introduce a new binding (var/def/class/import) falls through to
// statement() for everything else.
func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenVar):
		c.varDecl()
	case c.match(lexer.TokenDef):
		c.defDecl()
	case c.match(lexer.TokenClass):
		c.classDecl()
	case c.match(lexer.TokenImport):
		c.importDecl()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(lexer.TokenIf):
		c.ifStmt()
	case c.match(lexer.TokenWhile):
		c.whileStmt()
	case c.match(lexer.TokenDo):
		c.doWhileStmt()
	case c.match(lexer.TokenLoop):
		c.loopStmt()
	case c.match(lexer.TokenFor):
		c.forStmt()
	case c.match(lexer.TokenBreak):
		c.breakStmt()
	case c.match(lexer.TokenContinue):
		c.continueStmt()
	case c.match(lexer.TokenReturn):
		c.returnStmt()
	case c.match(lexer.TokenTry):
		c.tryStmt()
	case c.match(lexer.TokenRaise):
		c.raiseStmt()
	case c.match(lexer.TokenEcho):
		c.echoStmt()
	case c.match(lexer.TokenSemicolon):
		// empty statement
	default:
		c.exprStmt()
	}
}

// block compiles statements until the matching '}'. The caller is
// responsible for begin/endScope — block() itself does not scope, so it
// can be reused for function bodies, which share the function's own
// frame instead of nesting an extra scope depth.
func (c *Compiler) block() {
	for !c.check(lexer.TokenRBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRBrace, "expected '}' after block")
}

func (c *Compiler) varDecl() {
	for {
		c.consume(lexer.TokenIdentifier, "expected variable name")
		name := c.prev.Literal
		global := -1
		if c.current.scopeDepth == 0 {
			global = c.identifierConstant(name)
		} else {
			c.declareLocal(name)
		}
		if c.match(lexer.TokenAssign) {
			c.expression()
		} else {
			c.emitOp(bytecode.OpNil)
		}
		if global != -1 {
			c.emit(bytecode.OpDefineGlobal, global)
		} else {
			c.markInitialized()
		}
		if !c.match(lexer.TokenComma) {
			break
		}
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after variable declaration")
}

func (c *Compiler) defDecl() {
	c.consume(lexer.TokenIdentifier, "expected function name")
	name := c.prev.Literal
	global := -1
	if c.current.scopeDepth == 0 {
		global = c.identifierConstant(name)
	} else {
		c.declareLocal(name)
		c.markInitialized()
	}
	c.function(funcTypeFunction, name)
	if global != -1 {
		c.emit(bytecode.OpDefineGlobal, global)
	}
}

func (c *Compiler) ifStmt() {
	c.consume(lexer.TokenLParen, "expected '(' after 'if'")
	c.expression()
	c.consume(lexer.TokenRParen, "expected ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStmt() {
	loopStart := len(c.current.blob.Code)
	c.consume(lexer.TokenLParen, "expected '(' after 'while'")
	c.expression()
	c.consume(lexer.TokenRParen, "expected ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)

	lc := &loopCtx{continueTarget: loopStart, localsCountAtEntry: len(c.current.locals), tryDepthAtEntry: c.current.tryDepth}
	c.current.loops = append(c.current.loops, lc)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
	c.finishLoop(lc)
}

// doWhileStmt: `do { body } while (cond);`. continue must jump to the
// condition check, which is textually parsed after the body, so continue
// sites are recorded as forward jumps and patched once the condition's
// bytecode offset is known.
func (c *Compiler) doWhileStmt() {
	bodyStart := len(c.current.blob.Code)
	lc := &loopCtx{continueTarget: -1, localsCountAtEntry: len(c.current.locals), tryDepthAtEntry: c.current.tryDepth}
	c.current.loops = append(c.current.loops, lc)

	c.consume(lexer.TokenLBrace, "expected '{' after 'do'")
	c.beginScope()
	c.block()
	c.endScope()

	for _, j := range lc.continueJumps {
		c.patchJump(j)
	}

	c.consume(lexer.TokenWhile, "expected 'while' after 'do' block")
	c.consume(lexer.TokenLParen, "expected '(' after 'while'")
	c.expression()
	c.consume(lexer.TokenRParen, "expected ')' after condition")
	c.consume(lexer.TokenSemicolon, "expected ';' after do-while statement")

	// Truthy: OpJumpIfFalseOrPop pops the condition and falls through to
	// loop back to bodyStart. Falsy: it jumps here without popping, so an
	// explicit Pop is still needed to discard the condition on exit.
	exitJump := c.emitJump(bytecode.OpJumpIfFalseOrPop)
	c.emitLoop(bodyStart)
	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
	c.finishLoop(lc)
}

func (c *Compiler) loopStmt() {
	loopStart := len(c.current.blob.Code)
	lc := &loopCtx{continueTarget: loopStart, localsCountAtEntry: len(c.current.locals), tryDepthAtEntry: c.current.tryDepth}
	c.current.loops = append(c.current.loops, lc)
	c.statement()
	c.emitLoop(loopStart)
	c.finishLoop(lc)
}

func (c *Compiler) finishLoop(lc *loopCtx) {
	for _, j := range lc.breakJumps {
		c.patchJump(j)
	}
	c.current.loops = c.current.loops[:len(c.current.loops)-1]
}

// forStmt handles both the numeric C-style for and the `for x in expr`
// iterator form (spec §4.D), which it distinguishes by looking one token
// past an initial identifier for the contextual "in" keyword — "in" is
// deliberately not a reserved word, so ordinary identifiers named `in`
// never arise as loop variables in idiomatic Blade code. Parentheses around
// the clauses are optional for the iterator form and required for the
// C-style form.
func (c *Compiler) forStmt() {
	c.beginScope()
	hasParen := c.match(lexer.TokenLParen)

	if !c.check(lexer.TokenSemicolon) {
		hasVar := c.match(lexer.TokenVar)
		if c.check(lexer.TokenIdentifier) {
			name := c.cur.Literal
			save := c.cur
			c.advance() // consume the identifier
			if c.check(lexer.TokenIdentifier) && c.cur.Literal == "in" {
				c.advance() // consume 'in'
				c.forIn(name, hasVar)
				if hasParen {
					c.consume(lexer.TokenRParen, "expected ')' after for-in clause")
				}
				c.statement()
				c.endScope()
				return
			}
			c.forInit(name, hasVar, save.Line)
			c.consume(lexer.TokenSemicolon, "expected ';' after loop initializer")
		} else {
			c.error("expected loop variable name")
		}
	} else {
		c.advance()
	}
	if !hasParen {
		c.error("expected '(' after 'for'")
	}

	loopStart := len(c.current.blob.Code)
	exitJump := -1
	if !c.check(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "expected ';' after loop condition")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	} else {
		c.advance()
	}

	if !c.check(lexer.TokenRParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrStart := len(c.current.blob.Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.TokenRParen, "expected ')' after for clauses")
		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	} else {
		c.advance()
	}

	lc := &loopCtx{continueTarget: loopStart, localsCountAtEntry: len(c.current.locals), tryDepthAtEntry: c.current.tryDepth}
	c.current.loops = append(c.current.loops, lc)
	c.statement()
	c.emitLoop(loopStart)
	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.finishLoop(lc)
	c.endScope()
}

// forInit compiles the already-consumed loop variable as either a fresh
// local declaration (`var i = ...`) or an assignment to an existing
// variable (`i = ...`), leaving no value on the stack afterward.
func (c *Compiler) forInit(name string, hasVar bool, line int) {
	if hasVar {
		c.declareLocal(name)
		if c.match(lexer.TokenAssign) {
			c.expression()
		} else {
			c.emitOp(bytecode.OpNil)
		}
		c.markInitialized()
		return
	}
	c.consume(lexer.TokenAssign, "expected '=' in for initializer")
	c.expression()
	c.storeNamed(name)
	c.emitOp(bytecode.OpPop)
}

// storeNamed emits the Set* opcode for name (local/upvalue/global),
// leaving the stored value on the stack per the Set* calling convention.
func (c *Compiler) storeNamed(name string) {
	if local := c.resolveLocal(c.current, name); local != -1 {
		c.emit(bytecode.OpSetLocal, local)
	} else if up := c.resolveUpvalue(c.current, name); up != -1 {
		c.emit(bytecode.OpSetUpvalue, up)
	} else {
		c.emit(bytecode.OpSetGlobal, c.identifierConstant(name))
	}
}

// forIn desugars `for x in expr { body }` into a hidden iterator-object
// local and a hidden key local driven by the ITER/ITERN opcodes, per
// spec §4.D/§4.F: `_key = _it.@itern(_key)` advances, `nil` signals done,
// `_it.@iter(_key)` fetches the element bound to the user's loop variable.
func (c *Compiler) forIn(varName string, _ bool) {
	c.expression() // the iterable
	c.declareLocal("@for_it")
	c.markInitialized()
	itSlot := len(c.current.locals) - 1

	c.emitOp(bytecode.OpNil)
	c.declareLocal("@for_key")
	c.markInitialized()
	keySlot := len(c.current.locals) - 1

	c.declareLocal(varName)
	c.markInitialized()
	varSlot := len(c.current.locals) - 1
	c.emitOp(bytecode.OpNil) // slot for the user's loop variable, set each iteration

	loopStart := len(c.current.blob.Code)
	c.emit(bytecode.OpGetLocal, itSlot)
	c.emit(bytecode.OpGetLocal, keySlot)
	c.emitOp(bytecode.OpIterN)
	c.emit(bytecode.OpSetLocal, keySlot) // leaves nextKey on stack
	c.emitOp(bytecode.OpNil)
	c.emitOp(bytecode.OpEq)  // -> nextKey == nil
	c.emitOp(bytecode.OpNot) // -> nextKey != nil ("not done yet")
	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop) // not-done path: discard the marker, enter body

	c.emit(bytecode.OpGetLocal, itSlot)
	c.emit(bytecode.OpGetLocal, keySlot)
	c.emitOp(bytecode.OpIter)
	c.emit(bytecode.OpSetLocal, varSlot)
	c.emitOp(bytecode.OpPop)

	lc := &loopCtx{continueTarget: loopStart, localsCountAtEntry: len(c.current.locals), tryDepthAtEntry: c.current.tryDepth}
	c.current.loops = append(c.current.loops, lc)
	c.statement()
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop) // done path: discard the marker
	c.finishLoop(lc)
}

func (c *Compiler) breakStmt() {
	if len(c.current.loops) == 0 {
		c.error("'break' outside of a loop")
		c.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
		return
	}
	lc := c.current.loops[len(c.current.loops)-1]
	c.unwindLocals(lc.localsCountAtEntry)
	c.emitFinallyExit(lc)
	j := c.emitJump(bytecode.OpJump)
	lc.breakJumps = append(lc.breakJumps, j)
	c.consume(lexer.TokenSemicolon, "expected ';' after 'break'")
}

func (c *Compiler) continueStmt() {
	if len(c.current.loops) == 0 {
		c.error("'continue' outside of a loop")
		c.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
		return
	}
	lc := c.current.loops[len(c.current.loops)-1]
	c.unwindLocals(lc.localsCountAtEntry)
	c.emitFinallyExit(lc)
	if lc.continueTarget >= 0 {
		c.emitLoop(lc.continueTarget)
	} else {
		j := c.emitJump(bytecode.OpJump)
		lc.continueJumps = append(lc.continueJumps, j)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after 'continue'")
}

// emitFinallyExit emits OpExitFinally ahead of a break/continue's own
// jump when that jump crosses out of one or more try statements entered
// since lc's loop began, so their finally blocks run before control
// actually leaves the loop (spec §8 property 6). A break/continue that
// never entered a try after the loop started needs no diversion.
func (c *Compiler) emitFinallyExit(lc *loopCtx) {
	depth := c.current.tryDepth - lc.tryDepthAtEntry
	if depth <= 0 {
		return
	}
	c.emit(bytecode.OpExitFinally, depth)
}

// unwindLocals emits the same Pop/CloseUpvalue cleanup endScope does, for
// locals declared after a loop's entry, without mutating c.current.locals
// (the jump leaves the loop but the surrounding scope stack is intact —
// the compiler itself is not unwinding, only the bytecode it emits).
func (c *Compiler) unwindLocals(downTo int) {
	for i := len(c.current.locals) - 1; i >= downTo; i-- {
		if c.current.locals[i].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
	}
}

func (c *Compiler) returnStmt() {
	if c.current.kind == funcTypeScript {
		c.error("cannot 'return' from top-level code")
	}
	if c.match(lexer.TokenSemicolon) {
		if c.current.kind == funcTypeInitializer {
			c.emit(bytecode.OpGetLocal, 0)
		} else {
			c.emitOp(bytecode.OpNil)
		}
		c.emitOp(bytecode.OpReturn)
		return
	}
	if c.current.kind == funcTypeInitializer {
		c.error("cannot return a value from an initializer")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after return value")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) raiseStmt() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after 'raise' value")
	c.emitOp(bytecode.OpRaise)
}

// tryStmt emits OpTry with a packed (catchOffset, finallyOffset) operand
// describing a handler the VM pushes onto its per-frame handler stack,
// followed immediately by OpTryFilter naming the catch clause's class
// filter (patched once the catch header, parsed after the try body, is
// known — -1 if the catch is unfiltered or absent). The catch grammar is
// `catch Name as e { ... }` (filtered, bound), `catch as e { ... }` or
// `catch e { ... }` (unfiltered, bound), or `catch { ... }` (unfiltered,
// unbound) — spec §4.D: "transferring control to the catch if the raised
// value matches the declared class (or no filter is given)."
//
// Early exits (return/break/continue/raise) encountered while the handler
// is active are resolved at the VM level by running the finally block
// before completing the pending action — see pkg/vm's handler-stack
// design note — so the compiler never needs to duplicate the finally
// block's source at each exit site.
func (c *Compiler) tryStmt() {
	tryIdx := c.emitJump(bytecode.OpTry)
	filterIdx := c.emit(bytecode.OpTryFilter, -1)

	c.current.tryDepth++

	c.consume(lexer.TokenLBrace, "expected '{' after 'try'")
	c.beginScope()
	c.block()
	c.endScope()

	jumpPastCatch := c.emitJump(bytecode.OpJump)
	catchOffset := len(c.current.blob.Code)

	filterConst := -1
	if c.match(lexer.TokenCatch) {
		c.beginScope()
		switch {
		case c.check(lexer.TokenLBrace):
			// catch { ... }: unfiltered, no bound variable. The raised
			// value is still pushed by the VM's handler dispatch, so
			// discard it.
			c.declareLocal("@caught")
			c.markInitialized()
		case c.match(lexer.TokenAs):
			// catch as e { ... }: unfiltered, bound.
			c.consume(lexer.TokenIdentifier, "expected exception variable name after 'as'")
			c.declareLocal(c.prev.Literal)
			c.markInitialized()
		default:
			c.consume(lexer.TokenIdentifier, "expected exception class or variable name after 'catch'")
			name := c.prev.Literal
			if c.match(lexer.TokenAs) {
				// catch Name as e { ... }: filtered, bound.
				filterConst = c.identifierConstant(name)
				c.consume(lexer.TokenIdentifier, "expected exception variable name after 'as'")
				c.declareLocal(c.prev.Literal)
				c.markInitialized()
			} else {
				// catch e { ... }: unfiltered, bound.
				c.declareLocal(name)
				c.markInitialized()
			}
		}
		c.consume(lexer.TokenLBrace, "expected '{' after 'catch'")
		c.block()
		c.endScope()
	} else {
		catchOffset = -1
	}

	c.current.tryDepth--

	c.patchJump(jumpPastCatch)
	finallyOffset := -1
	if c.match(lexer.TokenFinally) {
		finallyOffset = len(c.current.blob.Code)
		c.consume(lexer.TokenLBrace, "expected '{' after 'finally'")
		c.beginScope()
		c.block()
		c.endScope()
	}

	c.emitOp(bytecode.OpEndTry)

	relCatch, relFinally := -1, -1
	if catchOffset != -1 {
		relCatch = catchOffset - tryIdx
	}
	if finallyOffset != -1 {
		relFinally = finallyOffset - tryIdx
	}
	c.current.blob.Patch(tryIdx, bytecode.PackJumpPair(relCatch, relFinally))
	c.current.blob.Patch(filterIdx, filterConst)
}

// echoStmt desugars to a call of the `print` global the runtime always
// defines (spec's ISA has no dedicated opcode for it), matching how
// `import` below is sugar over a hidden loader global rather than its
// own opcode.
func (c *Compiler) echoStmt() {
	c.emit(bytecode.OpGetGlobal, c.identifierConstant("print"))
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after 'echo' expression")
	c.emit(bytecode.OpCall, 1)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) exprStmt() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "expected ';' after expression")
	c.emitOp(bytecode.OpPop)
}

// importDecl compiles `import path.to.module [as alias];` into a call of
// the hidden `__import__` global with the dotted module path as a string
// constant; resolution (BLADE_PATH search, native registry, caching) is entirely
// the runtime's job (pkg/module).
func (c *Compiler) importDecl() {
	path := c.consumeModulePath()
	alias := ""
	if c.match(lexer.TokenAs) {
		c.consume(lexer.TokenIdentifier, "expected alias name after 'as'")
		alias = c.prev.Literal
	} else {
		alias = lastPathSegment(path)
	}
	c.consume(lexer.TokenSemicolon, "expected ';' after import")

	// No dedicated IMPORT opcode exists in the ISA; resolution (BLADE_PATH
	// search, native registry lookup, cache) is sugar over a hidden
	// `__import__` global the VM always defines, matching how `echo`
	// above is sugar over `print` rather than its own opcode.
	c.emit(bytecode.OpGetGlobal, c.identifierConstant("__import__"))
	idx := c.makeConstant(value.ObjectValue(c.interner.InternString(path)))
	c.emit(bytecode.OpConst, idx)
	c.emit(bytecode.OpCall, 1)

	if c.current.scopeDepth == 0 {
		c.emit(bytecode.OpDefineGlobal, c.identifierConstant(alias))
	} else {
		c.declareLocal(alias)
		c.markInitialized()
	}
}

func (c *Compiler) consumeModulePath() string {
	c.consume(lexer.TokenIdentifier, "expected module path after 'import'")
	path := c.prev.Literal
	for c.match(lexer.TokenDot) {
		c.consume(lexer.TokenIdentifier, "expected identifier after '.' in module path")
		path += "." + c.prev.Literal
	}
	return path
}

func lastPathSegment(path string) string {
	last := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			last = path[i+1:]
			break
		}
	}
	return last
}
