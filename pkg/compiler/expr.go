package compiler

import (
	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/lexer"
)

// variable compiles a bare identifier, resolving it local -> upvalue ->
// global (spec §4.D's declared resolution order) and handling plain and
// compound assignment when canAssign permits it.
func variable(c *Compiler, canAssign bool) {
	namedVariable(c, c.prev.Literal, canAssign)
}

func namedVariable(c *Compiler, name string, canAssign bool) {
	var getOp, setOp bytecode.Opcode
	var arg int
	if local := c.resolveLocal(c.current, name); local != -1 {
		arg, getOp, setOp = local, bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if up := c.resolveUpvalue(c.current, name); up != -1 {
		arg, getOp, setOp = up, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg, getOp, setOp = c.identifierConstant(name), bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	switch {
	case canAssign && c.match(lexer.TokenAssign):
		c.expression()
		c.emit(setOp, arg)
	case canAssign && isCompoundAssign(c.cur.Type):
		opTok := c.cur.Type
		c.advance()
		c.emit(getOp, arg)
		c.expression()
		c.emitOp(compoundOp(opTok))
		c.emit(setOp, arg)
	default:
		c.emit(getOp, arg)
	}
}

func selfExpr(c *Compiler, _ bool) {
	if c.currentClass == nil {
		c.error("cannot use 'self' outside of a method")
	}
	c.emit(bytecode.OpGetLocal, 0)
}

// parentExpr compiles `parent.method(args)` directly to SUPER_INVOKE,
// which the VM resolves against the enclosing class's superclass method
// table rather than the runtime type of `self` (spec §4.F).
func parentExpr(c *Compiler, _ bool) {
	if c.currentClass == nil {
		c.error("cannot use 'parent' outside of a method")
	} else if !c.currentClass.hasSuperclass {
		c.error("class has no superclass")
	}
	c.consume(lexer.TokenDot, "expected '.' after 'parent'")
	c.consume(lexer.TokenIdentifier, "expected superclass member name after 'parent.'")
	nameIdx := c.identifierConstant(c.prev.Literal)
	c.emit(bytecode.OpGetLocal, 0) // self, the receiver for the super-bound call
	argc := 0
	if c.match(lexer.TokenLParen) {
		argc = c.argumentList()
	}
	c.emit(bytecode.OpSuperInvoke, bytecode.PackIndexArgc(nameIdx, argc))
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(lexer.TokenRParen, "expected ')' after expression")
}

func call(c *Compiler, _ bool) {
	argc := c.argumentList()
	c.emit(bytecode.OpCall, argc)
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(lexer.TokenRParen) {
		for {
			c.expression()
			argc++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRParen, "expected ')' after arguments")
	return argc
}

// index compiles `recv[expr]`, and `recv[expr] = value` when used as an
// assignment target. Compound index assignment (`a[i] += 1`) is not
// supported directly — spec gives containers no syntax for that beyond
// plain indexed get/set, so it is expressed as `a[i] = a[i] + 1` in
// source instead.
func index(c *Compiler, canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRBracket, "expected ']' after index expression")
	if canAssign && c.match(lexer.TokenAssign) {
		c.expression()
		c.emitOp(bytecode.OpSetIndex)
	} else {
		c.emitOp(bytecode.OpIndex)
	}
}

// dotAccess compiles property get/set/invoke. `recv.name(args)` is
// compiled as a single INVOKE rather than GET_PROPERTY+CALL, avoiding a
// bound-method allocation for the overwhelmingly common call case.
func dotAccess(c *Compiler, canAssign bool) {
	c.consume(lexer.TokenIdentifier, "expected property name after '.'")
	name := c.prev.Literal
	nameIdx := c.identifierConstant(name)

	switch {
	case canAssign && c.match(lexer.TokenAssign):
		c.expression()
		c.emit(bytecode.OpSetProperty, nameIdx)
	case c.match(lexer.TokenLParen):
		argc := c.argumentList()
		c.emit(bytecode.OpInvoke, bytecode.PackIndexArgc(nameIdx, argc))
	default:
		c.emit(bytecode.OpGetProperty, nameIdx)
	}
}

func listLiteral(c *Compiler, _ bool) {
	count := 0
	if !c.check(lexer.TokenRBracket) {
		for {
			c.expression()
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRBracket, "expected ']' after list elements")
	c.emit(bytecode.OpList, count)
}

func dictLiteral(c *Compiler, _ bool) {
	count := 0
	if !c.check(lexer.TokenRBrace) {
		for {
			c.expression()
			c.consume(lexer.TokenColon, "expected ':' after dict key")
			c.expression()
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRBrace, "expected '}' after dict entries")
	c.emit(bytecode.OpDict, count)
}

// newExpr: `new ClassName(args)` is sugar for calling the class value
// directly (construction is just what CALL does when the callee is a
// Class, per spec's call protocol) — `new` exists only to read naturally
// at call sites.
func newExpr(c *Compiler, _ bool) {
	c.consume(lexer.TokenIdentifier, "expected class name after 'new'")
	namedVariable(c, c.prev.Literal, false)
	argc := 0
	if c.match(lexer.TokenLParen) {
		argc = c.argumentList()
	}
	c.emit(bytecode.OpCall, argc)
}

// lambdaLiteral compiles a `|params| { body }` block/closure literal.
// The leading '|' is already consumed (it is the prefix-rule trigger
// token); an immediate second '|' means a zero-parameter block (`||
// {...}`).
func lambdaLiteral(c *Compiler, _ bool) {
	c.pushFunc(funcTypeFunction, "<block>")
	c.beginScope()

	arity := 0
	if !c.check(lexer.TokenPipe) {
		for {
			variadic := c.match(lexer.TokenEllipsis)
			c.consume(lexer.TokenIdentifier, "expected block parameter name")
			c.declareLocal(c.prev.Literal)
			c.markInitialized()
			arity++
			if variadic {
				c.current.blob.IsVariadic = true
				break
			}
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenPipe, "expected closing '|' after block parameters")
	c.current.blob.Arity = arity

	c.consume(lexer.TokenLBrace, "expected '{' to start block body")
	c.block()
	blob := c.endFunc()
	c.emitClosure(blob)
}

// function compiles `(params) { body }` for a def/method declaration,
// leaving the resulting closure on the stack. kind selects the few
// behaviors that differ for methods/initializers (self binding, implicit
// return value).
func (c *Compiler) function(kind funcType, name string) {
	c.pushFunc(kind, name)
	c.beginScope()

	c.consume(lexer.TokenLParen, "expected '(' after function name")
	arity := 0
	if !c.check(lexer.TokenRParen) {
		for {
			variadic := c.match(lexer.TokenEllipsis)
			c.consume(lexer.TokenIdentifier, "expected parameter name")
			c.declareLocal(c.prev.Literal)
			c.markInitialized()
			arity++
			if variadic {
				c.current.blob.IsVariadic = true
				break
			}
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRParen, "expected ')' after parameters")
	c.current.blob.Arity = arity

	c.consume(lexer.TokenLBrace, "expected '{' before function body")
	c.block()
	blob := c.endFunc()
	c.emitClosure(blob)
}

// emitClosure registers blob as a nested function prototype and emits
// CLOSURE. Unlike the classic Pratt-VM idiom of trailing the opcode with
// one (is_local, index) pair per upvalue, Blade's Blob already carries its
// own Upvalues descriptor slice (see bytecode.Blob), so the VM reads
// capture instructions straight from the indexed prototype instead of
// from inline operands.
func (c *Compiler) emitClosure(blob *bytecode.Blob) {
	idx := c.current.blob.AddFunction(blob)
	c.emit(bytecode.OpClosure, idx)
}
