package compiler

import (
	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/lexer"
)

// classDecl compiles `class Name [< Super] { members }` per spec §4.D/F.
// The class value is bound to its name *before* the body compiles (so
// methods can recursively reference their own class), then re-fetched and
// kept on the stack for the whole body so each member statement can
// target it directly with FIELD/STATIC_FIELD/METHOD.
func (c *Compiler) classDecl() {
	c.consume(lexer.TokenIdentifier, "expected class name")
	name := c.prev.Literal
	nameIdx := c.identifierConstant(name)

	global := -1
	if c.current.scopeDepth == 0 {
		global = nameIdx
	} else {
		c.declareLocal(name)
	}

	c.emit(bytecode.OpClass, nameIdx)
	if global != -1 {
		c.emit(bytecode.OpDefineGlobal, global)
	} else {
		c.markInitialized()
	}

	cc := &classCtx{enclosing: c.currentClass, name: name}
	c.currentClass = cc

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "expected superclass name")
		superName := c.prev.Literal
		if superName == name {
			c.error("a class cannot inherit from itself")
		}
		namedVariable(c, name, false)
		namedVariable(c, superName, false)
		c.emitOp(bytecode.OpInherit) // pops (class, superclass); links them in place
		cc.hasSuperclass = true
	}

	namedVariable(c, name, false) // kept on the stack for the whole body below
	c.consume(lexer.TokenLBrace, "expected '{' before class body")
	for !c.check(lexer.TokenRBrace) && !c.check(lexer.TokenEOF) {
		c.classMember(name)
	}
	c.consume(lexer.TokenRBrace, "expected '}' after class body")
	c.emitOp(bytecode.OpPop) // discard the class value kept for member compiling

	c.currentClass = cc.enclosing
}

// classMember compiles one field/method declaration inside a class body.
// A method named identically to its class becomes the constructor,
// internally renamed to "@new" (spec §4.D: "Constructors are methods
// named @new"); `@name` directly names an operator-overload hook.
func (c *Compiler) classMember(className string) {
	isStatic := c.match(lexer.TokenStatic)

	if c.match(lexer.TokenVar) {
		c.consume(lexer.TokenIdentifier, "expected field name")
		fname := c.prev.Literal
		nameIdx := c.identifierConstant(fname)
		if c.match(lexer.TokenAssign) {
			c.expression()
		} else {
			c.emitOp(bytecode.OpNil)
		}
		c.consume(lexer.TokenSemicolon, "expected ';' after field declaration")
		if isStatic {
			c.emit(bytecode.OpStaticField, nameIdx)
		} else {
			c.emit(bytecode.OpField, nameIdx)
		}
		return
	}

	prefix := ""
	if c.match(lexer.TokenAt) {
		prefix = "@"
	}
	c.consume(lexer.TokenIdentifier, "expected method name")
	mname := prefix + c.prev.Literal
	kind := funcTypeMethod
	if !isStatic && prefix == "" && mname == className {
		mname = "@new"
		kind = funcTypeInitializer
	}
	nameIdx := c.identifierConstant(mname)
	c.function(kind, mname) // leaves the compiled closure on the stack

	// Static methods are just callables stored in the class's static
	// table alongside static fields — both are "a name bound to a value
	// on the class object", so they share STATIC_FIELD rather than
	// needing a dedicated opcode.
	if isStatic {
		c.emit(bytecode.OpStaticField, nameIdx)
	} else {
		c.emit(bytecode.OpMethod, nameIdx)
	}
}
