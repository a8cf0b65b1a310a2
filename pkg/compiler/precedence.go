package compiler

import (
	"strconv"
	"strings"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/lexer"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

type precedence int

const (
	precNone precedence = iota
	precAssignment        // =, +=, -=, ...
	precNullCoalesce      // ??
	precOr                // or
	precAnd               // and
	precEquality          // == !=
	precComparison        // < > <= >=
	precBitOr             // |
	precBitXor            // ^
	precBitAnd            // &
	precShift             // << >> >>>
	precRange             // ..
	precTerm              // + -
	precFactor            // * / %
	precUnary             // ! - ~
	precPower             // **
	precCall              // . () []
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLParen:   {prefix: grouping, infix: call, prec: precCall},
		lexer.TokenLBracket: {prefix: listLiteral, infix: index, prec: precCall},
		lexer.TokenLBrace:   {prefix: dictLiteral},
		lexer.TokenDot:      {infix: dotAccess, prec: precCall},
		lexer.TokenMinus:    {prefix: unary, infix: binary, prec: precTerm},
		lexer.TokenPlus:     {infix: binary, prec: precTerm},
		lexer.TokenSlash:    {infix: binary, prec: precFactor},
		lexer.TokenStar:     {infix: binary, prec: precFactor},
		lexer.TokenPercent:  {infix: binary, prec: precFactor},
		lexer.TokenStarStar: {infix: binaryRight, prec: precPower},
		lexer.TokenBang:     {prefix: unary},
		lexer.TokenTilde:    {prefix: unary},
		lexer.TokenAmp:      {infix: binary, prec: precBitAnd},
		lexer.TokenPipe:     {prefix: lambdaLiteral, infix: binary, prec: precBitOr},
		lexer.TokenCaret:    {infix: binary, prec: precBitXor},
		lexer.TokenShl:      {infix: binary, prec: precShift},
		lexer.TokenShr:      {infix: binary, prec: precShift},
		lexer.TokenUShr:     {infix: binary, prec: precShift},
		lexer.TokenRange:    {infix: rangeExpr, prec: precRange},
		lexer.TokenNotEq:    {infix: binary, prec: precEquality},
		lexer.TokenEqEq:     {infix: binary, prec: precEquality},
		lexer.TokenGreater:  {infix: binary, prec: precComparison},
		lexer.TokenGreaterEq: {infix: binary, prec: precComparison},
		lexer.TokenLess:     {infix: binary, prec: precComparison},
		lexer.TokenLessEq:   {infix: binary, prec: precComparison},
		lexer.TokenQuestionQuestion: {infix: nullCoalesce, prec: precNullCoalesce},
		lexer.TokenAnd:      {infix: and_, prec: precAnd},
		lexer.TokenOr:       {infix: or_, prec: precOr},
		lexer.TokenIdentifier: {prefix: variable},
		lexer.TokenSelf:     {prefix: selfExpr},
		lexer.TokenParent:   {prefix: parentExpr},
		lexer.TokenString:        {prefix: stringLit},
		lexer.TokenRawString:     {prefix: stringLit},
		lexer.TokenByteString:    {prefix: byteStringLit},
		lexer.TokenInterpStart:   {prefix: interpolatedString},
		lexer.TokenInt:    {prefix: numberLit},
		lexer.TokenHexInt: {prefix: numberLit},
		lexer.TokenBinInt: {prefix: numberLit},
		lexer.TokenOctInt: {prefix: numberLit},
		lexer.TokenFloat:  {prefix: numberLit},
		lexer.TokenTrue:   {prefix: literalConst},
		lexer.TokenFalse:  {prefix: literalConst},
		lexer.TokenNil:    {prefix: literalConst},
		lexer.TokenNew:    {prefix: newExpr},
	}
}

func getRule(tt lexer.TokenType) parseRule {
	if r, ok := rules[tt]; ok {
		return r
	}
	return parseRule{}
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := getRule(c.prev.Type)
	if rule.prefix == nil {
		c.error("expected an expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= getRule(c.cur.Type).prec {
		c.advance()
		infix := getRule(c.prev.Type).infix
		if infix == nil {
			c.error("unexpected token in expression")
			return
		}
		infix(c, canAssign)
	}

	if canAssign && (c.check(lexer.TokenAssign) || isCompoundAssign(c.cur.Type)) {
		c.error("invalid assignment target")
		c.advance()
		c.expression()
	}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func isCompoundAssign(tt lexer.TokenType) bool {
	switch tt {
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq,
		lexer.TokenPercentEq, lexer.TokenAmpEq, lexer.TokenPipeEq, lexer.TokenCaretEq,
		lexer.TokenShlEq, lexer.TokenShrEq:
		return true
	}
	return false
}

// compoundOp maps a compound-assignment token to the arithmetic opcode it
// desugars through (`x += 1` compiles as `x = x + 1`).
func compoundOp(tt lexer.TokenType) bytecode.Opcode {
	switch tt {
	case lexer.TokenPlusEq:
		return bytecode.OpAdd
	case lexer.TokenMinusEq:
		return bytecode.OpSub
	case lexer.TokenStarEq:
		return bytecode.OpMul
	case lexer.TokenSlashEq:
		return bytecode.OpDiv
	case lexer.TokenPercentEq:
		return bytecode.OpMod
	case lexer.TokenAmpEq:
		return bytecode.OpBitAnd
	case lexer.TokenPipeEq:
		return bytecode.OpBitOr
	case lexer.TokenCaretEq:
		return bytecode.OpBitXor
	case lexer.TokenShlEq:
		return bytecode.OpShl
	case lexer.TokenShrEq:
		return bytecode.OpShr
	}
	return 0
}

// --- literals ----------------------------------------------------------------

func numberLit(c *Compiler, _ bool) {
	lit := c.prev.Literal
	var n float64
	switch c.prev.Type {
	case lexer.TokenHexInt:
		iv, _ := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(lit), "0x"), 16, 64)
		n = float64(iv)
	case lexer.TokenBinInt:
		iv, _ := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(lit), "0b"), 2, 64)
		n = float64(iv)
	case lexer.TokenOctInt:
		iv, _ := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(lit), "0c"), 8, 64)
		n = float64(iv)
	default:
		n, _ = strconv.ParseFloat(lit, 64)
	}
	c.numberConstant(n)
}

func stringLit(c *Compiler, _ bool) {
	idx := c.makeConstant(value.ObjectValue(c.interner.InternString(c.prev.Literal)))
	c.emit(bytecode.OpConst, idx)
}

func byteStringLit(c *Compiler, _ bool) {
	// A byte string literal is constant data: build the Bytes object once,
	// at compile time, and push it straight out of the constant pool. The
	// object is not registered with the collector; the constant pool keeps
	// it alive for as long as the Blob exists.
	idx := c.makeConstant(value.ObjectValue(&object.Bytes{Data: []byte(c.prev.Literal)}))
	c.emit(bytecode.OpConst, idx)
}

// interpolatedString compiles 'a${b}c${d}e' as a left-to-right chain of
// string concatenations: push first chunk, then for each embedded
// expression compile it, convert with @to_string via OpAdd's string
// coercion, concatenate, repeat, finally append the trailing chunk.
func interpolatedString(c *Compiler, _ bool) {
	idx := c.makeConstant(value.ObjectValue(c.interner.InternString(c.prev.Literal)))
	c.emit(bytecode.OpConst, idx)
	for {
		c.expression()
		c.emitOp(bytecode.OpAdd)
		switch c.cur.Type {
		case lexer.TokenInterpMid:
			c.advance()
			idx := c.makeConstant(value.ObjectValue(c.interner.InternString(c.prev.Literal)))
			c.emit(bytecode.OpConst, idx)
			c.emitOp(bytecode.OpAdd)
			continue
		case lexer.TokenInterpEnd:
			c.advance()
			idx := c.makeConstant(value.ObjectValue(c.interner.InternString(c.prev.Literal)))
			c.emit(bytecode.OpConst, idx)
			c.emitOp(bytecode.OpAdd)
			return
		default:
			c.errorAtCurrent("unterminated string interpolation")
			return
		}
	}
}

func literalConst(c *Compiler, _ bool) {
	switch c.prev.Type {
	case lexer.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	case lexer.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		c.emitOp(bytecode.OpNil)
	}
}

// --- unary / binary ------------------------------------------------------

func unary(c *Compiler, _ bool) {
	op := c.prev.Type
	c.parsePrecedence(precUnary)
	switch op {
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNeg)
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot)
	case lexer.TokenTilde:
		c.emitOp(bytecode.OpBitNot)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.prev.Type
	rule := getRule(op)
	c.parsePrecedence(rule.prec + 1)
	emitBinaryOp(c, op)
}

// binaryRight handles `**`, which is right-associative: parse the RHS at
// the same precedence rather than prec+1.
func binaryRight(c *Compiler, _ bool) {
	c.parsePrecedence(precPower)
	c.emitOp(bytecode.OpPow)
}

func emitBinaryOp(c *Compiler, op lexer.TokenType) {
	switch op {
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSub)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMul)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDiv)
	case lexer.TokenPercent:
		c.emitOp(bytecode.OpMod)
	case lexer.TokenAmp:
		c.emitOp(bytecode.OpBitAnd)
	case lexer.TokenPipe:
		c.emitOp(bytecode.OpBitOr)
	case lexer.TokenCaret:
		c.emitOp(bytecode.OpBitXor)
	case lexer.TokenShl:
		c.emitOp(bytecode.OpShl)
	case lexer.TokenShr:
		c.emitOp(bytecode.OpShr)
	case lexer.TokenUShr:
		c.emitOp(bytecode.OpUShr)
	case lexer.TokenEqEq:
		c.emitOp(bytecode.OpEq)
	case lexer.TokenNotEq:
		c.emitOp(bytecode.OpEq)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGt)
	case lexer.TokenGreaterEq:
		c.emitOp(bytecode.OpGe)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLt)
	case lexer.TokenLessEq:
		c.emitOp(bytecode.OpLe)
	}
}

func rangeExpr(c *Compiler, _ bool) {
	c.parsePrecedence(precRange + 1)
	c.emitOp(bytecode.OpRange)
}

// and_/or_ short-circuit: OpJumpIfFalseOrPop leaves the falsy operand on
// the stack without evaluating the right side at all.
func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalseOrPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

// nullCoalesce: `a ?? b` evaluates to a if a is not nil, else b. Unlike
// and/or this tests "is nil", not truthiness, so 0/false/"" must not fall
// through to b: dup the LHS, compare it to nil, and branch on that.
func nullCoalesce(c *Compiler, _ bool) {
	c.emitOp(bytecode.OpDup)
	c.emitOp(bytecode.OpNil)
	c.emitOp(bytecode.OpEq)
	// JumpIfFalse leaves the comparison result on the stack, so each path
	// pops it. On "not nil" it jumps straight to notNil, which leaves a on
	// the stack and skips b's evaluation entirely — b is only ever
	// compiled (and run) once.
	notNilJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop) // the comparison result
	c.emitOp(bytecode.OpPop) // a was nil: discard it
	c.parsePrecedence(precNullCoalesce)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(notNilJump)
	c.emitOp(bytecode.OpPop) // the comparison result
	c.patchJump(endJump)
}
