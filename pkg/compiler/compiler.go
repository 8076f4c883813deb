// Package compiler implements the single-pass Pratt/precedence-climbing
// compiler: it parses source text and simultaneously resolves lexical
// scope (locals, upvalues, globals), tracks class/`this`/`super` context,
// and emits bytecode directly into the function under construction's
// chunk — no separate AST pass. Handles classes, closures, upvalues,
// `let`, `switch`, and natives.
package compiler

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/kristofer/vela/pkg/chunk"
	"github.com/kristofer/vela/pkg/lexer"
	"github.com/kristofer/vela/pkg/table"
	"github.com/kristofer/vela/pkg/value"
)

// ErrCompile is returned by Compile when one or more compile-time errors
// were reported; the errors themselves have already been printed to the
// compiler's output in the "[line N] Error at '<lexeme>': <message>"
// format the core specification requires.
var ErrCompile = errors.New("compile error")

const maxLocals = 256

type funcType int

const (
	typeFunction funcType = iota
	typeInitializer
	typeMethod
	typeScript
)

type local struct {
	name       string
	depth      int // -1: declared but not yet initialized
	isCaptured bool
	readonly   bool
}

type upvalueInfo struct {
	index    int
	isLocal  bool
	readonly bool
}

type loopCtx struct {
	start      int
	scopeDepth int
}

// funcState is one frame of the compile-time function stack, linked via
// enclosing exactly like the original's nested Compiler structs.
type funcState struct {
	enclosing  *funcState
	function   *value.ObjFunction
	fnType     funcType
	locals     []local
	scopeDepth int
	upvalues   []upvalueInfo
	loops      []loopCtx
}

type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler parses one program or REPL line and emits its bytecode.
// Compile resets the parser state on every call, so one Compiler can
// compile several source units in turn (the REPL does this).
type Compiler struct {
	lx      *lexer.Lexer
	current lexer.Token
	prev    lexer.Token

	hadError  bool
	panicMode bool

	fs *funcState
	cs *classState

	// strings is the VM's shared intern table; the compiler interns
	// identifier and literal-string constants into it directly, since
	// constants and interned strings are allocated during compilation
	// and must already be deduplicated against whatever the VM later
	// allocates at runtime.
	strings *table.Table

	out io.Writer
}

// New creates a Compiler that interns strings into the given shared
// table (typically the VM's own intern table, so compile-time and
// run-time string allocation dedupe against each other).
func New(strings *table.Table) *Compiler {
	return &Compiler{strings: strings, out: os.Stderr}
}

// SetOutput redirects compile-error reporting; tests use this to capture
// the "[line N] Error..." text instead of letting it hit the real stderr.
func (c *Compiler) SetOutput(w io.Writer) { c.out = w }

// Compile parses source as a complete program and returns the implicit
// top-level function wrapping it. On any compile error, it returns
// ErrCompile and a nil function, having already printed every error
// (subject to panic-mode suppression) to the configured output.
func (c *Compiler) Compile(source string) (*value.ObjFunction, error) {
	c.lx = lexer.New(source)
	c.hadError = false
	c.panicMode = false
	c.cs = nil

	fn := &value.ObjFunction{Chunk: &value.Chunk{}}
	c.fs = &funcState{function: fn, fnType: typeScript}
	c.fs.locals = append(c.fs.locals, local{name: "", depth: 0})

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	c.emitReturn()

	if c.hadError {
		return nil, ErrCompile
	}
	return fn, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.lx.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	fmt.Fprintf(c.out, "[line %d] Error", tok.Line)
	switch tok.Type {
	case lexer.TokenEOF:
		fmt.Fprint(c.out, " at end")
	case lexer.TokenError:
		// lexeme already carries its own description; print nothing extra.
	default:
		fmt.Fprintf(c.out, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(c.out, ": %s\n", msg)
}

// synchronize leaves panic mode and skips tokens until a statement
// boundary, so one error does not cascade into a wall of spurious ones.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != lexer.TokenEOF {
		if c.prev.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenLet,
			lexer.TokenFor, lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint,
			lexer.TokenReturn, lexer.TokenSwitch:
			return
		}
		c.advance()
	}
}

// --- bytecode emission --------------------------------------------------

func (c *Compiler) currentChunk() *value.Chunk { return c.fs.function.Chunk }

func (c *Compiler) emitByte(b byte)        { c.currentChunk().WriteByte(b, c.prev.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) { c.currentChunk().WriteOp(op, c.prev.Line) }

func (c *Compiler) emitOpByte(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitOps(a, b chunk.OpCode) {
	c.emitOp(a)
	c.emitOp(b)
}

// emitConstOp picks the short (1-byte index) or long (2-byte index)
// opcode variant depending on how large idx is.
func (c *Compiler) emitConstOp(short, long chunk.OpCode, idx int) {
	if value.NeedsLongConstant(idx) {
		c.emitOp(long)
		c.emitByte(byte(idx >> 8))
		c.emitByte(byte(idx))
	} else {
		c.emitOpByte(short, byte(idx))
	}
}

// emitInvoke is emitConstOp plus a trailing argument-count byte, for the
// combined GetProp+Call opcodes.
func (c *Compiler) emitInvoke(short, long chunk.OpCode, idx int, argCount byte) {
	if value.NeedsLongConstant(idx) {
		c.emitOp(long)
		c.emitByte(byte(idx >> 8))
		c.emitByte(byte(idx))
	} else {
		c.emitOp(short)
		c.emitByte(byte(idx))
	}
	c.emitByte(argCount)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8 & 0xff))
	c.emitByte(byte(offset & 0xff))
}

func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	code := c.currentChunk().Code
	code[offset] = byte(jump >> 8 & 0xff)
	code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitReturn() {
	if c.fs.fnType == typeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) int {
	return c.currentChunk().AddConstant(v)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitConstOp(chunk.OpConstant, chunk.OpConstantLong, c.makeConstant(v))
}

// internString interns s into the shared string table, matching the
// content-addressed lookup-then-maybe-insert discipline every string
// allocation site in the VM follows.
func (c *Compiler) internString(s string) *value.ObjString {
	h := value.HashString(s)
	if c.strings != nil {
		if found := c.strings.FindString(s, h); found != nil {
			return found
		}
	}
	os := &value.ObjString{Chars: s, Hash: h, Owned: true}
	if c.strings != nil {
		c.strings.Set(os, value.Nil)
	}
	return os
}

// identifierConstant interns name and adds it to the current chunk's
// constant pool, always as a heap ObjString regardless of length: global
// names, field names, and method names must have stable identity to key
// the globals/method tables with, unlike ordinary short string literals.
func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(value.Object(c.internString(name)))
}

// --- scope & variable resolution ---------------------------------------

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		if c.fs.locals[len(c.fs.locals)-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

func (c *Compiler) addLocal(name string, readonly bool) {
	if len(c.fs.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1, readonly: readonly})
}

func (c *Compiler) declareVariable(readonly bool) {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.prev.Lexeme
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name, readonly)
}

func (c *Compiler) parseVariable(errMsg string, readonly bool) int {
	c.consume(lexer.TokenIdentifier, errMsg)
	c.declareVariable(readonly)
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev.Lexeme)
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *Compiler) defineVariable(global int) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitConstOp(chunk.OpDefineGlobal, chunk.OpDefineGlobalLong, global)
}

func (c *Compiler) resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) (int, bool, bool) {
	if fs.enclosing == nil {
		return -1, false, false
	}
	if idx, ok := c.resolveLocal(fs.enclosing, name); ok {
		fs.enclosing.locals[idx].isCaptured = true
		readonly := fs.enclosing.locals[idx].readonly
		return c.addUpvalue(fs, idx, true, readonly), readonly, true
	}
	if idx, readonly, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, idx, false, readonly), readonly, true
	}
	return -1, false, false
}

func (c *Compiler) addUpvalue(fs *funcState, index int, isLocal, readonly bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) == 255 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueInfo{index: index, isLocal: isLocal, readonly: readonly})
	return len(fs.upvalues) - 1
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	if idx, ok := c.resolveLocal(c.fs, name); ok {
		if c.fs.locals[idx].depth == -1 {
			c.error("Can't read local variable in its own initializer.")
		}
		readonly := c.fs.locals[idx].readonly
		if canAssign && c.match(lexer.TokenEqual) {
			if readonly {
				c.error("Cannot assign to a read-only variable.")
			}
			c.expression()
			c.emitOpByte(chunk.OpSetLocal, byte(idx))
		} else {
			c.emitOpByte(chunk.OpGetLocal, byte(idx))
		}
		return
	}

	if idx, readonly, ok := c.resolveUpvalue(c.fs, name); ok {
		if canAssign && c.match(lexer.TokenEqual) {
			if readonly {
				c.error("Cannot assign to a read-only variable.")
			}
			c.expression()
			c.emitOpByte(chunk.OpSetUpvalue, byte(idx))
		} else {
			c.emitOpByte(chunk.OpGetUpvalue, byte(idx))
		}
		return
	}

	arg := c.identifierConstant(name)
	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitConstOp(chunk.OpSetGlobal, chunk.OpSetGlobalLong, arg)
	} else {
		c.emitConstOp(chunk.OpGetGlobal, chunk.OpGetGlobalLong, arg)
	}
}

// --- expressions ---------------------------------------------------------

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.prev.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.prev.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

func (c *Compiler) number(_ bool) {
	n, err := strconv.ParseFloat(c.prev.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringLiteral(_ bool) {
	raw := c.prev.Lexeme
	s := raw[1 : len(raw)-1]
	c.emitConstant(value.String(s))
}

func (c *Compiler) literal(_ bool) {
	switch c.prev.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	opType := c.prev.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) binary(_ bool) {
	opType := c.prev.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	case lexer.TokenBangEqual:
		c.emitOps(chunk.OpEqual, chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOps(chunk.OpLess, chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOps(chunk.OpGreater, chunk.OpNot)
	}
}

func (c *Compiler) and(_ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(_ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return count
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, byte(argCount))
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	idx := c.identifierConstant(c.prev.Lexeme)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitConstOp(chunk.OpSetProp, chunk.OpSetPropLong, idx)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitInvoke(chunk.OpInvoke, chunk.OpInvokeLong, idx, byte(argCount))
	default:
		c.emitConstOp(chunk.OpGetProp, chunk.OpGetPropLong, idx)
	}
}

func (c *Compiler) variable(canAssign bool) { c.namedVariable(c.prev.Lexeme, canAssign) }

func (c *Compiler) this_(_ bool) {
	if c.cs == nil {
		c.error("Cannot use 'this' outside of a class.")
		return
	}
	c.namedVariable("this", false)
}

func (c *Compiler) super_(_ bool) {
	if c.cs == nil {
		c.error("Cannot use 'super' outside of a class.")
	} else if !c.cs.hasSuperclass {
		c.error("Cannot use 'super' in a class with no superclass.")
	}

	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	idx := c.identifierConstant(c.prev.Lexeme)

	c.namedVariable("this", false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		c.emitInvoke(chunk.OpSuperInvoke, chunk.OpSuperInvokeLong, idx, byte(argCount))
	} else {
		c.namedVariable("super", false)
		c.emitConstOp(chunk.OpGetSuper, chunk.OpGetSuperLong, idx)
	}
}

// --- statements ----------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration(false)
	case c.match(lexer.TokenLet):
		c.varDeclaration(true)
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration(readonly bool) {
	global := c.parseVariable("Expect variable name.", readonly)

	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		if readonly {
			c.error("Read-only variable must have an initializer.")
		}
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.", false)
	name := c.prev.Lexeme
	c.markInitialized()
	c.funcBody(typeFunction, name)
	c.defineVariable(global)
}

func (c *Compiler) funcBody(fnType funcType, name string) {
	fn := &value.ObjFunction{Chunk: &value.Chunk{}}
	if name != "" {
		fn.Name = c.internString(name)
	}

	newFS := &funcState{enclosing: c.fs, function: fn, fnType: fnType}
	slotName := ""
	if fnType != typeFunction {
		slotName = "this"
	}
	newFS.locals = append(newFS.locals, local{name: slotName, depth: 0})
	c.fs = newFS

	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			fn.Arity++
			if fn.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.", false)
			c.defineVariable(paramConst)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	c.emitReturn()
	finished := c.fs
	fn.UpvalueCount = len(finished.upvalues)
	c.fs = finished.enclosing

	idx := c.makeConstant(value.Object(fn))
	c.emitConstOp(chunk.OpClosure, chunk.OpClosureLong, idx)
	for _, uv := range finished.upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(uv.index))
	}
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	name := c.prev.Lexeme
	constant := c.identifierConstant(name)

	fnType := typeMethod
	if name == "init" {
		fnType = typeInitializer
	}
	c.funcBody(fnType, name)

	if name == "init" {
		c.emitOp(chunk.OpInit)
	}
	c.emitConstOp(chunk.OpMethod, chunk.OpMethodLong, constant)
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	className := c.prev.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable(false)

	c.emitConstOp(chunk.OpClass, chunk.OpClassLong, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.cs}
	c.cs = cs

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		superclassName := c.prev.Lexeme
		c.namedVariable(superclassName, false)
		if superclassName == className {
			c.error("A class cannot inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super", true)
		c.markInitialized()

		c.namedVariable(className, false)
		c.emitOp(chunk.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop)

	if cs.hasSuperclass {
		c.endScope()
	}
	c.cs = cs.enclosing
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenSwitch):
		c.switchStatement()
	case c.match(lexer.TokenContinue):
		c.continueStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.fs.loops = append(c.fs.loops, loopCtx{start: loopStart, scopeDepth: c.fs.scopeDepth})

	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration(false)
	case c.match(lexer.TokenLet):
		c.varDeclaration(true)
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.check(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")
	}

	c.fs.loops = append(c.fs.loops, loopCtx{start: loopStart, scopeDepth: c.fs.scopeDepth})
	c.statement()
	c.emitLoop(loopStart)
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) continueStatement() {
	if len(c.fs.loops) == 0 {
		c.error("Cannot use 'continue' outside of a loop.")
		c.consume(lexer.TokenSemicolon, "Expect ';' after 'continue'.")
		return
	}
	loop := c.fs.loops[len(c.fs.loops)-1]
	for i := len(c.fs.locals) - 1; i >= 0 && c.fs.locals[i].depth > loop.scopeDepth; i-- {
		if c.fs.locals[i].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
	}
	c.emitLoop(loop.start)
	c.consume(lexer.TokenSemicolon, "Expect ';' after 'continue'.")
}

func (c *Compiler) switchStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'switch'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after switch value.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before switch body.")

	var endJumps []int
	for c.check(lexer.TokenCase) {
		c.advance()
		c.expression()
		c.consume(lexer.TokenColon, "Expect ':' after case value.")
		c.emitOp(chunk.OpCmp)

		nextCase := c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)

		for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) && !c.check(lexer.TokenRightBrace) {
			c.statement()
		}
		endJumps = append(endJumps, c.emitJump(chunk.OpJump))

		c.patchJump(nextCase)
		c.emitOp(chunk.OpPop)
	}

	if c.match(lexer.TokenDefault) {
		c.consume(lexer.TokenColon, "Expect ':' after 'default'.")
		for !c.check(lexer.TokenRightBrace) {
			c.statement()
		}
	}

	for _, j := range endJumps {
		c.patchJump(j)
	}
	c.emitOp(chunk.OpPop) // the switch subject
	c.consume(lexer.TokenRightBrace, "Expect '}' after switch body.")
}

func (c *Compiler) returnStatement() {
	if c.fs.fnType == typeScript {
		c.error("Cannot return from top-level code.")
	}

	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}

	if c.fs.fnType == typeInitializer {
		c.error("Cannot return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}
