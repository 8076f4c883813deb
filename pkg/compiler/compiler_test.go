package compiler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/vela/pkg/chunk"
	"github.com/kristofer/vela/pkg/table"
	"github.com/kristofer/vela/pkg/value"
)

func compile(t *testing.T, src string) *value.ObjFunction {
	t.Helper()
	strs := &table.Table{}
	c := New(strs)
	var out bytes.Buffer
	c.SetOutput(&out)
	fn, err := c.Compile(src)
	require.NoError(t, err, "compile errors:\n%s", out.String())
	return fn
}

func compileExpectError(t *testing.T, src string) string {
	t.Helper()
	strs := &table.Table{}
	c := New(strs)
	var out bytes.Buffer
	c.SetOutput(&out)
	_, err := c.Compile(src)
	require.ErrorIs(t, err, ErrCompile)
	return out.String()
}

func opcodesOf(fn *value.ObjFunction) []chunk.OpCode {
	var ops []chunk.OpCode
	code := fn.Chunk.Code
	constants := fn.Chunk.Constants
	for i := 0; i < len(code); {
		op := chunk.OpCode(code[i])
		ops = append(ops, op)

		switch op {
		case chunk.OpClosure, chunk.OpClosureLong:
			var idx int
			if op == chunk.OpClosure {
				idx = int(code[i+1])
				i += 2
			} else {
				idx = int(code[i+1])<<8 | int(code[i+2])
				i += 3
			}
			upvalues := 0
			if nested, ok := constants[idx].AsObj().(*value.ObjFunction); ok {
				upvalues = nested.UpvalueCount
			}
			i += upvalues * 2
		default:
			i += operandWidth(op)
		}
	}
	return ops
}

// operandWidth is a test-only mirror of each instruction's total width
// (the opcode byte plus its operands), used to walk the code stream
// without a full disassembler.
func operandWidth(op chunk.OpCode) int {
	switch op {
	case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetGlobal,
		chunk.OpDefineGlobal, chunk.OpSetGlobal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
		chunk.OpGetProp, chunk.OpSetProp, chunk.OpCall, chunk.OpClass, chunk.OpMethod,
		chunk.OpGetSuper:
		return 2
	case chunk.OpConstantLong, chunk.OpGetGlobalLong, chunk.OpDefineGlobalLong,
		chunk.OpSetGlobalLong, chunk.OpGetPropLong, chunk.OpSetPropLong,
		chunk.OpGetSuperLong, chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop,
		chunk.OpClassLong, chunk.OpMethodLong, chunk.OpInvoke, chunk.OpSuperInvoke:
		return 3
	case chunk.OpInvokeLong, chunk.OpSuperInvokeLong:
		return 4
	default:
		return 1
	}
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := compile(t, "print 42;")
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpConstant)
	assert.Contains(t, ops, chunk.OpPrint)
	assert.Equal(t, value.Number(42), fn.Chunk.Constants[0])
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	fn := compile(t, "1 + 2 * 3;")
	ops := opcodesOf(fn)
	// multiply must appear before add: 2*3 computed first.
	mulIdx, addIdx := -1, -1
	for i, op := range ops {
		if op == chunk.OpMultiply {
			mulIdx = i
		}
		if op == chunk.OpAdd {
			addIdx = i
		}
	}
	require.NotEqual(t, -1, mulIdx)
	require.NotEqual(t, -1, addIdx)
	assert.Less(t, mulIdx, addIdx)
}

func TestGlobalVarDeclarationAndAssignment(t *testing.T) {
	fn := compile(t, "var x = 1; x = 2;")
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpDefineGlobal)
	assert.Contains(t, ops, chunk.OpSetGlobal)
}

func TestLetWithoutInitializerIsCompileError(t *testing.T) {
	out := compileExpectError(t, "let k;")
	assert.Contains(t, out, "Read-only variable must have an initializer.")
}

func TestAssignToReadonlyLocalIsCompileError(t *testing.T) {
	out := compileExpectError(t, "{ let k = 5; k = 6; }")
	assert.Contains(t, out, "Cannot assign to a read-only variable.")
}

func TestLocalScopeUsesGetSetLocalNotGlobal(t *testing.T) {
	fn := compile(t, "{ var x = 1; print x; }")
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpGetLocal)
	assert.NotContains(t, ops, chunk.OpGetGlobal)
}

func TestClosureCapturesEnclosingLocalAsUpvalue(t *testing.T) {
	fn := compile(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
	`)
	// The outer function's constant pool holds the inner ObjFunction;
	// its upvalue count must be 1 (capturing "count" as a local-upvalue).
	var inner *value.ObjFunction
	for _, c := range fn.Chunk.Constants {
		if c.IsObj() {
			if f, ok := c.AsObj().(*value.ObjFunction); ok && f.Name != nil && f.Name.Chars == "makeCounter" {
				for _, cc := range f.Chunk.Constants {
					if cc.IsObj() {
						if inf, ok := cc.AsObj().(*value.ObjFunction); ok && inf.Name != nil && inf.Name.Chars == "increment" {
							inner = inf
						}
					}
				}
			}
		}
	}
	require.NotNil(t, inner, "expected to find compiled 'increment' function")
	assert.Equal(t, 1, inner.UpvalueCount)
}

func TestClassDeclarationEmitsClassAndMethod(t *testing.T) {
	fn := compile(t, `
		class Greeter {
			init(name) {
				this.name = name;
			}
			greet() {
				print this.name;
			}
		}
	`)
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpClass)
	assert.Contains(t, ops, chunk.OpMethod)
	assert.Contains(t, ops, chunk.OpInit)
}

func TestSuperOutsideClassIsCompileError(t *testing.T) {
	out := compileExpectError(t, "fun f() { super.foo(); }")
	assert.Contains(t, out, "Cannot use 'super' outside of a class.")
}

func TestThisOutsideClassIsCompileError(t *testing.T) {
	out := compileExpectError(t, "print this;")
	assert.Contains(t, out, "Cannot use 'this' outside of a class.")
}

func TestClassCannotInheritFromItself(t *testing.T) {
	out := compileExpectError(t, "class Oops < Oops {}")
	assert.Contains(t, out, "A class cannot inherit from itself.")
}

func TestContinueOutsideLoopIsCompileError(t *testing.T) {
	out := compileExpectError(t, "continue;")
	assert.Contains(t, out, "Cannot use 'continue' outside of a loop.")
}

func TestReturnFromTopLevelIsCompileError(t *testing.T) {
	out := compileExpectError(t, "return 1;")
	assert.Contains(t, out, "Cannot return from top-level code.")
}

func TestReturnValueFromInitializerIsCompileError(t *testing.T) {
	out := compileExpectError(t, `
		class C {
			init() { return 1; }
		}
	`)
	assert.Contains(t, out, "Cannot return a value from an initializer.")
}

func TestTooManyParametersIsCompileError(t *testing.T) {
	params := ""
	for i := 0; i < 256; i++ {
		if i > 0 {
			params += ", "
		}
		params += "p" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	out := compileExpectError(t, "fun f("+params+") {}")
	assert.Contains(t, out, "Can't have more than 255 parameters.")
}

func TestPanicModeRecoversAtNextStatement(t *testing.T) {
	// The first statement is malformed; a second, valid statement should
	// still compile once synchronize() resumes at the next ';' boundary.
	strs := &table.Table{}
	c := New(strs)
	var out bytes.Buffer
	c.SetOutput(&out)
	_, err := c.Compile("1 + ; print 2;")
	require.ErrorIs(t, err, ErrCompile)
	assert.Contains(t, out.String(), "Expect expression.")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("Error")), "only the first statement should report an error:\n%s", out.String())
}

func TestSwitchCompilesCmpAndJumps(t *testing.T) {
	fn := compile(t, `
		switch (1) {
		case 1:
			print "one";
		default:
			print "other";
		}
	`)
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpCmp)
	assert.Contains(t, ops, chunk.OpJumpIfFalse)
}

func TestForLoopDesugarsToWhileWithIncrement(t *testing.T) {
	fn := compile(t, `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	ops := opcodesOf(fn)
	assert.Contains(t, ops, chunk.OpLoop)
	assert.Contains(t, ops, chunk.OpJumpIfFalse)
}
