// Package test holds cross-package, interpreter-level scenario tests:
// full source-to-stdout runs through the compiler and VM together,
// rather than unit tests against a single package. The golden cases
// below are the concrete scenarios enumerated in this language's
// design notes, used verbatim.
package test

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/vela/internal/config"
	"github.com/kristofer/vela/pkg/compiler"
	"github.com/kristofer/vela/pkg/vm"
)

// runSource compiles and interprets src against a fresh VM and config,
// returning stdout and any error (compile or runtime) encountered.
func runSource(t *testing.T, src string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(&out, nil, config.Default())
	c := compiler.New(machine.Strings())
	fn, err := c.Compile(src)
	if err != nil {
		return out.String(), err
	}
	err = machine.Interpret(fn)
	return out.String(), err
}

func TestScenario1_OperatorPrecedence(t *testing.T) {
	out, err := runSource(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestScenario2_StringConcatenation(t *testing.T) {
	out, err := runSource(t, `var a = "foo"; var b = "bar"; print a + b;`)
	require.NoError(t, err)
	assert.Equal(t, "foobar\n", out)
}

func TestScenario3_ClosureCounter(t *testing.T) {
	out, err := runSource(t, `fun mkCounter() { var n = 0; fun inc() { n = n + 1; return n; } return inc; } var c = mkCounter(); print c(); print c(); print c();`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestScenario4_Inheritance(t *testing.T) {
	out, err := runSource(t, `class A { greet() { print "hi"; } } class B < A {} B().greet();`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestScenario5_InitAndThis(t *testing.T) {
	out, err := runSource(t, `class C { init(x) { this.x = x; } get() { return this.x; } } print C(42).get();`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestScenario6_NestedBlockScopes(t *testing.T) {
	out, err := runSource(t, `var x = 1; { var x = 2; { var x = 3; print x; } print x; } print x;`)
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)
}

func TestScenario7_ForLoop(t *testing.T) {
	out, err := runSource(t, `for (var i = 0; i < 3; i = i + 1) print i;`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestScenario8_AssigningToReadonlyIsCompileError(t *testing.T) {
	_, err := runSource(t, `let k = 5; k = 6;`)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "readonly")
}

func TestScenario9_UndefinedCallRuntimeError(t *testing.T) {
	out, err := runSource(t, `nonexistent();`)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, err.Error(), "Undefined variable 'nonexistent'.")
}

// TestParameterLimitBoundary exercises "exactly 255 parameters is
// accepted; 256 is rejected" from the testable-properties boundary
// list.
func TestParameterLimitBoundary(t *testing.T) {
	names := make([]string, 255)
	args := make([]string, 255)
	for i := range names {
		names[i] = "p" + strconv.Itoa(i)
		args[i] = "1"
	}
	params := strings.Join(names, ", ")
	call := strings.Join(args, ", ")

	src := "fun f(" + params + ") { return p0; } print f(" + call + ");"
	_, err := runSource(t, src)
	require.NoError(t, err)

	names256 := append(names, "p255")
	src2 := "fun g(" + strings.Join(names256, ", ") + ") { return p0; }"
	_, err = runSource(t, src2)
	require.Error(t, err)
}

// TestCallDepthBoundary exercises "exactly 64 nested calls succeed;
// the 65th triggers stack overflow". The configured FrameLimit counts
// the top-level script frame as call 1, so FrameLimit-1 nested user
// calls succeed and the FrameLimit'th overflows.
func TestCallDepthBoundary(t *testing.T) {
	limit := config.Default().FrameLimit

	src := "fun recurse(n) { if (n == 0) return 0; return 1 + recurse(n - 1); } print recurse(" + strconv.Itoa(limit-2) + ");"
	_, err := runSource(t, src)
	require.NoError(t, err)

	src2 := "fun recurse(n) { if (n == 0) return 0; return 1 + recurse(n - 1); } print recurse(" + strconv.Itoa(limit+10) + ");"
	_, err = runSource(t, src2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stack overflow.")
}
