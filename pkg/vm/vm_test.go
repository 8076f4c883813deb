package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/vela/internal/config"
	"github.com/kristofer/vela/pkg/compiler"
)

// run compiles and interprets src against a fresh VM, returning its
// stdout and any error produced.
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	machine := New(&out, nil, config.Default())
	c := compiler.New(machine.Strings())
	fn, err := c.Compile(src)
	require.NoError(t, err)
	err = machine.Interpret(fn)
	return out.String(), err
}

func TestArithmetic(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, err := run(t, `print "hello, " + "world";`)
	require.NoError(t, err)
	assert.Equal(t, "hello, world\n", out)
}

func TestGlobalsAndLocals(t *testing.T) {
	out, err := run(t, `
		var x = 10;
		{
			var y = 5;
			print x + y;
		}
		print x;
	`)
	require.NoError(t, err)
	assert.Equal(t, "15\n10\n", out)
}

func TestReadonlyBindingRuntimeValue(t *testing.T) {
	out, err := run(t, `let pi = 3; print pi;`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, err := run(t, `
		var i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestForLoopWithContinue(t *testing.T) {
	out, err := run(t, `
		for (var i = 0; i < 5; i = i + 1) {
			if (i == 2) continue;
			print i;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n3\n4\n", out)
}

func TestSwitchStatement(t *testing.T) {
	out, err := run(t, `
		var n = 2;
		switch (n) {
		case 1:
			print "one";
		case 2:
			print "two";
		default:
			print "other";
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "two\n", out)
}

func TestClosureCapturesByReference(t *testing.T) {
	out, err := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestTwoClosuresShareUpvalue(t *testing.T) {
	out, err := run(t, `
		fun pair() {
			var shared = 0;
			fun set(v) { shared = v; }
			fun get() { return shared; }
			set(42);
			print get();
		}
		pair();
	`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestClassesFieldsAndMethods(t *testing.T) {
	out, err := run(t, `
		class Point {
			init(x, y) {
				this.x = x;
				this.y = y;
			}
			sum() {
				return this.x + this.y;
			}
		}
		var p = Point(3, 4);
		print p.sum();
	`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestInheritanceAndSuper(t *testing.T) {
	out, err := run(t, `
		class Animal {
			speak() {
				print "...";
			}
		}
		class Dog < Animal {
			speak() {
				super.speak();
				print "Woof";
			}
		}
		Dog().speak();
	`)
	require.NoError(t, err)
	assert.Equal(t, "...\nWoof\n", out)
}

func TestUndefinedVariableRuntimeError(t *testing.T) {
	_, err := run(t, `print undeclared;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'undeclared'.")
}

func TestTypeErrorOnArithmetic(t *testing.T) {
	_, err := run(t, `print 1 + "x";`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operands must be two numbers or two strings.")
}

func TestDivisionByZeroRuntimeError(t *testing.T) {
	_, err := run(t, `print 1 / 0;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Division by zero.")
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	_, err := run(t, `
		fun recurse() {
			return recurse();
		}
		recurse();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stack overflow.")
}

func TestRuntimeErrorIncludesStackTrace(t *testing.T) {
	_, err := run(t, `
		fun inner() {
			print 1 / 0;
		}
		fun outer() {
			inner();
		}
		outer();
	`)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "Stack trace:")
	assert.Contains(t, msg, "inner")
	assert.Contains(t, msg, "outer")
}

func TestNativeClockReturnsNumber(t *testing.T) {
	out, err := run(t, `print clock() > 0;`)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestNativeRand(t *testing.T) {
	out, err := run(t, `
		var i = 0;
		while (i < 50) {
			var n = rand(5, 10);
			print n >= 5 and n < 10;
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.Equal(t, "true", line)
	}
}

func TestGarbageCollectionDoesNotCorruptLiveClosures(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.StressGC = true
	machine := New(&out, nil, cfg)
	c := compiler.New(machine.Strings())
	fn, err := c.Compile(`
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var a = makeCounter();
		var b = makeCounter();
		var i = 0;
		while (i < 50) {
			print a();
			print b();
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	err = machine.Interpret(fn)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 100)
	assert.Equal(t, "1", lines[0])
	assert.Equal(t, "1", lines[1])
	assert.Equal(t, "50", lines[98])
	assert.Equal(t, "50", lines[99])
}
