package vm

import (
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/kristofer/vela/pkg/value"
)

// defineNatives registers the small native-function surface this
// implementation exposes: a wall clock, environment lookup, a random
// number source, and process exit.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", 0, func(args []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})
	vm.defineNative("env", 1, func(args []value.Value) (value.Value, error) {
		if !args[0].IsString() {
			return value.Nil, errNativeArg("env", "a string")
		}
		v, ok := os.LookupEnv(args[0].AsGoString())
		if !ok {
			return value.Nil, nil
		}
		return value.String(v), nil
	})
	vm.defineNative("rand", 2, func(args []value.Value) (value.Value, error) {
		if !args[0].IsNumber() || !args[1].IsNumber() {
			return value.Nil, errNativeArg("rand", "two numbers")
		}
		lo := args[0].AsNumber()
		hi := args[1].AsNumber()
		return value.Number(lo + math.Floor(rand.Float64()*(hi-lo))), nil
	})
	vm.defineNative("exit", 1, func(args []value.Value) (value.Value, error) {
		code := 0
		if args[0].IsNumber() {
			code = int(args[0].AsNumber())
		}
		os.Exit(code)
		return value.Nil, nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	native := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	vm.trackObject(native)
	vm.globals.Set(vm.internString(name), value.Object(native))
}

func errNativeArg(name, want string) error {
	return &nativeArgError{name: name, want: want}
}

type nativeArgError struct {
	name, want string
}

func (e *nativeArgError) Error() string {
	return e.name + "() expects " + e.want + " argument."
}
