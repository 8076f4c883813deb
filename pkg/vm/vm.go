// Package vm implements the bytecode virtual machine: a stack-based
// interpreter that fetches, decodes, and executes the instruction stream
// the compiler produces.
//
//	Source -> Lexer -> Compiler -> Chunk (bytecode) -> VM -> Execution
//
// The VM keeps a value stack, a bounded stack of call frames (one per
// active function/method/closure invocation), a string-intern table and
// a separate global-variable table of the same type, a singly-linked list
// of open upvalues ordered by descending stack index, and an object
// arena the garbage collector traces and sweeps.
//
// Example execution trace for `var x = 5; print x + 3;`:
//
//	IP=0: OP_CONSTANT 1    -> stack=[5]
//	IP=2: OP_DEFINE_GLOBAL  -> stack=[], globals[x]=5
//	IP=4: OP_GET_GLOBAL     -> stack=[5]
//	IP=6: OP_CONSTANT 2     -> stack=[5,3]
//	IP=8: OP_ADD            -> stack=[8]
//	IP=9: OP_PRINT          -> stack=[], prints 8
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kristofer/vela/internal/config"
	"github.com/kristofer/vela/pkg/chunk"
	"github.com/kristofer/vela/pkg/table"
	"github.com/kristofer/vela/pkg/value"
)

// CallFrame is one active invocation: the closure being run, its
// instruction pointer into that closure's function's chunk, and the base
// stack slot its locals (including the receiver/function slot 0) start
// at.
type CallFrame struct {
	closure   *value.ObjClosure
	ip        int
	slotsBase int
}

// VM is the bytecode interpreter.
type VM struct {
	frames   []CallFrame
	frameCnt int
	stack    []value.Value
	sp       int
	globals  *table.Table
	strings  *table.Table
	openUps  *value.ObjUpvalue
	out      io.Writer
	log      *zap.Logger

	frameLimit int
	stressGC   bool

	objects        []value.Obj
	bytesAllocated int
	nextGC         int
}

// New constructs a VM writing `print` output to out, tuned by cfg. A nil
// out defaults to os.Stdout, a nil logger to zap's no-op logger, and a
// zero-value cfg to config.Default().
func New(out io.Writer, logger *zap.Logger, cfg config.Config) *VM {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FrameLimit == 0 {
		cfg = config.Default()
	}
	vm := &VM{
		frames:     make([]CallFrame, cfg.FrameLimit),
		stack:      make([]value.Value, cfg.StackSize),
		globals:    &table.Table{},
		strings:    &table.Table{},
		out:        out,
		log:        logger,
		frameLimit: cfg.FrameLimit,
		stressGC:   cfg.StressGC,
		nextGC:     cfg.InitialGCThreshold,
	}
	vm.defineNatives()
	return vm
}

// Strings returns the VM's shared intern table, so a compiler run ahead
// of Interpret (REPL session reuse across multiple Compile calls) interns
// into the same set the VM's globals and runtime strings use.
func (vm *VM) Strings() *table.Table { return vm.strings }

// Interpret wraps fn in a closure, pushes a call frame for it, and runs
// the dispatch loop to completion.
func (vm *VM) Interpret(fn *value.ObjFunction) error {
	vm.trackObject(fn)
	closure := &value.ObjClosure{Function: fn}
	vm.trackObject(closure)
	vm.push(value.Object(closure))
	if _, err := vm.call(closure, 0); err != nil {
		return errors.Wrap(err, "interpret")
	}
	return vm.run()
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCnt = 0
	vm.openUps = nil
}

// runtimeError builds a RuntimeError carrying the active call stack,
// outermost (script) frame first, and resets the VM's stack so a host (REPL) can
// keep running after reporting it.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	trace := make([]StackFrame, 0, vm.frameCnt)
	for i := 0; i < vm.frameCnt; i++ {
		f := &vm.frames[i]
		fn := f.closure.Function
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		line := fn.Chunk.GetLine(f.ip - 1)
		trace = append(trace, StackFrame{Name: name, IP: f.ip, SourceLine: line})
	}
	vm.resetStack()
	return newRuntimeError(msg, trace)
}

// internString interns a plain Go string into the VM's shared table,
// reusing an existing entry by content when one exists.
func (vm *VM) internString(s string) *value.ObjString {
	h := value.HashString(s)
	if existing := vm.strings.FindString(s, h); existing != nil {
		return existing
	}
	interned := &value.ObjString{Chars: s, Hash: h, Owned: true}
	vm.trackObject(interned)
	vm.strings.Set(interned, value.Nil)
	return interned
}

func (vm *VM) trackObject(o value.Obj) {
	vm.objects = append(vm.objects, o)
	vm.bytesAllocated += approxSize(o)
}

// --- calling convention --------------------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) (bool, error) {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *value.ObjClosure:
			return vm.call(obj, argCount)
		case *value.ObjNative:
			return vm.callNative(obj, argCount)
		case *value.ObjClass:
			instance := &value.ObjInstance{Class: obj, Fields: map[string]value.Value{}}
			vm.trackObject(instance)
			vm.stack[vm.sp-argCount-1] = value.Object(instance)
			if obj.Init != nil {
				return vm.call(obj.Init, argCount)
			}
			if argCount != 0 {
				return false, vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return true, nil
		case *value.ObjBoundMethod:
			vm.stack[vm.sp-argCount-1] = obj.Receiver
			switch m := obj.Method.(type) {
			case *value.ObjClosure:
				return vm.call(m, argCount)
			case *value.ObjNative:
				return vm.callNative(m, argCount)
			}
		}
	}
	return false, vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) (bool, error) {
	if argCount != closure.Function.Arity {
		return false, vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCnt == vm.frameLimit {
		return false, vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCnt]
	vm.frameCnt++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.sp - argCount - 1
	return true, nil
}

func (vm *VM) callNative(native *value.ObjNative, argCount int) (bool, error) {
	if native.Arity >= 0 && argCount != native.Arity {
		return false, vm.runtimeError("Expected %d arguments but got %d.", native.Arity, argCount)
	}
	args := vm.stack[vm.sp-argCount : vm.sp]
	result, err := native.Fn(args)
	if err != nil {
		return false, vm.runtimeError("%s", err.Error())
	}
	vm.sp -= argCount + 1
	vm.push(result)
	return true, nil
}

func (vm *VM) invoke(name *value.ObjString, argCount int) (bool, error) {
	receiver := vm.peek(argCount)
	if !receiver.IsObj() {
		return false, vm.runtimeError("Only instances have methods.")
	}
	instance, ok := receiver.AsObj().(*value.ObjInstance)
	if !ok {
		return false, vm.runtimeError("Only instances have methods.")
	}
	if field, ok := instance.Fields[name.Chars]; ok {
		vm.stack[vm.sp-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) (bool, error) {
	method, ok := class.Methods[name.Chars]
	if !ok {
		return false, vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method, argCount)
}

func (vm *VM) bindMethod(class *value.ObjClass, name *value.ObjString) (*value.ObjBoundMethod, bool) {
	method, ok := class.Methods[name.Chars]
	if !ok {
		return nil, false
	}
	bound := &value.ObjBoundMethod{Receiver: vm.peek(0), Method: method}
	vm.trackObject(bound)
	return bound, true
}

// --- upvalues --------------------------------------------------------------

func (vm *VM) captureUpvalue(stackIndex int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	up := vm.openUps
	for up != nil && up.StackIndex > stackIndex {
		prev = up
		up = up.Next
	}
	if up != nil && up.StackIndex == stackIndex {
		return up
	}
	created := &value.ObjUpvalue{Location: &vm.stack[stackIndex], StackIndex: stackIndex, Next: up}
	vm.trackObject(created)
	if prev == nil {
		vm.openUps = created
	} else {
		prev.Next = created
	}
	return created
}

func (vm *VM) closeUpvalues(fromStackIndex int) {
	for vm.openUps != nil && vm.openUps.StackIndex >= fromStackIndex {
		up := vm.openUps
		up.Closed = *up.Location
		up.Location = &up.Closed
		vm.openUps = up.Next
	}
}

// --- arithmetic & concatenation --------------------------------------------

func (vm *VM) concatenate() error {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsString() || !b.IsString() {
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	result := a.AsGoString() + b.AsGoString()
	vm.pop()
	vm.pop()
	vm.push(value.String(result))
	return nil
}

// --- dispatch loop -----------------------------------------------------

func (vm *VM) frame() *CallFrame { return &vm.frames[vm.frameCnt-1] }

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort() int {
	hi := vm.readByte()
	lo := vm.readByte()
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(long bool) value.Value {
	f := vm.frame()
	var idx int
	if long {
		idx = vm.readShort()
	} else {
		idx = int(vm.readByte())
	}
	return f.closure.Function.Chunk.Constants[idx]
}

func (vm *VM) readString(long bool) *value.ObjString {
	return vm.readConstant(long).AsObjString()
}

// run executes the opcode-indexed fetch/decode/execute loop for the
// frame stack's current top until an OP_RETURN unwinds the last frame or
// a runtime fault is raised.
func (vm *VM) run() error {
	for {
		if ce := vm.log.Check(zap.DebugLevel, "dispatch"); ce != nil {
			f := vm.frame()
			ce.Write(
				zap.Int("ip", f.ip),
				zap.Int("sp", vm.sp),
				zap.String("op", chunk.OpCode(f.closure.Function.Chunk.Code[f.ip]).String()),
			)
		}

		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant(false))
		case chunk.OpConstantLong:
			vm.push(vm.readConstant(true))
		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := int(vm.readByte())
			vm.push(vm.stack[vm.frame().slotsBase+slot])
		case chunk.OpSetLocal:
			slot := int(vm.readByte())
			vm.stack[vm.frame().slotsBase+slot] = vm.peek(0)

		case chunk.OpGetGlobal, chunk.OpGetGlobalLong:
			name := vm.readString(op == chunk.OpGetGlobalLong)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal, chunk.OpDefineGlobalLong:
			name := vm.readString(op == chunk.OpDefineGlobalLong)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal, chunk.OpSetGlobalLong:
			name := vm.readString(op == chunk.OpSetGlobalLong)
			if vm.globals.Set(name, vm.peek(0)) {
				// Set reports true for a brand-new key; an assignment to an
				// undeclared global must not silently create one.
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case chunk.OpGetUpvalue:
			slot := int(vm.readByte())
			vm.push(*vm.frame().closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := int(vm.readByte())
			*vm.frame().closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetProp, chunk.OpGetPropLong, chunk.OpGetPropStr:
			name := vm.readString(op == chunk.OpGetPropLong)
			receiver := vm.peek(0)
			if !receiver.IsObj() {
				return vm.runtimeError("Only instances have properties.")
			}
			instance, ok := receiver.AsObj().(*value.ObjInstance)
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			if field, ok := instance.Fields[name.Chars]; ok {
				vm.pop()
				vm.push(field)
				break
			}
			bound, ok := vm.bindMethod(instance.Class, name)
			if !ok {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}
			vm.pop()
			vm.push(value.Object(bound))

		case chunk.OpSetProp, chunk.OpSetPropLong, chunk.OpSetPropStr:
			name := vm.readString(op == chunk.OpSetPropLong)
			receiver := vm.peek(1)
			if !receiver.IsObj() {
				return vm.runtimeError("Only instances have fields.")
			}
			instance, ok := receiver.AsObj().(*value.ObjInstance)
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			instance.Fields[name.Chars] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpGetSuper, chunk.OpGetSuperLong:
			name := vm.readString(op == chunk.OpGetSuperLong)
			super := vm.pop().AsObj().(*value.ObjClass)
			bound, ok := vm.bindMethod(super, name)
			if !ok {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}
			vm.pop()
			vm.push(value.Object(bound))

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.ValuesEqual(a, b)))
		case chunk.OpCmp:
			b := vm.pop()
			a := vm.peek(0)
			vm.push(value.Bool(value.ValuesEqual(a, b)))

		case chunk.OpGreater, chunk.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if op == chunk.OpGreater {
				vm.push(value.Bool(a > b))
			} else {
				vm.push(value.Bool(a < b))
			}

		case chunk.OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				if err := vm.concatenate(); err != nil {
					return err
				}
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(value.Number(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			switch op {
			case chunk.OpSubtract:
				vm.push(value.Number(a - b))
			case chunk.OpMultiply:
				vm.push(value.Number(a * b))
			case chunk.OpDivide:
				if b == 0 {
					return vm.runtimeError("Division by zero.")
				}
				vm.push(value.Number(a / b))
			}

		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))
		case chunk.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.out, value.PrintValue(vm.pop()))

		case chunk.OpJump:
			offset := vm.readShort()
			vm.frame().ip += offset
		case chunk.OpJumpIfFalse:
			offset := vm.readShort()
			if vm.peek(0).IsFalsey() {
				vm.frame().ip += offset
			}
		case chunk.OpLoop:
			offset := vm.readShort()
			vm.frame().ip -= offset

		case chunk.OpCall:
			argCount := int(vm.readByte())
			if _, err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}

		case chunk.OpInvoke, chunk.OpInvokeLong:
			name := vm.readString(op == chunk.OpInvokeLong)
			argCount := int(vm.readByte())
			if _, err := vm.invoke(name, argCount); err != nil {
				return err
			}

		case chunk.OpSuperInvoke, chunk.OpSuperInvokeLong:
			name := vm.readString(op == chunk.OpSuperInvokeLong)
			argCount := int(vm.readByte())
			super := vm.pop().AsObj().(*value.ObjClass)
			if _, err := vm.invokeFromClass(super, name, argCount); err != nil {
				return err
			}

		case chunk.OpClosure, chunk.OpClosureLong:
			fn := vm.readConstant(op == chunk.OpClosureLong).AsObj().(*value.ObjFunction)
			closure := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
			vm.trackObject(closure)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte()
				index := int(vm.readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(vm.frame().slotsBase + index)
				} else {
					closure.Upvalues[i] = vm.frame().closure.Upvalues[index]
				}
			}
			vm.push(value.Object(closure))

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			frame := vm.frame()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCnt--
			if vm.frameCnt == 0 {
				vm.pop()
				return nil
			}
			vm.sp = frame.slotsBase
			vm.push(result)

		case chunk.OpClass, chunk.OpClassLong:
			name := vm.readString(op == chunk.OpClassLong)
			class := &value.ObjClass{Name: name, Methods: map[string]*value.ObjClosure{}}
			vm.trackObject(class)
			vm.push(value.Object(class))

		case chunk.OpMethod, chunk.OpMethodLong:
			name := vm.readString(op == chunk.OpMethodLong)
			method := vm.peek(0).AsObj().(*value.ObjClosure)
			class := vm.peek(1).AsObj().(*value.ObjClass)
			class.Methods[name.Chars] = method
			vm.pop()

		case chunk.OpInit:
			closure := vm.peek(0).AsObj().(*value.ObjClosure)
			class := vm.peek(1).AsObj().(*value.ObjClass)
			class.Init = closure

		case chunk.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsObj() {
				return vm.runtimeError("Superclass must be a class.")
			}
			superclass, ok := superVal.AsObj().(*value.ObjClass)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*value.ObjClass)
			for n, m := range superclass.Methods {
				subclass.Methods[n] = m
			}
			subclass.Init = superclass.Init
			vm.pop()

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}

		if vm.stressGC || vm.bytesAllocated > vm.nextGC {
			vm.collectGarbage()
		}
	}
}
