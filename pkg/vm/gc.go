package vm

import (
	"go.uber.org/zap"

	"github.com/kristofer/vela/pkg/value"
)

// gcHeapGrowFactor mirrors the classic clox tuning: after a collection,
// the next one is triggered once live bytes double again.
const gcHeapGrowFactor = 2

// approxSize estimates a heap object's footprint for the bytesAllocated
// threshold. Go gives no sizeof-at-allocation the way C does; these are
// rough per-kind constants (header + the dominant variable-length field
// where one exists) rather than a precise accounting, good enough to
// pace collections without requiring unsafe.Sizeof gymnastics.
func approxSize(o value.Obj) int {
	switch obj := o.(type) {
	case *value.ObjString:
		return 24 + len(obj.Chars)
	case *value.ObjFunction:
		return 48 + len(obj.Chunk.Code) + len(obj.Chunk.Constants)*16
	case *value.ObjClosure:
		return 24 + len(obj.Upvalues)*8
	case *value.ObjUpvalue:
		return 32
	case *value.ObjNative:
		return 32
	case *value.ObjClass:
		return 32 + len(obj.Methods)*16
	case *value.ObjInstance:
		return 32 + len(obj.Fields)*16
	case *value.ObjBoundMethod:
		return 24
	default:
		return 16
	}
}

// collectGarbage runs one tracing mark-and-sweep pass: mark every object
// reachable from the VM's roots (value stack, call-frame closures, open
// upvalues, globals), strip the intern table of any string that wasn't
// reached, then free every unmarked object in the arena.
func (vm *VM) collectGarbage() {
	before := vm.bytesAllocated
	var gray []value.Obj

	markValue := func(v value.Value) {
		if v.IsObj() && v.AsObj() != nil {
			o := v.AsObj()
			if !o.IsMarked() {
				o.SetMark(true)
				gray = append(gray, o)
			}
		}
	}

	for i := 0; i < vm.sp; i++ {
		markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCnt; i++ {
		c := vm.frames[i].closure
		if c != nil && !c.IsMarked() {
			c.SetMark(true)
			gray = append(gray, c)
		}
	}
	for up := vm.openUps; up != nil; up = up.Next {
		if !up.IsMarked() {
			up.SetMark(true)
			gray = append(gray, up)
		}
	}
	vm.globals.Walk(func(key *value.ObjString, v value.Value) {
		if !key.IsMarked() {
			key.SetMark(true)
			gray = append(gray, key)
		}
		markValue(v)
	})

	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]

		switch obj := o.(type) {
		case *value.ObjFunction:
			if obj.Name != nil && !obj.Name.IsMarked() {
				obj.Name.SetMark(true)
				gray = append(gray, obj.Name)
			}
			for _, c := range obj.Chunk.Constants {
				markValue(c)
			}
		case *value.ObjClosure:
			if !obj.Function.IsMarked() {
				obj.Function.SetMark(true)
				gray = append(gray, obj.Function)
			}
			for _, up := range obj.Upvalues {
				if up != nil && !up.IsMarked() {
					up.SetMark(true)
					gray = append(gray, up)
				}
			}
		case *value.ObjUpvalue:
			if obj.Location != nil {
				markValue(*obj.Location)
			} else {
				markValue(obj.Closed)
			}
		case *value.ObjClass:
			if !obj.Name.IsMarked() {
				obj.Name.SetMark(true)
				gray = append(gray, obj.Name)
			}
			for _, m := range obj.Methods {
				if !m.IsMarked() {
					m.SetMark(true)
					gray = append(gray, m)
				}
			}
			if obj.Init != nil && !obj.Init.IsMarked() {
				obj.Init.SetMark(true)
				gray = append(gray, obj.Init)
			}
		case *value.ObjInstance:
			if !obj.Class.IsMarked() {
				obj.Class.SetMark(true)
				gray = append(gray, obj.Class)
			}
			for _, v := range obj.Fields {
				markValue(v)
			}
		case *value.ObjBoundMethod:
			markValue(obj.Receiver)
			if obj.Method != nil && !obj.Method.IsMarked() {
				obj.Method.SetMark(true)
				gray = append(gray, obj.Method)
			}
		}
	}

	vm.strings.RemoveWhite()

	survivors := vm.objects[:0]
	vm.bytesAllocated = 0
	for _, o := range vm.objects {
		if o.IsMarked() {
			o.SetMark(false)
			vm.bytesAllocated += approxSize(o)
			survivors = append(survivors, o)
		}
	}
	vm.objects = survivors
	vm.nextGC = vm.bytesAllocated * gcHeapGrowFactor
	if vm.nextGC < 1024*1024 {
		vm.nextGC = 1024 * 1024
	}

	if ce := vm.log.Check(zap.DebugLevel, "gc"); ce != nil {
		ce.Write(
			zap.Int("before", before),
			zap.Int("after", vm.bytesAllocated),
			zap.Int("objects", len(vm.objects)),
			zap.Int("nextGC", vm.nextGC),
		)
	}
}
