// Package value implements the tagged-union Value representation and the
// heap object model (strings, functions, closures, upvalues, natives,
// classes, instances, bound methods) described by the core specification,
// together with the Chunk type that bundles a function's code, constants,
// and line map.
//
// A tagged-union Value struct is used instead of NaN-boxing: both are
// admissible and must observe the same valuesEqual semantics, and a Go
// struct gets no packing benefit from squeezing everything into 64 bits
// the way a C Value does.
package value

import "strconv"

// Type tags the scalar variant a Value holds.
type Type uint8

const (
	TNil Type = iota
	TBool
	TNumber
	// TString holds a short (<=4 byte) string inline, with no heap
	// allocation and no interning; it is compared byte-wise.
	TString
	// TObj holds a reference to a heap Obj (ObjString and up).
	TObj
)

func (t Type) String() string {
	switch t {
	case TNil:
		return "nil"
	case TBool:
		return "bool"
	case TNumber:
		return "number"
	case TString:
		return "string"
	case TObj:
		return "object"
	default:
		return "unknown"
	}
}

const shortStringMax = 4

// Value is a tagged scalar: Nil, Bool, Number, an inline short string, or a
// reference to a heap Obj.
type Value struct {
	typ  Type
	b    bool
	n    float64
	s    [shortStringMax]byte
	sLen uint8
	obj  Obj
}

// Nil is the singleton nil value.
var Nil = Value{typ: TNil}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{typ: TBool, b: b} }

// Number constructs a numeric value.
func Number(n float64) Value { return Value{typ: TNumber, n: n} }

// Object constructs a value referencing a heap object.
func Object(o Obj) Value { return Value{typ: TObj, obj: o} }

// String constructs a string value: inline if it fits in four bytes,
// otherwise a heap Obj reference. Callers that need a guaranteed-interned
// string (for identity comparisons such as map keys or class/method names)
// should go through the VM's allocator instead, which always produces an
// interned *ObjString regardless of length.
func String(s string) Value {
	if len(s) <= shortStringMax {
		var v Value
		v.typ = TString
		v.sLen = uint8(len(s))
		copy(v.s[:], s)
		return v
	}
	return Object(&ObjString{Chars: s, Hash: HashString(s)})
}

func (v Value) Type() Type { return v.typ }

func (v Value) IsNil() bool    { return v.typ == TNil }
func (v Value) IsBool() bool   { return v.typ == TBool }
func (v Value) IsNumber() bool { return v.typ == TNumber }
func (v Value) IsObj() bool    { return v.typ == TObj }

// IsString reports whether v holds string content, whether inline or heap.
func (v Value) IsString() bool {
	return v.typ == TString || (v.typ == TObj && v.obj != nil && v.obj.ObjType() == ObjStringType)
}

func (v Value) AsBool() bool   { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Obj     { return v.obj }

// AsObjString returns the underlying *ObjString, or nil if v is not a
// heap string (an inline short string has no ObjString backing it).
func (v Value) AsObjString() *ObjString {
	if v.typ == TObj {
		if s, ok := v.obj.(*ObjString); ok {
			return s
		}
	}
	return nil
}

// AsGoString returns the Go string content of v, regardless of whether it
// is stored inline or on the heap. Callers must check IsString first.
func (v Value) AsGoString() string {
	if v.typ == TString {
		return string(v.s[:v.sLen])
	}
	if s := v.AsObjString(); s != nil {
		return s.Chars
	}
	return ""
}

// IsFalsey reports whether v is nil or the boolean false; every other
// value is truthy.
func (v Value) IsFalsey() bool {
	return v.typ == TNil || (v.typ == TBool && !v.b)
}

// ValuesEqual implements the language's `==` semantics: numbers by IEEE
// equality, nil equals nil, booleans directly, strings by content
// (regardless of inline/heap representation: heap strings built by String
// are not interned, and inline strings have no identity to compare), and
// all other objects by reference identity.
func ValuesEqual(a, b Value) bool {
	aStr, bStr := a.IsString(), b.IsString()
	if aStr && bStr {
		return a.AsGoString() == b.AsGoString()
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TNil:
		return true
	case TBool:
		return a.b == b.b
	case TNumber:
		return a.n == b.n
	case TObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// PrintValue renders v the way the `print` statement and string
// concatenation do.
func PrintValue(v Value) string {
	switch v.typ {
	case TNil:
		return "nil"
	case TBool:
		if v.b {
			return "true"
		}
		return "false"
	case TNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case TString:
		return v.AsGoString()
	case TObj:
		return printObj(v.obj)
	default:
		return "?"
	}
}

func printObj(o Obj) string {
	switch obj := o.(type) {
	case *ObjString:
		return obj.Chars
	case *ObjFunction:
		if obj.Name == nil {
			return "<script>"
		}
		return "<fn " + obj.Name.Chars + ">"
	case *ObjClosure:
		return printObj(obj.Function)
	case *ObjNative:
		return "<native fn " + obj.Name + ">"
	case *ObjClass:
		return obj.Name.Chars
	case *ObjInstance:
		return obj.Class.Name.Chars + " instance"
	case *ObjBoundMethod:
		return printObj(obj.Method)
	case *ObjUpvalue:
		return "<upvalue>"
	default:
		return "<object>"
	}
}

// HashString computes the FNV-1a hash used to key interned strings.
func HashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
