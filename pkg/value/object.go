package value

// ObjType tags the concrete kind of a heap Obj.
type ObjType uint8

const (
	ObjStringType ObjType = iota
	ObjFunctionType
	ObjClosureType
	ObjUpvalueType
	ObjNativeType
	ObjClassType
	ObjInstanceType
	ObjBoundMethodType
)

func (t ObjType) String() string {
	switch t {
	case ObjStringType:
		return "STRING"
	case ObjFunctionType:
		return "FUNCTION"
	case ObjClosureType:
		return "CLOSURE"
	case ObjUpvalueType:
		return "UPVALUE"
	case ObjNativeType:
		return "NATIVE"
	case ObjClassType:
		return "CLASS"
	case ObjInstanceType:
		return "INSTANCE"
	case ObjBoundMethodType:
		return "BOUND_METHOD"
	default:
		return "UNKNOWN"
	}
}

// Obj is implemented by every heap object kind. Every concrete type embeds
// objHeader, which carries the GC mark bit; the VM's object arena holds
// Obj values directly rather than threading an intrusive linked list
// through each header, per the memory-safe-target-language note in the
// design notes.
type Obj interface {
	ObjType() ObjType
	IsMarked() bool
	SetMark(bool)
}

type objHeader struct {
	isMarked bool
}

func (h *objHeader) IsMarked() bool  { return h.isMarked }
func (h *objHeader) SetMark(m bool)  { h.isMarked = m }

// ObjString is an immutable, hash-precomputed string. Strings longer than
// the inline-short-string threshold are always represented this way. The
// compiler's and the VM's internString interns every ObjString they
// create, but heap strings built by String (string literals and
// concatenation results) are not interned, so two ObjStrings can hold the
// same content; ValuesEqual therefore compares strings by content.
//
// Owned reports whether Chars is a private copy (heap) as opposed to a
// slice borrowed from a still-live source buffer (e.g. a constant scanned
// directly out of the compiling chunk's source text); a borrowed string
// must be promoted to owned before the source buffer it points into can be
// discarded (REPL line reuse, archive load).
type ObjString struct {
	objHeader
	Chars string
	Hash  uint32
	Owned bool
}

func (*ObjString) ObjType() ObjType { return ObjStringType }

// ObjFunction is a compiled function: its arity, how many variables it
// captures as upvalues, its own chunk, and an optional name (absent for
// the implicit top-level script function).
type ObjFunction struct {
	objHeader
	Name         *ObjString
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
}

func (*ObjFunction) ObjType() ObjType { return ObjFunctionType }

// ObjUpvalue is either open (Location points into a live value stack) or
// closed (Closed holds the captured value and Location points at Closed).
type ObjUpvalue struct {
	objHeader
	Location *Value
	Closed   Value
	// Next links open upvalues together, ordered by descending stack
	// index, rooted on the VM.
	Next *ObjUpvalue
	// StackIndex is meaningful only while the upvalue is open; it lets the
	// VM's sorted-insert discipline compare stack positions by index
	// instead of by pointer.
	StackIndex int
}

func (*ObjUpvalue) ObjType() ObjType { return ObjUpvalueType }

func (u *ObjUpvalue) isOpen() bool { return u.Location != nil && u.Location != &u.Closed }

// ObjClosure pairs a Function with the upvalues it captured at creation.
type ObjClosure struct {
	objHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (*ObjClosure) ObjType() ObjType { return ObjClosureType }

// NativeFn is the signature every built-in native function implements.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a fixed-arity Go function exposed to interpreted code.
type ObjNative struct {
	objHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (*ObjNative) ObjType() ObjType { return ObjNativeType }

// ObjClass is a class: its name, its method table (method name -> Closure
// or Function), and its initializer if it declared one. Method/field
// tables are plain Go maps rather than the custom open-addressed Table:
// pkg/table's Table is specifically the string-intern set reused as the
// globals map, not a general-purpose map every object kind must use, and
// a plain map also sidesteps a value<->table import cycle (Table is
// keyed on *ObjString, which lives here).
type ObjClass struct {
	objHeader
	Name    *ObjString
	Methods map[string]*ObjClosure
	Init    *ObjClosure
}

func (*ObjClass) ObjType() ObjType { return ObjClassType }

// ObjInstance is an instance of a class plus its per-instance field table.
type ObjInstance struct {
	objHeader
	Class  *ObjClass
	Fields map[string]Value
}

func (*ObjInstance) ObjType() ObjType { return ObjInstanceType }

// ObjBoundMethod pairs a receiver with the method looked up on it, as
// produced by property access that resolves to a method rather than a
// field (`instance.method` without a call).
type ObjBoundMethod struct {
	objHeader
	Receiver Value
	Method   Obj // *ObjClosure or *ObjFunction
}

func (*ObjBoundMethod) ObjType() ObjType { return ObjBoundMethodType }
