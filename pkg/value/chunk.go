package value

import "github.com/kristofer/vela/pkg/chunk"

// constantIndexThreshold is the smallest constant-pool index that does not
// fit in a single byte; from it on the compiler must emit the *Long opcode variant
// with a 2-byte index instead.
const constantIndexThreshold = 256

// Chunk is a function's compiled code: a byte-addressable instruction
// stream, the constant pool those instructions index into, and a
// run-length line map back to source positions.
//
// Chunk lives in pkg/value rather than pkg/chunk because ObjFunction
// embeds a *Chunk and a Chunk's constant pool is []Value: pkg/chunk
// (OpCode, LineMap) has no dependency on Value, so keeping those pieces
// there and the struct that stitches them to Value here avoids a value
// <-> chunk import cycle while still giving the line-map/opcode component
// its own package and tests.
type Chunk struct {
	Code      []byte
	Lines     chunk.LineMap
	Constants []Value
}

// WriteByte appends b to the code stream, recording line for its offset,
// and returns the offset it was written at.
func (c *Chunk) WriteByte(b byte, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, b)
	c.Lines.Add(offset, line)
	return offset
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op chunk.OpCode, line int) int {
	return c.WriteByte(byte(op), line)
}

// AddConstant deduplicates v against the existing pool by ValuesEqual and
// returns its index, appending a new entry only if no equal value is
// already present. Callers that are about to allocate (e.g. interning a
// new string) must keep the value reachable from the VM's root set across
// the call, since appending may trigger no allocation here but the value
// itself may have just been allocated.
func (c *Chunk) AddConstant(v Value) int {
	for i, existing := range c.Constants {
		if ValuesEqual(existing, v) {
			return i
		}
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// GetLine returns the source line recorded for a code offset.
func (c *Chunk) GetLine(offset int) int {
	return c.Lines.GetLine(offset)
}

// NeedsLongConstant reports whether index requires a *Long opcode variant.
func NeedsLongConstant(index int) bool {
	return index >= constantIndexThreshold
}
