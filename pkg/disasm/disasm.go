// Package disasm renders a compiled chunk's instruction stream as
// human-readable text or YAML, and provides a breakpoint/step-mode
// holder. It depends only on pkg/chunk and
// pkg/value, never on pkg/vm, so tracing and disassembly can run over a
// chunk the VM hasn't (or has already finished) executing.
package disasm

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kristofer/vela/pkg/chunk"
	"github.com/kristofer/vela/pkg/value"
)

// Disassembler holds breakpoints and step-mode state. Neither the VM nor
// the CLI consults it: `vela run --trace` only raises the diagnostic
// logger to debug level.
type Disassembler struct {
	Breakpoints map[int]bool
	StepMode    bool
}

// New returns a Disassembler with no breakpoints and step mode off.
func New() *Disassembler {
	return &Disassembler{Breakpoints: make(map[int]bool)}
}

func (d *Disassembler) AddBreakpoint(ip int)    { d.Breakpoints[ip] = true }
func (d *Disassembler) RemoveBreakpoint(ip int) { delete(d.Breakpoints, ip) }
func (d *Disassembler) ClearBreakpoints()       { d.Breakpoints = make(map[int]bool) }

// ShouldPause reports whether execution should pause before running the
// instruction at ip: always true in step mode, otherwise only at a
// registered breakpoint.
func (d *Disassembler) ShouldPause(ip int) bool {
	return d.StepMode || d.Breakpoints[ip]
}

// Chunk renders name's chunk as a full instruction listing, clox-style:
// one line per instruction, an offset column, the source line (or "|"
// when it repeats the previous instruction's line), the opcode name, and
// any operand.
func Chunk(name string, c *value.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	lastLine := -1
	for offset < len(c.Code) {
		line, next := Instruction(c, offset, lastLine)
		b.WriteString(line)
		b.WriteByte('\n')
		lastLine = c.GetLine(offset)
		offset = next
	}
	return b.String()
}

// Instruction renders the single instruction at offset, returning the
// rendered line and the offset of the following instruction.
func Instruction(c *value.Chunk, offset int, lastLine int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)

	line := c.GetLine(offset)
	if offset > 0 && line == lastLine {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", line)
	}

	op := chunk.OpCode(c.Code[offset])
	switch op {
	case chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
		chunk.OpGetProp, chunk.OpSetProp, chunk.OpClass, chunk.OpMethod, chunk.OpGetSuper:
		return constantInstruction(&b, op, c, offset, false)
	case chunk.OpConstantLong, chunk.OpGetGlobalLong, chunk.OpDefineGlobalLong, chunk.OpSetGlobalLong,
		chunk.OpGetPropLong, chunk.OpSetPropLong, chunk.OpClassLong, chunk.OpMethodLong, chunk.OpGetSuperLong:
		return constantInstruction(&b, op, c, offset, true)
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpCall:
		slot := c.Code[offset+1]
		fmt.Fprintf(&b, "%-20s %4d", op, slot)
		return b.String(), offset + 2
	case chunk.OpJump, chunk.OpJumpIfFalse:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		fmt.Fprintf(&b, "%-20s %4d -> %d", op, offset, offset+3+jump)
		return b.String(), offset + 3
	case chunk.OpLoop:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		fmt.Fprintf(&b, "%-20s %4d -> %d", op, offset, offset+3-jump)
		return b.String(), offset + 3
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		idx := int(c.Code[offset+1])
		argCount := c.Code[offset+2]
		fmt.Fprintf(&b, "%-20s (%d args) %4d '%s'", op, argCount, idx, value.PrintValue(c.Constants[idx]))
		return b.String(), offset + 3
	case chunk.OpInvokeLong, chunk.OpSuperInvokeLong:
		idx := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		argCount := c.Code[offset+3]
		fmt.Fprintf(&b, "%-20s (%d args) %4d '%s'", op, argCount, idx, value.PrintValue(c.Constants[idx]))
		return b.String(), offset + 4
	case chunk.OpClosure, chunk.OpClosureLong:
		return closureInstruction(&b, op, c, offset)
	default:
		b.WriteString(op.String())
		return b.String(), offset + 1
	}
}

func constantInstruction(b *strings.Builder, op chunk.OpCode, c *value.Chunk, offset int, long bool) (string, int) {
	var idx, width int
	if long {
		idx = int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		width = 3
	} else {
		idx = int(c.Code[offset+1])
		width = 2
	}
	fmt.Fprintf(b, "%-20s %4d '%s'", op, idx, value.PrintValue(c.Constants[idx]))
	return b.String(), offset + width
}

func closureInstruction(b *strings.Builder, op chunk.OpCode, c *value.Chunk, offset int) (string, int) {
	width := 2
	var idx int
	if op == chunk.OpClosureLong {
		idx = int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		width = 3
	} else {
		idx = int(c.Code[offset+1])
	}
	fmt.Fprintf(b, "%-20s %4d '%s'", op, idx, value.PrintValue(c.Constants[idx]))
	next := offset + width
	if fn, ok := c.Constants[idx].AsObj().(*value.ObjFunction); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[next]
			index := c.Code[next+1]
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(b, "\n%04d      |                     %s %d", next, kind, index)
			next += 2
		}
	}
	return b.String(), next
}

// chunkDoc is the YAML-serializable shape for a disassembled chunk,
// used by `vela run --disasm --format=yaml`.
type chunkDoc struct {
	Name         string      `yaml:"name"`
	Constants    []string    `yaml:"constants"`
	Instructions []string    `yaml:"instructions"`
}

// ToYAML renders the same content as Chunk but as a YAML document, one
// entry per instruction line, for machine-readable consumption.
func ToYAML(name string, c *value.Chunk) (string, error) {
	doc := chunkDoc{Name: name}
	for _, cst := range c.Constants {
		doc.Constants = append(doc.Constants, value.PrintValue(cst))
	}
	offset := 0
	lastLine := -1
	for offset < len(c.Code) {
		line, next := Instruction(c, offset, lastLine)
		doc.Instructions = append(doc.Instructions, strings.TrimSpace(line))
		lastLine = c.GetLine(offset)
		offset = next
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
