// Package vm implements the tree-walking-free, opcode-indexed bytecode
// interpreter: fetch/decode/execute over a value stack and a bounded
// stack of call frames, an intern table and a separate globals table of
// the same type, and a tracing mark-and-sweep collector over a VM-owned object
// arena.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame at the moment a runtime error was
// raised, for RuntimeError's trace.
type StackFrame struct {
	Name       string // function/method name, "<script>" for the top-level frame
	IP         int    // instruction pointer within the frame's chunk at the fault
	SourceLine int     // source line the frame's instruction pointer maps to
}

// RuntimeError is a runtime fault paired with the call stack active when
// it was raised.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString("\n\nStack trace:")
	for i := len(e.StackTrace) - 1; i >= 0; i-- {
		frame := e.StackTrace[i]
		b.WriteString(fmt.Sprintf("\n  at %s [line %d] [IP: %d]", frame.Name, frame.SourceLine, frame.IP))
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
