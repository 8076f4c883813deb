package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineMapCollapsesRuns(t *testing.T) {
	var lm LineMap
	lm.Add(0, 1)
	lm.Add(1, 1)
	lm.Add(2, 1)
	lm.Add(3, 2)
	lm.Add(4, 2)

	assert.Equal(t, []lineRun{{line: 1, start: 0, end: 3}, {line: 2, start: 3, end: 5}}, lm.runs)
}

func TestLineMapGetLine(t *testing.T) {
	var lm LineMap
	for offset, line := range []int{1, 1, 1, 2, 2, 3} {
		lm.Add(offset, line)
	}

	tests := []struct {
		offset int
		want   int
	}{
		{0, 1}, {1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lm.GetLine(tt.offset))
	}
}

func TestLineMapUnknownOffset(t *testing.T) {
	var lm LineMap
	lm.Add(0, 1)

	assert.Equal(t, -1, lm.GetLine(5))
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "OP_CONSTANT", OpConstant.String())
	assert.Equal(t, "OP_RETURN", OpReturn.String())
	assert.Equal(t, "OP_UNKNOWN", OpCode(255).String())
}
