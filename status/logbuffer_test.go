package status

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_AppendAndTail(t *testing.T) {
	buf := NewLogBuffer()
	buf.Append("model-1", "probing %s:%d", "localhost", 11434)
	buf.Append("model-1", "engine up")
	buf.Append("model-2", "other key")

	entries := buf.Tail("model-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "probing localhost:11434", entries[0].Line)
	assert.Equal(t, "engine up", entries[1].Line)
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Len(t, buf.Tail("model-2"), 1)
	assert.Empty(t, buf.Tail("missing"))
}

func TestLogBuffer_CapacityDropsOldest(t *testing.T) {
	buf := NewLogBuffer()
	for i := 0; i < logCapacity+10; i++ {
		buf.Append("k", "line %d", i)
	}

	entries := buf.Tail("k")
	require.Len(t, entries, logCapacity)
	assert.Equal(t, "line 10", entries[0].Line)
	assert.Equal(t, fmt.Sprintf("line %d", logCapacity+9), entries[len(entries)-1].Line)
}

func TestLogBuffer_TailReturnsCopy(t *testing.T) {
	buf := NewLogBuffer()
	buf.Append("k", "original")

	entries := buf.Tail("k")
	entries[0].Line = "mutated"

	assert.Equal(t, "original", buf.Tail("k")[0].Line)
}

func TestLogBuffer_Clear(t *testing.T) {
	buf := NewLogBuffer()
	buf.Append("k", "line")
	buf.Clear("k")
	assert.Empty(t, buf.Tail("k"))
}
