package corert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimerHeapOrdersByDeadlineThenID(t *testing.T) {
	h := NewTimerHeap()
	h.Push(&Activity{id: 2, timeout: 100})
	h.Push(&Activity{id: 1, timeout: 100}) // same deadline, earlier id
	h.Push(&Activity{id: 3, timeout: 50})

	require.Equal(t, int64(50), h.Peek().timeout)

	first := h.Pop()
	require.Equal(t, uint64(3), first.id)

	second := h.Pop()
	require.Equal(t, uint64(1), second.id) // tiebreak favors lower id

	third := h.Pop()
	require.Equal(t, uint64(2), third.id)

	require.Equal(t, 0, h.Len())
	require.Nil(t, h.Peek())
}
