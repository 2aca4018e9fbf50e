package corert

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTickQueueFIFOOrder(t *testing.T) {
	q := NewTickQueue()
	require.True(t, q.Empty())

	for i := 0; i < 300; i++ { // exceeds chunkSize, exercising chunk rollover
		q.Push(&Activity{id: uint64(i)})
	}
	require.Equal(t, 300, q.Len())

	for i := 0; i < 300; i++ {
		a, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, uint64(i), a.id)
	}
	_, ok := q.Pop()
	require.False(t, ok)
	require.True(t, q.Empty())
}

func TestTickQueueConcurrentPush(t *testing.T) {
	q := NewTickQueue()
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(&Activity{})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, producers*perProducer, q.Len())
	count := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
