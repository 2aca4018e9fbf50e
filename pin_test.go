package corert

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPinCounterBasic(t *testing.T) {
	var p PinCounter
	require.Equal(t, int64(0), p.Load())

	p.Pin()
	p.Pin()
	require.Equal(t, int64(2), p.Load())

	hitZero, negative := p.Unpin()
	require.False(t, hitZero)
	require.False(t, negative)

	hitZero, negative = p.Unpin()
	require.True(t, hitZero)
	require.False(t, negative)

	hitZero, negative = p.Unpin()
	require.False(t, hitZero)
	require.True(t, negative)
}

func TestPinCounterConcurrent(t *testing.T) {
	var p PinCounter
	const n = 500

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Pin()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(n), p.Load())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Unpin()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), p.Load())
}
