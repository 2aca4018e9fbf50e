package corert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCloseable struct {
	closed bool
	err    error
}

func (c *fakeCloseable) Close() error {
	c.closed = true
	return c.err
}

func TestOpenHandlesRegisterUnregister(t *testing.T) {
	h := NewOpenHandles()
	a := &fakeCloseable{}
	b := &fakeCloseable{}

	h.Register(a)
	h.Register(b)
	require.Equal(t, 2, h.Len())

	h.Unregister(a)
	require.Equal(t, 1, h.Len())

	errs := h.CloseAll()
	require.Empty(t, errs)
	require.False(t, a.closed)
	require.True(t, b.closed)
	require.Equal(t, 0, h.Len())
}

func TestOpenHandlesCloseAllCollectsErrors(t *testing.T) {
	h := NewOpenHandles()
	ok := &fakeCloseable{}
	bad := &fakeCloseable{err: errors.New("close failed")}

	h.Register(ok)
	h.Register(bad)

	errs := h.CloseAll()
	require.Len(t, errs, 1)
	require.True(t, ok.closed)
	require.True(t, bad.closed)
}
