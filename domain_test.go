package corert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDomain struct {
	disposed bool
	entered  int
	exited   int
}

func (d *fakeDomain) IsDisposed() bool { return d.disposed }
func (d *fakeDomain) Enter() error     { d.entered++; return nil }
func (d *fakeDomain) Exit() error      { d.exited++; return nil }

func TestRunWithDomainExitsOnNormalReturn(t *testing.T) {
	d := &fakeDomain{}
	err := runWithDomain(d, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, d.entered)
	require.Equal(t, 1, d.exited)
}

func TestRunWithDomainSkipsExitOnError(t *testing.T) {
	d := &fakeDomain{}
	want := errors.New("boom")
	err := runWithDomain(d, func() error { return want })
	require.ErrorIs(t, err, want)
	require.Equal(t, 1, d.entered)
	require.Equal(t, 0, d.exited, "Exit must not run when fn returns an error")
}

func TestRunWithDomainSkipsExitOnPanic(t *testing.T) {
	d := &fakeDomain{}
	require.Panics(t, func() {
		_ = runWithDomain(d, func() error { panic("boom") })
	})
	require.Equal(t, 1, d.entered)
	require.Equal(t, 0, d.exited, "Exit must not run when fn panics")
}

func TestRunWithDomainTreatsDisposedAsNoDomain(t *testing.T) {
	d := &fakeDomain{disposed: true}
	err := runWithDomain(d, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0, d.entered)
	require.Equal(t, 0, d.exited)
}

func TestRunWithDomainNilDomain(t *testing.T) {
	err := runWithDomain(nil, func() error { return nil })
	require.NoError(t, err)
}
