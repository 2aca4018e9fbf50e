package corert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeVMArgHandler struct {
	exposedGC        bool
	throwDeprecation bool
	traceDeprecation bool
	noDeprecation    bool
}

func (h *fakeVMArgHandler) EnableExposedGC()           { h.exposedGC = true }
func (h *fakeVMArgHandler) SetThrowDeprecation(v bool) { h.throwDeprecation = v }
func (h *fakeVMArgHandler) SetTraceDeprecation(v bool) { h.traceDeprecation = v }
func (h *fakeVMArgHandler) SetNoDeprecation(v bool)    { h.noDeprecation = v }

func TestApplyVMArgsRecognized(t *testing.T) {
	h := &fakeVMArgHandler{}
	err := ApplyVMArgs([]string{
		"--expose-gc",
		"--throw-deprecation",
		"--trace-deprecation",
		"script.js",
		"--debug",
	}, h)
	require.NoError(t, err)
	require.True(t, h.exposedGC)
	require.True(t, h.throwDeprecation)
	require.True(t, h.traceDeprecation)
}

func TestApplyVMArgsNoDeprecationSetsDistinctFlag(t *testing.T) {
	h := &fakeVMArgHandler{throwDeprecation: true, traceDeprecation: true}
	require.NoError(t, ApplyVMArgs([]string{"--no-deprecation"}, h))
	require.True(t, h.noDeprecation)
	require.True(t, h.throwDeprecation, "--no-deprecation must not overload throw/trace")
	require.True(t, h.traceDeprecation, "--no-deprecation must not overload throw/trace")
}

func TestApplyVMArgsUnrecognizedFlagIsFatal(t *testing.T) {
	h := &fakeVMArgHandler{}
	err := ApplyVMArgs([]string{"--not-a-real-flag"}, h)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "--not-a-real-flag", cfgErr.Flag)
}
