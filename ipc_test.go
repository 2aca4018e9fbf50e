package corert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectIPCEventDisconnect(t *testing.T) {
	require.Equal(t, EventDisconnect, SelectIPCEvent(IPCDisconnect))
}

func TestSelectIPCEventInternalMessage(t *testing.T) {
	payload := map[string]any{"cmd": "NODE_HANDLE"}
	require.Equal(t, EventInternalMessage, SelectIPCEvent(payload))
}

func TestSelectIPCEventOrdinaryMessage(t *testing.T) {
	require.Equal(t, EventMessage, SelectIPCEvent(map[string]any{"cmd": "user-defined"}))
	require.Equal(t, EventMessage, SelectIPCEvent("hello"))
	require.Equal(t, EventMessage, SelectIPCEvent(42))
}

func TestIPCCopyStringIsSharedNotCloned(t *testing.T) {
	s := "shared"
	cp := IPCCopy(s)
	require.Equal(t, s, cp)
}

func TestIPCCopyByteSliceIsCloned(t *testing.T) {
	b := []byte{1, 2, 3}
	cp := IPCCopy(b).([]byte)
	require.Equal(t, b, cp)

	b[0] = 99
	require.Equal(t, byte(1), cp[0], "mutating the source must not affect the copy")
}

func TestIPCCopyDeepCopiesNestedStructures(t *testing.T) {
	type inner struct {
		Values []int
	}
	type outer struct {
		Name  string
		Inner *inner
		Tags  map[string]string
	}

	src := &outer{
		Name:  "msg",
		Inner: &inner{Values: []int{1, 2, 3}},
		Tags:  map[string]string{"k": "v"},
	}

	cp := IPCCopy(src).(*outer)
	require.Equal(t, src.Name, cp.Name)
	require.Equal(t, src.Inner.Values, cp.Inner.Values)
	require.Equal(t, src.Tags, cp.Tags)

	// Mutating the source's nested structures must not affect the copy.
	src.Inner.Values[0] = 999
	src.Tags["k"] = "mutated"
	require.Equal(t, 1, cp.Inner.Values[0])
	require.Equal(t, "v", cp.Tags["k"])

	// And the copy must be an independent pointer.
	require.NotSame(t, src.Inner, cp.Inner)
}

func TestIPCCopyDropsFunctionFields(t *testing.T) {
	type withFunc struct {
		Handler func()
	}
	src := &withFunc{Handler: func() {}}
	cp := IPCCopy(src).(*withFunc)
	require.Nil(t, cp.Handler)
}
