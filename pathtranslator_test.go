package corert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathTranslatorRoundTrip(t *testing.T) {
	tr := NewPathTranslator("/srv/root", map[string]string{
		"/data":      "/mnt/data",
		"/data/logs": "/var/log/app", // longer prefix must win over /data
	})

	phys, err := tr.Translate("/data/logs/app.log")
	require.NoError(t, err)
	require.Equal(t, "/var/log/app/app.log", phys)

	phys, err = tr.Translate("/data/config.json")
	require.NoError(t, err)
	require.Equal(t, "/mnt/data/config.json", phys)

	phys, err = tr.Translate("/other/thing.txt")
	require.NoError(t, err)
	require.Equal(t, "/srv/root/other/thing.txt", phys)

	virt, err := tr.ReverseTranslate("/var/log/app/app.log")
	require.NoError(t, err)
	require.Equal(t, "/data/logs/app.log", virt)

	virt, err = tr.ReverseTranslate("/srv/root/other/thing.txt")
	require.NoError(t, err)
	require.Equal(t, "/other/thing.txt", virt)
}

func TestPathTranslatorReverseOutsideRoot(t *testing.T) {
	tr := NewPathTranslator("/srv/root", nil)
	_, err := tr.ReverseTranslate("/completely/unrelated")
	require.ErrorIs(t, err, ErrOutsideRoot)
}
