package cmd

import (
	"bytes"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/require"
)

func TestHexU32(t *testing.T) {
	require.Equal(t, "0000002a", HexU32(0x2A).String())
	require.Equal(t, "deadbeef", HexU32(0xDEADBEEF).String())

	raw, err := HexU32(0x180).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "00000180", string(raw))
}

func TestLoggingWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &LoggingWriter{Name: "0", Log: Logger(&buf, slog.LevelInfo)}

	n, err := lw.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Contains(t, buf.String(), `text="hello\n"`)

	buf.Reset()
	_, err = lw.Write([]byte{0x00, 0xFF})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "data=0x00ff")
}
