package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	payload := bytes.Repeat([]byte(`{"position_key":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"}`), 100)
	packed, err := c.Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(payload))

	unpacked, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, payload, unpacked)
}

func TestZstdEmptyInput(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	packed, err := c.Compress(nil)
	require.NoError(t, err)

	unpacked, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Empty(t, unpacked)
}

func TestZstdDecompressGarbage(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress([]byte("definitely not zstd"))
	assert.Error(t, err)
}
