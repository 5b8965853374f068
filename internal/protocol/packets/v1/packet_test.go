package packets

import (
	"testing"

	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	payload := []byte("hello")
	pkt := NewDataChunk(7, 2, 4, 2, true, payload)

	buf, err := pkt.Marshal()
	require.NoError(t, err)
	require.Len(t, buf, protocol.HeaderSize+len(payload))

	parsed, err := UnmarshalChunk(buf)
	require.NoError(t, err)
	assert.Equal(t, pkt.Header, parsed.Header)
	assert.Equal(t, payload, parsed.Payload)

	// re-serializing a parsed packet must produce the original bytes
	buf2, err := parsed.Marshal()
	require.NoError(t, err)
	assert.Equal(t, buf, buf2)
}

func TestChunkHeaderFields(t *testing.T) {
	pkt := NewParityChunk(0xDEADBEEF, 65, 64, 32, false, make([]byte, 1024))
	buf, err := pkt.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalChunk(buf)
	require.NoError(t, err)
	assert.True(t, parsed.Parity())
	assert.False(t, parsed.Last())
	assert.Equal(t, uint32(0xDEADBEEF), parsed.BlockID)
	assert.Equal(t, uint8(65), parsed.ChunkIndex)
	assert.Equal(t, uint8(64), parsed.K)
	assert.Equal(t, uint8(32), parsed.R)
	assert.Equal(t, uint16(1024), parsed.PayloadLen)
}

func TestChunkPadHeaderOnly(t *testing.T) {
	pkt := NewDataChunk(3, 9, 16, 4, true, nil)
	buf, err := pkt.Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, protocol.HeaderSize)

	parsed, err := UnmarshalChunk(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), parsed.PayloadLen)
	assert.Empty(t, parsed.Payload)
}

func TestUnmarshalChunkRejects(t *testing.T) {
	good, err := NewDataChunk(0, 0, 4, 2, false, make([]byte, 8)).Marshal()
	require.NoError(t, err)

	t.Run("truncated header", func(t *testing.T) {
		_, err := UnmarshalChunk(good[:protocol.HeaderSize-1])
		assert.ErrorIs(t, err, protocol.ErrInvalidPacketSize)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] ^= 0xFF
		_, err := UnmarshalChunk(bad)
		assert.ErrorIs(t, err, protocol.ErrInvalidMagic)
	})

	t.Run("reserved flags", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[2] |= 0x80
		_, err := UnmarshalChunk(bad)
		assert.ErrorIs(t, err, protocol.ErrInvalidFlags)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := UnmarshalChunk(good[:len(good)-1])
		assert.ErrorIs(t, err, protocol.ErrInvalidPacketSize)
	})
}

func TestValidate(t *testing.T) {
	const chunkBytes = 16

	t.Run("session mismatch", func(t *testing.T) {
		pkt := NewDataChunk(0, 0, 8, 2, false, make([]byte, chunkBytes))
		assert.ErrorIs(t, pkt.Validate(chunkBytes, 4, 2), protocol.ErrSessionMismatch)
	})

	t.Run("index out of range", func(t *testing.T) {
		pkt := NewDataChunk(0, 6, 4, 2, false, make([]byte, chunkBytes))
		assert.ErrorIs(t, pkt.Validate(chunkBytes, 4, 2), protocol.ErrInvalidIndex)
	})

	t.Run("data index in parity range", func(t *testing.T) {
		pkt := NewDataChunk(0, 4, 4, 2, false, make([]byte, chunkBytes))
		assert.ErrorIs(t, pkt.Validate(chunkBytes, 4, 2), protocol.ErrInvalidIndex)
	})

	t.Run("parity must be full length", func(t *testing.T) {
		pkt := NewParityChunk(0, 4, 4, 2, false, make([]byte, chunkBytes-1))
		assert.ErrorIs(t, pkt.Validate(chunkBytes, 4, 2), protocol.ErrInvalidPayloadLen)
	})

	t.Run("oversized payload", func(t *testing.T) {
		pkt := NewDataChunk(0, 0, 4, 2, false, make([]byte, chunkBytes+1))
		assert.ErrorIs(t, pkt.Validate(chunkBytes, 4, 2), protocol.ErrInvalidPayloadLen)
	})

	t.Run("valid", func(t *testing.T) {
		pkt := NewParityChunk(1, 5, 4, 2, true, make([]byte, chunkBytes))
		assert.NoError(t, pkt.Validate(chunkBytes, 4, 2))
	})
}
