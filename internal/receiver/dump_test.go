package receiver

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/goodieshq/godiode/internal/protocol/packets/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.csv")
	dump, err := OpenPacketDump(path)
	require.NoError(t, err)

	frame, err := packets.NewDataChunk(3, 1, 4, 2, false, []byte("abcd")).Marshal()
	require.NoError(t, err)
	require.NoError(t, dump.Record(frame))
	require.NoError(t, dump.Record([]byte("not a packet")))
	require.NoError(t, dump.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"ID", "PacketLength", "BlockID", "ChunkIndex", "Flags", "PayloadDigest"}, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "3", rows[1][2])
	assert.Equal(t, "1", rows[1][3])
	// the malformed datagram still gets a row, header fields blank
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "", rows[2][2])
}
