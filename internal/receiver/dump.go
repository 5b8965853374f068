package receiver

import (
	"encoding/csv"
	"fmt"
	"hash/crc32"
	"os"
	"strconv"

	"github.com/goodieshq/godiode/internal/protocol"
)

// PacketDump writes one CSV row per received datagram, for offline loss and
// reordering analysis.
type PacketDump struct {
	f *os.File
	w *csv.Writer
	n uint64
}

func OpenPacketDump(path string) (*PacketDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet details file: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{"ID", "PacketLength", "BlockID", "ChunkIndex", "Flags", "PayloadDigest"}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write packet details header: %w", err)
	}
	return &PacketDump{f: f, w: w}, nil
}

// Record logs one raw datagram. The digest covers the octets after the
// header. Unparseable datagrams still get a row with the header fields blank
// and a digest of the whole datagram.
func (d *PacketDump) Record(data []byte) error {
	row := []string{
		strconv.FormatUint(d.n, 10),
		strconv.Itoa(len(data)),
		"", "", "", "",
	}
	payload := data
	if h, err := protocol.UnmarshalHeader(data); err == nil {
		row[2] = strconv.FormatUint(uint64(h.BlockID), 10)
		row[3] = strconv.Itoa(int(h.ChunkIndex))
		row[4] = strconv.Itoa(int(h.Flags))
		payload = data[protocol.HeaderSize:]
	}
	row[5] = fmt.Sprintf("%08x", crc32.ChecksumIEEE(payload))
	d.n++
	if err := d.w.Write(row); err != nil {
		return fmt.Errorf("failed to write packet details row: %w", err)
	}
	return nil
}

func (d *PacketDump) Close() error {
	d.w.Flush()
	if err := d.w.Error(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
