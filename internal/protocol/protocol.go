package protocol

import "encoding/binary"

// 2-byte magic constant at the start of each packet. It doubles as the
// protocol version tag: any wire format change gets a new magic.
const MAGIC uint16 = 0xD10D

var be = binary.BigEndian

// Flag bits carried in the header's flags byte. Bits 2-7 are reserved and
// must be zero.
type DiodeFlags uint8

const (
	FlagLastBlock DiodeFlags = 1 << 0 // packet belongs to the terminal block
	FlagParity    DiodeFlags = 1 << 1 // payload is a parity chunk

	flagsReserved = ^uint8(FlagLastBlock | FlagParity)
)

type Packet interface {
	Marshal() ([]byte, error)
}

// Common header for all packets. 12 bytes on the wire, big-endian.
type Header struct {
	Magic      uint16     // MAGIC constant
	Flags      DiodeFlags // LAST_BLOCK / PARITY bits
	K          uint8      // data chunks per block for this session
	R          uint8      // parity chunks per block for this session
	ChunkIndex uint8      // position within the block, 0..K+R-1
	BlockID    uint32     // 0-based block number
	PayloadLen uint16     // valid octets in the payload
}

const HeaderSize = 12

func (h *Header) Last() bool {
	return h.Flags&FlagLastBlock != 0
}

func (h *Header) Parity() bool {
	return h.Flags&FlagParity != 0
}

// UnmarshalHeader parses raw bytes into a Header struct
func UnmarshalHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidPacketSize
	}

	var header Header
	header.Magic = be.Uint16(data[0:2])
	if header.Magic != MAGIC {
		return nil, ErrInvalidMagic
	}

	header.Flags = DiodeFlags(data[2])
	if uint8(header.Flags)&flagsReserved != 0 {
		return nil, ErrInvalidFlags
	}

	header.K = data[3]
	header.R = data[4]
	header.ChunkIndex = data[5]
	header.BlockID = be.Uint32(data[6:10])
	header.PayloadLen = be.Uint16(data[10:12])

	return &header, nil
}

// MarshalHeader serializes the header into the first HeaderSize bytes of buf
func MarshalHeader(buf []byte, h *Header) error {
	if len(buf) < HeaderSize {
		return ErrInvalidPacketSize
	}
	if h.Magic != MAGIC {
		return ErrInvalidMagic
	}

	be.PutUint16(buf[0:2], h.Magic)
	buf[2] = byte(h.Flags)
	buf[3] = h.K
	buf[4] = h.R
	buf[5] = h.ChunkIndex
	be.PutUint32(buf[6:10], h.BlockID)
	be.PutUint16(buf[10:12], h.PayloadLen)
	return nil
}
