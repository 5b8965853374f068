package packets

import (
	"github.com/goodieshq/godiode/internal/protocol"
)

// Chunk packet: the only packet type on the wire. One UDP datagram carries
// exactly one chunk plus the common header. Pad slots of the terminal block
// are sent header-only with PayloadLen == 0.
type PktChunk struct {
	protocol.Header        // Common packet header
	Payload         []byte // Raw data or parity octets, len == PayloadLen
}

// NewDataChunk builds a data chunk packet. A short payload is only legal on
// the terminal data chunk of the LAST_BLOCK; pad slots pass an empty payload.
func NewDataChunk(blockID uint32, index uint8, k, r uint8, last bool, payload []byte) *PktChunk {
	var flags protocol.DiodeFlags
	if last {
		flags |= protocol.FlagLastBlock
	}
	return &PktChunk{
		Header: protocol.Header{
			Magic:      protocol.MAGIC,
			Flags:      flags,
			K:          k,
			R:          r,
			ChunkIndex: index,
			BlockID:    blockID,
			PayloadLen: uint16(len(payload)),
		},
		Payload: payload,
	}
}

// NewParityChunk builds a parity chunk packet. Parity payloads are always
// full-length: they encode the zero-padded block.
func NewParityChunk(blockID uint32, index uint8, k, r uint8, last bool, payload []byte) *PktChunk {
	pkt := NewDataChunk(blockID, index, k, r, last, payload)
	pkt.Flags |= protocol.FlagParity
	return pkt
}

func (p *PktChunk) Marshal() ([]byte, error) {
	if int(p.PayloadLen) != len(p.Payload) {
		return nil, protocol.ErrInvalidPayloadLen
	}

	buf := make([]byte, protocol.HeaderSize+len(p.Payload))
	if err := protocol.MarshalHeader(buf, &p.Header); err != nil {
		return nil, err
	}
	copy(buf[protocol.HeaderSize:], p.Payload)
	return buf, nil
}

// UnmarshalChunk parses a raw datagram into a chunk packet. The datagram
// length must be exactly HeaderSize + PayloadLen; session-level validation
// (k/r match, payload length bounds) is the receiver's job.
func UnmarshalChunk(data []byte) (*PktChunk, error) {
	header, err := protocol.UnmarshalHeader(data)
	if err != nil {
		return nil, err
	}

	if len(data) != protocol.HeaderSize+int(header.PayloadLen) {
		return nil, protocol.ErrInvalidPacketSize
	}

	var pkt PktChunk
	pkt.Header = *header
	pkt.Payload = make([]byte, header.PayloadLen)
	copy(pkt.Payload, data[protocol.HeaderSize:])

	return &pkt, nil
}

// Validate checks the packet against the session's fixed parameters.
func (p *PktChunk) Validate(chunkBytes int, k, r uint8) error {
	if p.K != k || p.R != r {
		return protocol.ErrSessionMismatch
	}
	if int(p.ChunkIndex) >= int(k)+int(r) {
		return protocol.ErrInvalidIndex
	}
	if int(p.PayloadLen) > chunkBytes {
		return protocol.ErrInvalidPayloadLen
	}
	if p.Parity() {
		if int(p.ChunkIndex) < int(k) {
			return protocol.ErrInvalidIndex
		}
		if int(p.PayloadLen) != chunkBytes {
			return protocol.ErrInvalidPayloadLen
		}
	} else if int(p.ChunkIndex) >= int(k) {
		return protocol.ErrInvalidIndex
	}
	return nil
}
