package config

import (
	"fmt"
	"time"

	"github.com/goodieshq/godiode/internal/protocol"
)

const (
	DefaultPort             = 1234
	DefaultChunkBytes       = 1024
	DefaultDataChunks       = 64 // k
	DefaultParityChunks     = 32 // r
	DefaultWindowBlocks     = 64
	DefaultRateBytesPerSec  = 100_000_000
	DefaultRedundantFinal   = 3
	DefaultRedundantInitial = 1
	DefaultIdleTimeout      = 2 * time.Second

	// Largest payload that still fits one IPv4 UDP datagram with our header
	MaxChunkBytes = 65507 - protocol.HeaderSize

	// GF(2^8) bound; also keeps chunk_index in one byte
	MaxTotalChunks = 256
)

// Session holds the parameters both peers must agree on out of band.
// K and R are carried redundantly in every header as a sanity check;
// ChunkBytes is not on the wire.
type Session struct {
	ChunkBytes int // payload bytes per chunk
	K          int // data chunks per block
	R          int // parity chunks per block
}

func (s Session) N() int { return s.K + s.R }

func (s Session) Validate() error {
	if s.ChunkBytes < 1 || s.ChunkBytes > MaxChunkBytes {
		return fmt.Errorf("%w: %d not in [1, %d]", protocol.ErrInvalidChunkSize, s.ChunkBytes, MaxChunkBytes)
	}
	if s.K < 1 || s.K > 255 || s.R < 0 || s.R > 255 || s.K+s.R > MaxTotalChunks {
		return fmt.Errorf("%w: k=%d r=%d", protocol.ErrInvalidCodeParams, s.K, s.R)
	}
	return nil
}

// Send configures the sending peer.
type Send struct {
	Session
	Port             uint16
	RateBytesPerSec  int64 // target throughput for the paced emitter
	RedundantFinal   int   // rounds for the terminal block's packets
	RedundantInitial int   // rounds for block 0's packets (warmup)
}

func (c Send) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.RateBytesPerSec < 1 {
		return fmt.Errorf("%w: %d", protocol.ErrInvalidRate, c.RateBytesPerSec)
	}
	if c.RedundantFinal < 1 {
		return fmt.Errorf("%w: redundant-final=%d", protocol.ErrInvalidRedundancy, c.RedundantFinal)
	}
	if c.RedundantInitial < 1 {
		return fmt.Errorf("%w: redundant-initial=%d", protocol.ErrInvalidRedundancy, c.RedundantInitial)
	}
	return nil
}

// Receive configures the receiving peer.
type Receive struct {
	Session
	Port         uint16
	WindowBlocks int           // max in-flight partial blocks
	IdleTimeout  time.Duration // silence after which the transfer is closed out
}

func (c Receive) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.WindowBlocks < 1 {
		return fmt.Errorf("%w: %d", protocol.ErrInvalidWindow, c.WindowBlocks)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: %s", protocol.ErrInvalidTimeout, c.IdleTimeout)
	}
	return nil
}

// NewSend returns a Send config populated with the defaults.
func NewSend() Send {
	return Send{
		Session: Session{
			ChunkBytes: DefaultChunkBytes,
			K:          DefaultDataChunks,
			R:          DefaultParityChunks,
		},
		Port:             DefaultPort,
		RateBytesPerSec:  DefaultRateBytesPerSec,
		RedundantFinal:   DefaultRedundantFinal,
		RedundantInitial: DefaultRedundantInitial,
	}
}

// NewReceive returns a Receive config populated with the defaults.
func NewReceive() Receive {
	return Receive{
		Session: Session{
			ChunkBytes: DefaultChunkBytes,
			K:          DefaultDataChunks,
			R:          DefaultParityChunks,
		},
		Port:         DefaultPort,
		WindowBlocks: DefaultWindowBlocks,
		IdleTimeout:  DefaultIdleTimeout,
	}
}
