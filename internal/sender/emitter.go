package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/protocol/packets/v1"
	"golang.org/x/time/rate"
)

const (
	// Datagrams sent back to back before pacing catches up
	packetBurst = 10

	sendRetries = 5
	sendBackoff = 2 * time.Millisecond
)

// Emitter serializes blocks into packets and transmits them over a single
// UDP socket at a bounded byte rate. The receiver cannot exert backpressure,
// so the limiter is the only thing protecting the link.
type Emitter struct {
	conn    io.Writer
	cfg     config.Send
	limiter *rate.Limiter
	stats   *protocol.Stats
}

func NewEmitter(conn io.Writer, cfg config.Send, stats *protocol.Stats) *Emitter {
	wireBytes := cfg.ChunkBytes + protocol.HeaderSize
	return &Emitter{
		conn:    conn,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateBytesPerSec), wireBytes*packetBurst),
		stats:   stats,
	}
}

// EmitBlock sends the block's packets: data chunks 0..K-1 in order, then
// parity chunks K..N-1. The terminal block's packets are repeated
// RedundantFinal times and block 0's RedundantInitial times; duplicates are
// idempotent on the receiver.
func (e *Emitter) EmitBlock(ctx context.Context, b *Block) error {
	rounds := 1
	if b.ID == 0 && e.cfg.RedundantInitial > rounds {
		rounds = e.cfg.RedundantInitial
	}
	if b.Last && e.cfg.RedundantFinal > rounds {
		rounds = e.cfg.RedundantFinal
	}

	k := uint8(e.cfg.K)
	r := uint8(e.cfg.R)

	for round := 0; round < rounds; round++ {
		if b.DataCount == 0 {
			// Empty stream: a single header-only terminal packet so the
			// receiver observes a definite termination
			pkt := packets.NewDataChunk(b.ID, 0, k, r, true, nil)
			if err := e.send(ctx, pkt); err != nil {
				return err
			}
			continue
		}

		for i := 0; i < e.cfg.K; i++ {
			var payload []byte
			switch {
			case i < b.DataCount-1:
				payload = b.Shards[i]
			case i == b.DataCount-1:
				payload = b.Shards[i][:b.TailLen]
			default:
				// pad slot, header only
			}
			pkt := packets.NewDataChunk(b.ID, uint8(i), k, r, b.Last, payload)
			if err := e.send(ctx, pkt); err != nil {
				return err
			}
		}

		for j, par := range b.Parity {
			pkt := packets.NewParityChunk(b.ID, uint8(e.cfg.K+j), k, r, b.Last, par)
			if err := e.send(ctx, pkt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Emitter) send(ctx context.Context, pkt *packets.PktChunk) error {
	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	if err := e.limiter.WaitN(ctx, len(buf)); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		_, lastErr = e.conn.Write(buf)
		if lastErr == nil {
			e.stats.AddPacketSent(uint64(len(buf)))
			return nil
		}
		if errors.Is(lastErr, syscall.ECONNREFUSED) {
			// ICMP unreachable echoed onto a connected UDP socket. A real
			// diode physically cannot deliver it; on loopback links it only
			// means the receiver already closed. Either way there is no
			// back-channel to honor.
			return nil
		}
		if !isTransient(lastErr) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * sendBackoff):
		}
	}
	return fmt.Errorf("failed to send packet: %w", lastErr)
}

// isTransient reports whether a socket send error is worth retrying.
// ENOBUFS means the kernel's send buffer is momentarily full.
func isTransient(err error) bool {
	return errors.Is(err, syscall.ENOBUFS) || errors.Is(err, syscall.EAGAIN)
}
