package receiver

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net"
	"time"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/fec"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/protocol/packets/v1"
	"github.com/goodieshq/godiode/internal/utils"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const maxRecvErrors = 5

// Receiver listens for packets on a UDP socket and reassembles the stream
// onto the output sink. There is no back-channel: completion is decided by
// the terminal block plus the idle timeout.
type Receiver struct {
	cfg   config.Receive
	conn  net.PacketConn
	out   *bufio.Writer
	dump  *PacketDump
	id    ulid.ULID
	stats protocol.Stats
}

func New(conn net.PacketConn, out io.Writer, cfg config.Receive) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := utils.NewULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer id: %w", err)
	}
	return &Receiver{
		cfg:  cfg,
		conn: conn,
		out:  bufio.NewWriter(out),
		id:   id,
	}, nil
}

func (r *Receiver) Stats() *protocol.Stats {
	return &r.stats
}

// SetPacketDump attaches a CSV dump of every received datagram.
func (r *Receiver) SetPacketDump(d *PacketDump) {
	r.dump = d
}

// Run receives until the stream terminates cleanly, the idle timeout fires,
// or the context is cancelled. It returns protocol.ErrIncompleteStream when
// the terminal block was never resolved or blocks were lost beyond repair.
func (r *Receiver) Run(ctx context.Context) error {
	codec, err := fec.NewCodec(r.cfg.K, r.cfg.R)
	if err != nil {
		return err
	}

	digest := sha256.New()
	asm := NewAssembler(r.out, digest, r.cfg, codec, &r.stats)

	log.Info().
		Str("transfer_id", r.id.String()).
		Int("chunk_bytes", r.cfg.ChunkBytes).
		Int("k", r.cfg.K).
		Int("r", r.cfg.R).
		Int("window", r.cfg.WindowBlocks).
		Msg("Listening")

	go protocol.ProgressLogger(ctx, &r.stats)

	start := time.Now()

	poll := r.cfg.IdleTimeout / 4
	if poll > 500*time.Millisecond {
		poll = 500 * time.Millisecond
	} else if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}

	// Oversized by one byte so a too-large datagram is detectable
	buf := make([]byte, protocol.HeaderSize+r.cfg.ChunkBytes+1)
	lastPacket := time.Now()
	recvErrors := 0

	for {
		select {
		case <-ctx.Done():
			// graceful close: drain the window best-effort, then flush
			log.Warn().Msg("Interrupted, draining window")
			return r.finish(asm, digest, start)
		default:
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastPacket) >= r.cfg.IdleTimeout {
					log.Debug().Msg("Idle timeout elapsed")
					return r.finish(asm, digest, start)
				}
				continue
			}
			recvErrors++
			if recvErrors > maxRecvErrors {
				return fmt.Errorf("failed to receive packet: %w", err)
			}
			log.Warn().Err(err).Msg("Transient receive error")
			continue
		}
		recvErrors = 0
		lastPacket = time.Now()
		r.stats.AddPacketRcvd(uint64(n))

		if r.dump != nil {
			if err := r.dump.Record(buf[:n]); err != nil {
				return fmt.Errorf("failed to write packet details: %w", err)
			}
		}

		pkt, err := packets.UnmarshalChunk(buf[:n])
		if err != nil {
			r.stats.AddMalformed()
			log.Debug().Err(err).Int("len", n).Msg("Dropping malformed datagram")
			continue
		}

		if err := asm.Offer(pkt); err != nil {
			return err
		}

		if asm.Done() {
			return r.finish(asm, digest, start)
		}
	}
}

// finish drains, flushes and logs the outcome, translating residual loss
// into ErrIncompleteStream.
func (r *Receiver) finish(asm *Assembler, digest hash.Hash, start time.Time) error {
	if err := asm.Drain(); err != nil {
		return err
	}
	if err := r.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	elapsed := time.Since(start)
	evt := log.Info()
	if asm.Incomplete() {
		evt = log.Warn()
	}
	evt.
		Str("transfer_id", r.id.String()).
		Uint64("packets", r.stats.GetPacketsRcvd()).
		Str("total_rcvd", utils.DisplayB(r.stats.GetBytesRcvd())).
		Str("output", utils.DisplayB(asm.OutBytes())).
		Uint64("duplicates", r.stats.GetDuplicates()).
		Uint64("malformed", r.stats.GetMalformed()).
		Uint64("recovered", r.stats.GetRecovered()).
		Uint64("lost", asm.LostBlocks()).
		Str("duration", utils.DisplayTime(elapsed)).
		Str("digest", hex.EncodeToString(digest.Sum(nil))).
		Msg("Transfer closed")

	if asm.Incomplete() {
		return protocol.ErrIncompleteStream
	}
	return nil
}
