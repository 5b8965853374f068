package sender

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/fec"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/utils"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Sender streams the input through the chunker, FEC encoder and paced
// emitter. It keeps no per-receiver state: blocks are emitted once, in
// order, and never revisited.
type Sender struct {
	cfg   config.Send
	conn  io.Writer
	in    io.Reader
	id    ulid.ULID
	stats protocol.Stats
}

// New validates the configuration and builds a sender writing datagrams to
// conn. conn must be a datagram-oriented connection: each Write becomes one
// packet on the wire.
func New(conn io.Writer, in io.Reader, cfg config.Send) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := utils.NewULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer id: %w", err)
	}
	return &Sender{
		cfg:  cfg,
		conn: conn,
		in:   in,
		id:   id,
	}, nil
}

func (s *Sender) Stats() *protocol.Stats {
	return &s.stats
}

// Run reads the input to exhaustion and transmits it. It returns once the
// terminal block's final redundant round has been handed to the socket.
func (s *Sender) Run(ctx context.Context) error {
	codec, err := fec.NewCodec(s.cfg.K, s.cfg.R)
	if err != nil {
		return err
	}

	digest := sha256.New()
	chunker := NewChunker(io.TeeReader(s.in, digest), s.cfg.Session)
	emitter := NewEmitter(s.conn, s.cfg, &s.stats)

	log.Info().
		Str("transfer_id", s.id.String()).
		Int("chunk_bytes", s.cfg.ChunkBytes).
		Int("k", s.cfg.K).
		Int("r", s.cfg.R).
		Str("rate", utils.DisplayBPS(uint64(s.cfg.RateBytesPerSec), time.Second)).
		Msg("Starting transfer")

	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	blocks := make(chan *Block, 2)

	// Chunking and parity encoding
	g.Go(func() error {
		defer close(blocks)
		for {
			b, err := chunker.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if b.DataCount > 0 && codec.R() > 0 {
				par, err := codec.Parity(b.Shards)
				if err != nil {
					return err
				}
				b.Parity = par
			}
			select {
			case blocks <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	// Paced emission, in block order
	g.Go(func() error {
		for b := range blocks {
			log.Debug().
				Uint32("block_id", b.ID).
				Int("data_chunks", b.DataCount).
				Bool("last", b.Last).
				Msg("Emitting block")
			if err := emitter.EmitBlock(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})

	go protocol.ProgressLogger(ctx, &s.stats)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Str("transfer_id", s.id.String()).
		Uint64("packets", s.stats.GetPacketsSent()).
		Str("total_sent", utils.DisplayB(s.stats.GetBytesSent())).
		Str("avg_rate", utils.DisplayBPS(s.stats.GetBytesSent(), elapsed)).
		Str("duration", utils.DisplayTime(elapsed)).
		Str("digest", hex.EncodeToString(digest.Sum(nil))).
		Msg("Transfer complete")

	return nil
}
