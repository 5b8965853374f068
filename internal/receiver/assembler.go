package receiver

import (
	"fmt"
	"hash"
	"io"
	"sort"
	"time"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/fec"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/protocol/packets/v1"
	"github.com/rs/zerolog/log"
)

// partialBlock buffers the received chunks of one in-flight block.
type partialBlock struct {
	shards    [][]byte // len N; nil until the slot's packet arrives
	seen      []bool   // header observed per slot (including header-only pads)
	lens      []uint16 // payload_len per seen slot
	received  int
	last      bool
	firstSeen time.Time
}

func newPartialBlock(n int) *partialBlock {
	return &partialBlock{
		shards:    make([][]byte, n),
		seen:      make([]bool, n),
		lens:      make([]uint16, n),
		firstSeen: time.Now(),
	}
}

// Assembler dedupes, reorders and reconstructs blocks, emitting the decoded
// data chunks downstream strictly in ascending (block_id, chunk_index)
// order. It keeps at most WindowBlocks partial blocks: a packet that far
// outruns the oldest unresolved block forces it to be resolved, lost or not.
type Assembler struct {
	cfg      config.Receive
	codec    *fec.Codec
	out      io.Writer
	digest   hash.Hash
	stats    *protocol.Stats
	window   map[uint32]*partialBlock
	nextEmit uint32
	lastSeen bool
	lastID   uint32
	lost     uint64
	outBytes uint64
}

func NewAssembler(out io.Writer, digest hash.Hash, cfg config.Receive, codec *fec.Codec, stats *protocol.Stats) *Assembler {
	return &Assembler{
		cfg:    cfg,
		codec:  codec,
		out:    out,
		digest: digest,
		stats:  stats,
		window: make(map[uint32]*partialBlock),
	}
}

// Offer ingests one parsed packet. Malformed or duplicate packets are
// absorbed; the returned error is only non-nil for fatal output failures.
func (a *Assembler) Offer(pkt *packets.PktChunk) error {
	if err := pkt.Validate(a.cfg.ChunkBytes, uint8(a.cfg.K), uint8(a.cfg.R)); err != nil {
		a.stats.AddMalformed()
		log.Debug().Err(err).Uint32("block_id", pkt.BlockID).Msg("Dropping malformed packet")
		return nil
	}
	// A short or empty payload is only legal on the terminal block
	if !pkt.Last() && !pkt.Parity() && int(pkt.PayloadLen) != a.cfg.ChunkBytes {
		a.stats.AddMalformed()
		return nil
	}

	if pkt.Last() && !a.lastSeen {
		a.lastSeen = true
		a.lastID = pkt.BlockID
		log.Debug().Uint32("block_id", pkt.BlockID).Msg("Terminal block observed")
	}
	if a.lastSeen && pkt.BlockID > a.lastID {
		// noise beyond the terminal block
		a.stats.AddMalformed()
		return nil
	}

	if pkt.BlockID < a.nextEmit {
		// block already retired; late duplicates are harmless
		a.stats.AddDuplicate()
		return nil
	}

	pb := a.window[pkt.BlockID]
	if pb == nil {
		// advance the window before admitting a far-future block
		for pkt.BlockID-a.nextEmit >= uint32(a.cfg.WindowBlocks) {
			if err := a.resolveNext(true); err != nil {
				return err
			}
		}
		pb = newPartialBlock(a.cfg.N())
		a.window[pkt.BlockID] = pb
	}

	i := int(pkt.ChunkIndex)
	if pb.seen[i] {
		a.stats.AddDuplicate()
		return nil
	}
	pb.seen[i] = true
	pb.lens[i] = pkt.PayloadLen
	if pkt.Last() {
		pb.last = true
	}

	// Store the shard zero-extended to the coding length; pad slots and the
	// short tail chunk code as zero-filled chunks.
	shard := make([]byte, a.cfg.ChunkBytes)
	copy(shard, pkt.Payload)
	pb.shards[i] = shard
	pb.received++

	return a.pump()
}

// pump emits consecutive ready blocks starting at nextEmit.
func (a *Assembler) pump() error {
	for {
		pb := a.window[a.nextEmit]
		if pb == nil || !a.ready(pb) {
			return nil
		}
		if err := a.resolveNext(false); err != nil {
			return err
		}
	}
}

// ready reports whether the block can be emitted without guessing: at least
// K chunks, and for the terminal block a layout fully pinned down by the
// headers seen so far. More redundant rounds may still be in flight, so
// heuristics wait for a forced resolution.
func (a *Assembler) ready(pb *partialBlock) bool {
	if pb.last {
		d, _, ok := a.headerLayout(pb)
		if !ok {
			return false
		}
		if d == 0 {
			return true
		}
	}
	return pb.received >= a.cfg.K
}

// headerLayout derives (dataCount, tailLen) for the terminal block from the
// headers seen so far. ok is false while any trailing slot's header is still
// outstanding: parity can recover a lost chunk's content but not its
// header, so an exact layout needs the observed lengths.
func (a *Assembler) headerLayout(pb *partialBlock) (d int, tail int, ok bool) {
	for i := 0; i < a.cfg.K; i++ {
		if pb.seen[i] && pb.lens[i] > 0 {
			d = i + 1
			tail = int(pb.lens[i])
		}
	}
	if d == 0 {
		// an empty stream's single packet is a seen pad at slot 0
		return 0, 0, pb.seen[0] && pb.lens[0] == 0
	}
	for i := d; i < a.cfg.K; i++ {
		if !pb.seen[i] {
			return d, tail, false
		}
	}
	return d, tail, true
}

// recoveredLayout pins down the terminal layout after reconstruction, when
// no more packets are coming. Headers win where present; for a slot whose
// every copy was lost, the recovered content decides: pad shards are
// all-zero by construction, so a non-zero shard must be data. A recovered
// tail chunk's true length is unknowable and is taken as full; the stream
// digest in the logs is the operator's cross-check.
func (a *Assembler) recoveredLayout(pb *partialBlock) (d int, tail int) {
	for i := a.cfg.K - 1; i >= 0; i-- {
		if pb.seen[i] {
			if pb.lens[i] > 0 {
				return i + 1, int(pb.lens[i])
			}
			continue // seen pad
		}
		if !allZero(pb.shards[i]) {
			return i + 1, a.cfg.ChunkBytes
		}
	}
	return 0, 0
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// resolveNext retires the oldest unresolved block: emitted downstream if it
// is reconstructable, declared lost otherwise. A forced resolution (window
// eviction, idle timeout, interruption) no longer waits for headers and
// falls back to the recovered layout.
func (a *Assembler) resolveNext(forced bool) error {
	id := a.nextEmit
	pb := a.window[id]
	delete(a.window, id)
	a.nextEmit = id + 1

	if pb == nil {
		a.declareLost(id, pb)
		return nil
	}

	headerOK := true
	d := a.cfg.K
	tail := a.cfg.ChunkBytes
	if pb.last {
		d, tail, headerOK = a.headerLayout(pb)
		if headerOK && d == 0 {
			return nil
		}
	}

	if pb.received < a.cfg.K || (!headerOK && !forced) {
		a.declareLost(id, pb)
		return nil
	}

	// Recover missing data slots from parity if any are absent
	missing := false
	for i := 0; i < a.cfg.K; i++ {
		if pb.shards[i] == nil {
			missing = true
			break
		}
	}
	if missing {
		if err := a.codec.Reconstruct(pb.shards); err != nil {
			log.Warn().Err(err).Uint32("block_id", id).Msg("Block reconstruction failed")
			a.declareLost(id, pb)
			return nil
		}
		a.stats.AddRecovered()
		log.Debug().Uint32("block_id", id).Msg("Block recovered from parity")
	}

	if pb.last && !headerOK {
		d, tail = a.recoveredLayout(pb)
		log.Debug().
			Uint32("block_id", id).
			Int("data_chunks", d).
			Msg("Terminal layout derived from recovered content")
	}

	for i := 0; i < d; i++ {
		payload := pb.shards[i]
		if i == d-1 {
			payload = payload[:tail]
		}
		if _, err := a.out.Write(payload); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		a.digest.Write(payload)
		a.outBytes += uint64(len(payload))
	}
	return nil
}

func (a *Assembler) declareLost(id uint32, pb *partialBlock) {
	a.lost++
	a.stats.AddLost()
	received := 0
	age := time.Duration(0)
	if pb != nil {
		received = pb.received
		age = time.Since(pb.firstSeen)
	}
	log.Warn().
		Uint32("block_id", id).
		Int("received", received).
		Int("needed", a.cfg.K).
		Str("age", age.String()).
		Msg("Block declared lost")
}

// Drain force-resolves every in-flight block in order. Called when the idle
// timeout fires or the receiver is interrupted.
func (a *Assembler) Drain() error {
	ids := make([]uint32, 0, len(a.window))
	for id := range a.window {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if id < a.nextEmit {
			continue
		}
		for a.nextEmit <= id {
			if err := a.resolveNext(true); err != nil {
				return err
			}
		}
	}
	if a.lastSeen {
		for a.nextEmit <= a.lastID {
			if err := a.resolveNext(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Done reports whether the terminal block and every block before it have
// been resolved, emitted or lost.
func (a *Assembler) Done() bool {
	return a.lastSeen && a.nextEmit > a.lastID
}

// Incomplete reports whether any data is known or suspected missing.
func (a *Assembler) Incomplete() bool {
	return !a.Done() || a.lost > 0
}

func (a *Assembler) OutBytes() uint64 {
	return a.outBytes
}

func (a *Assembler) LostBlocks() uint64 {
	return a.lost
}
