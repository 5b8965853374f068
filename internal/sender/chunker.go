package sender

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/goodieshq/godiode/internal/config"
)

// Block is one FEC coding unit: K data slots plus the bookkeeping needed to
// serialize it. The tail of the terminal block is zero padded for coding;
// pad slots never carry payload on the wire.
type Block struct {
	ID        uint32
	Shards    [][]byte // len K, each ChunkBytes; pad slots are all zeroes
	Parity    [][]byte // len R, filled by the encoding stage
	DataCount int      // real data chunks in this block, 0..K
	TailLen   int      // valid octets in the last real chunk
	Last      bool
}

// Chunker partitions the input octet stream into blocks of K chunks,
// strictly in order. The terminal block is detected by reading ahead, so
// an input that ends exactly on a block boundary still gets LAST_BLOCK set
// on its final block.
type Chunker struct {
	r      *bufio.Reader
	cfg    config.Session
	nextID uint32
	done   bool
}

func NewChunker(r io.Reader, cfg config.Session) *Chunker {
	return &Chunker{
		r:   bufio.NewReaderSize(r, cfg.ChunkBytes),
		cfg: cfg,
	}
}

// Next returns the next block of input. After the terminal block has been
// returned, Next returns io.EOF. An empty input yields a single terminal
// block with DataCount == 0.
func (c *Chunker) Next() (*Block, error) {
	if c.done {
		return nil, io.EOF
	}

	b := &Block{
		ID:     c.nextID,
		Shards: make([][]byte, c.cfg.K),
	}
	for i := range b.Shards {
		b.Shards[i] = make([]byte, c.cfg.ChunkBytes)
	}

	for i := 0; i < c.cfg.K; i++ {
		n, err := io.ReadFull(c.r, b.Shards[i])
		if n > 0 {
			b.DataCount = i + 1
			b.TailLen = n
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			b.Last = true
			c.done = true
			c.nextID++
			return b, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
	}

	// The block is full; peek ahead so the final block is marked terminal
	if _, err := c.r.Peek(1); errors.Is(err, io.EOF) {
		b.Last = true
		c.done = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	c.nextID++
	return b, nil
}
