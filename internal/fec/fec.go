// Package fec provides the systematic Reed-Solomon code over GF(2^8) used
// for open-loop loss recovery. The generator matrix is fixed by (k, r), so
// both peers derive the identical code from the session parameters alone.
package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

type Codec struct {
	k, r int
	enc  reedsolomon.Encoder // nil when r == 0
}

// NewCodec builds the codec for k data shards and r parity shards.
// k+r must not exceed 256, the GF(2^8) field bound.
func NewCodec(k, r int) (*Codec, error) {
	if k < 1 || r < 0 || k+r > 256 {
		return nil, fmt.Errorf("unsupported code parameters k=%d r=%d", k, r)
	}

	c := &Codec{k: k, r: r}
	if r > 0 {
		enc, err := reedsolomon.New(k, r)
		if err != nil {
			return nil, fmt.Errorf("failed to build reed-solomon encoder: %w", err)
		}
		c.enc = enc
	}
	return c, nil
}

func (c *Codec) K() int { return c.k }
func (c *Codec) R() int { return c.r }
func (c *Codec) N() int { return c.k + c.r }

// Parity computes the r parity shards for the k equal-length data shards.
// The data shards are not modified.
func (c *Codec) Parity(data [][]byte) ([][]byte, error) {
	if len(data) != c.k {
		return nil, fmt.Errorf("expected %d data shards, got %d", c.k, len(data))
	}
	if c.r == 0 {
		return nil, nil
	}

	shardLen := len(data[0])
	shards := make([][]byte, c.k+c.r)
	copy(shards, data)
	for i := 0; i < c.r; i++ {
		shards[c.k+i] = make([]byte, shardLen)
	}

	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("failed to encode parity shards: %w", err)
	}
	return shards[c.k:], nil
}

// Reconstruct fills in the missing (nil) data shards of a block in place.
// shards must have length k+r; any k present shards suffice.
func (c *Codec) Reconstruct(shards [][]byte) error {
	if len(shards) != c.k+c.r {
		return fmt.Errorf("expected %d shards, got %d", c.k+c.r, len(shards))
	}

	missing := false
	present := 0
	for i, s := range shards {
		if s != nil {
			present++
		} else if i < c.k {
			missing = true
		}
	}
	if !missing {
		return nil
	}
	if present < c.k || c.enc == nil {
		return fmt.Errorf("only %d of %d shards present, need %d", present, c.k+c.r, c.k)
	}

	if err := c.enc.ReconstructData(shards); err != nil {
		return fmt.Errorf("failed to reconstruct data shards: %w", err)
	}
	return nil
}
