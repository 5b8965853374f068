package fec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomShards(t *testing.T, k, size int, seed int64) [][]byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	shards := make([][]byte, k)
	for i := range shards {
		shards[i] = make([]byte, size)
		rng.Read(shards[i])
	}
	return shards
}

func TestCodecParams(t *testing.T) {
	_, err := NewCodec(0, 2)
	assert.Error(t, err)
	_, err = NewCodec(4, -1)
	assert.Error(t, err)
	_, err = NewCodec(200, 100)
	assert.Error(t, err)

	c, err := NewCodec(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, c.K())
	assert.Equal(t, 2, c.R())
	assert.Equal(t, 6, c.N())
}

func TestParityDeterministic(t *testing.T) {
	// Both peers must derive the identical code from (k, r) alone
	data := randomShards(t, 8, 64, 1)

	c1, err := NewCodec(8, 4)
	require.NoError(t, err)
	c2, err := NewCodec(8, 4)
	require.NoError(t, err)

	p1, err := c1.Parity(data)
	require.NoError(t, err)
	p2, err := c2.Parity(data)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	require.Len(t, p1, 4)
}

func TestReconstructAnyLoss(t *testing.T) {
	const k, r, size = 4, 2, 32
	c, err := NewCodec(k, r)
	require.NoError(t, err)

	data := randomShards(t, k, size, 2)
	parity, err := c.Parity(data)
	require.NoError(t, err)

	// losing any subset of <= r chunks still reconstructs the data
	for i := 0; i < k+r; i++ {
		for j := i + 1; j < k+r; j++ {
			shards := make([][]byte, k+r)
			for n := 0; n < k; n++ {
				shards[n] = append([]byte(nil), data[n]...)
			}
			for n := 0; n < r; n++ {
				shards[k+n] = append([]byte(nil), parity[n]...)
			}
			shards[i] = nil
			shards[j] = nil

			require.NoError(t, c.Reconstruct(shards))
			for n := 0; n < k; n++ {
				assert.Equal(t, data[n], shards[n], "shard %d after losing %d and %d", n, i, j)
			}
		}
	}
}

func TestReconstructBeyondTolerance(t *testing.T) {
	const k, r, size = 4, 2, 32
	c, err := NewCodec(k, r)
	require.NoError(t, err)

	data := randomShards(t, k, size, 3)
	parity, err := c.Parity(data)
	require.NoError(t, err)

	shards := make([][]byte, k+r)
	copy(shards, data)
	copy(shards[k:], parity)
	shards[0] = nil
	shards[1] = nil
	shards[4] = nil

	assert.Error(t, c.Reconstruct(shards))
}

func TestReconstructNothingMissing(t *testing.T) {
	c, err := NewCodec(3, 1)
	require.NoError(t, err)

	data := randomShards(t, 3, 16, 4)
	shards := make([][]byte, 4)
	copy(shards, data)
	// parity slot absent but no data slot missing: nothing to do
	assert.NoError(t, c.Reconstruct(shards))
}

func TestZeroParity(t *testing.T) {
	c, err := NewCodec(4, 0)
	require.NoError(t, err)

	data := randomShards(t, 4, 16, 5)
	parity, err := c.Parity(data)
	require.NoError(t, err)
	assert.Nil(t, parity)

	shards := make([][]byte, 4)
	copy(shards, data)
	require.NoError(t, c.Reconstruct(shards))

	shards[2] = nil
	assert.Error(t, c.Reconstruct(shards))
}
