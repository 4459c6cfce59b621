package blockstore

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCeilLog2(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint8
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{256, 8},
		{257, 9},
		{1 << 32, 32},
		{1<<32 + 1, 33},
		{math.MaxUint64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilLog2(tt.in), "CeilLog2(%d)", tt.in)
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 2, -2, 50, -50, math.MaxInt32, math.MinInt32}
	for _, v := range cases {
		assert.Equal(t, v, ZigzagDec32(ZigzagEnc32(v)), "zigzag(%d)", v)
	}

	// Small magnitudes map to small codes.
	assert.Equal(t, uint32(0), ZigzagEnc32(0))
	assert.Equal(t, uint32(1), ZigzagEnc32(-1))
	assert.Equal(t, uint32(2), ZigzagEnc32(1))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		v := int32(rng.Uint32())
		require.Equal(t, v, ZigzagDec32(ZigzagEnc32(v)))
	}
}

// Bit widths across the whole range round-trip, including the degenerate 0
// and full-word cases.
func TestBitpackU64RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for bw := uint8(0); bw <= 64; bw++ {
		n := 257 // crosses byte and word boundaries for every width
		vals := make([]uint64, n)
		mask := widthMask(bw)
		if bw == 0 {
			mask = 0
		}
		for i := range vals {
			vals[i] = rng.Uint64() & mask
		}

		packed := BitpackU64(nil, vals, bw)
		if bw == 0 {
			assert.Empty(t, packed)
		} else {
			assert.Len(t, packed, (n*int(bw)+7)/8)
		}

		out := make([]uint64, n)
		BitunpackU64(packed, n, bw, out)
		require.Equal(t, vals, out, "bw=%d", bw)
	}
}

func TestBitpackU32RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(43))

	for bw := uint8(0); bw <= 32; bw++ {
		n := 131
		vals := make([]uint32, n)
		mask := uint32(widthMask(bw))
		if bw == 0 {
			mask = 0
		}
		for i := range vals {
			vals[i] = rng.Uint32() & mask
		}

		packed := BitpackU32(nil, vals, bw)
		out := make([]uint32, n)
		BitunpackU32(packed, n, bw, out)
		require.Equal(t, vals, out, "bw=%d", bw)
	}
}

func TestBitpackBoolRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 63, 64, 100} {
		vals := make([]uint8, n)
		for i := range vals {
			vals[i] = uint8(i % 2)
		}

		packed := BitpackBool(nil, vals)
		assert.Len(t, packed, (n+7)/8)

		out := make([]uint8, n)
		BitunpackBool(packed, n, out)
		require.Equal(t, vals, out, "n=%d", n)
	}
}

func TestBitpackAppendsToExisting(t *testing.T) {
	prefix := []byte{0xAA, 0xBB}
	vals := []uint64{1, 2, 3}

	packed := BitpackU64(prefix, vals, 2)
	assert.Equal(t, []byte{0xAA, 0xBB}, packed[:2], "existing bytes untouched")

	out := make([]uint64, 3)
	BitunpackU64(packed[2:], 3, 2, out)
	assert.Equal(t, vals, out)
}
