package codec

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duvitech/cryfa/internal/frame"
)

func TestPackDNA_Values(t *testing.T) {
	t.Parallel()

	// Indices: A=0, C=1, N=2, G=3, T=4; v = 36*d1 + 6*d2 + d3.
	packed := PackDNA([]byte("ACG"))
	assert.Equal(t, []byte{'0', 0*36 + 1*6 + 3}, packed)

	packed = PackDNA([]byte("TTT"))
	assert.Equal(t, []byte{'0', 4*36 + 4*6 + 4}, packed)

	// One leftover base pads with A.
	packed = PackDNA([]byte("N"))
	assert.Equal(t, []byte{'1', 2 * 36}, packed)
}

func TestPackDNA_PenaltyEscape(t *testing.T) {
	t.Parallel()

	// 'B' is outside the base alphabet: the group is escape-prefixed
	// and the literal follows the code byte.
	packed := PackDNA([]byte("ACB"))
	assert.Equal(t, []byte{'0', frame.PenaltyEscape, 0*36 + 1*6 + 5, 'B'}, packed)

	got, err := UnpackDNA(packed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ACB"), got)
}

func TestDNACodec_RoundTripBases(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"A",
		"AC",
		"ACG",
		"ACGT",
		"ACGNT",
		"ACGTACGTACGTACGT",
		"NNNNNN",
		"AAAAAAA", // trailing smallest-symbol run vs padding
		"TTTA",
	}
	for _, tt := range tests {
		packed := PackDNA([]byte(tt))
		got, err := UnpackDNA(packed)
		require.NoError(t, err, "input=%q", tt)
		assert.Equal(t, []byte(tt), got, "input=%q", tt)
	}
}

func TestDNACodec_RoundTripArbitraryBytes(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(11, 17))
	for _, n := range []int{1, 2, 3, 4, 50, 255, 1000} {
		line := make([]byte, n)
		for i := range line {
			line[i] = byte(rng.UintN(256))
		}
		packed := PackDNA(line)
		got, err := UnpackDNA(packed)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, line, got, "n=%d", n)
	}
}

func TestDNACodec_PayloadRange(t *testing.T) {
	t.Parallel()

	// Pure-base input never produces reserved bytes.
	rng := rand.New(rand.NewPCG(5, 5))
	bases := []byte("ACGNT")
	line := randomOver(rng, bases, 3000)
	packed := PackDNA(line)
	for i, b := range packed {
		assert.Less(t, b, byte(252), "byte at %d", i)
	}
}

func TestDecodeDNALine_StopsAtSentinel(t *testing.T) {
	t.Parallel()

	packed := AppendPackDNA(nil, []byte("ACGTN"))
	buf := append(packed, frame.LineEnd)
	got, pos, err := DecodeDNALine(nil, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("ACGTN"), got)
	assert.Equal(t, frame.LineEnd, buf[pos])
}

func TestDecodeDNALine_PenaltyLiteralMayBeReservedByte(t *testing.T) {
	t.Parallel()

	// A literal equal to a sentinel value must ride through untouched.
	line := []byte{'A', 254, 'G', 255, 252, 253}
	packed := PackDNA(line)
	got, err := UnpackDNA(packed)
	require.NoError(t, err)
	assert.Equal(t, line, got)
}

func TestUnpackDNA_Truncated(t *testing.T) {
	t.Parallel()

	packed := PackDNA([]byte("ACB"))
	_, err := UnpackDNA(packed[:len(packed)-1])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = UnpackDNA(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}
