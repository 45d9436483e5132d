package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceExpand is an independent formulation of the G.711 expansion
// (hidden bit + rounding step, then bias removal) used to cross-check
// DecodeSample over the full input range.
func referenceExpand(sample byte) int16 {
	u := ^sample
	exponent := uint((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)
	magnitude := ((2*mantissa + 33) << (exponent + 2)) - 132
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

func TestDecodeSampleKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		sample byte
		want   int16
	}{
		{"positive zero", 0xFF, 0},
		{"negative zero", 0x7F, 0},
		{"smallest positive step", 0xFE, 8},
		{"smallest negative step", 0x7E, -8},
		{"top of first segment", 0xF0, 120},
		{"second segment", 0xE0, 372},
		{"maximum positive", 0x80, 32124},
		{"maximum negative", 0x00, -32124},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeSample(tt.sample))
		})
	}
}

func TestDecodeSampleExhaustive(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		if got, want := DecodeSample(b), referenceExpand(b); got != want {
			t.Fatalf("DecodeSample(0x%02X) = %d, want %d", b, got, want)
		}
	}
}

func TestDecodeSampleSymmetry(t *testing.T) {
	// Bytes that differ only in the sign bit decode to opposite magnitudes.
	for i := 0; i < 128; i++ {
		neg := DecodeSample(byte(i))
		pos := DecodeSample(byte(i | 0x80))
		assert.Equal(t, pos, -neg, "byte 0x%02X vs 0x%02X", i, i|0x80)
	}
}

func TestDecodeBuffer(t *testing.T) {
	in := []byte{0xFF, 0xFE, 0x00, 0x80}
	out := DecodeBuffer(in)
	require.Len(t, out, len(in)*2)

	for i, b := range in {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		assert.Equal(t, DecodeSample(b), got, "sample %d", i)
	}
}

func TestDecodeBufferEmpty(t *testing.T) {
	assert.Empty(t, DecodeBuffer(nil))
}

func TestDecodeSamplesOrder(t *testing.T) {
	in := []byte{0xF0, 0xE0, 0xFF}
	got := DecodeSamples(in)
	require.Len(t, got, 3)
	assert.Equal(t, []int16{120, 372, 0}, got)
}
