package audio

import "encoding/binary"

// G.711 mu-law expansion constants. The encoded byte is bit-inverted and
// carries sign (bit 7), a 3-bit exponent and a 4-bit mantissa; the decoder
// re-adds the 0x84 bias folded in during compression.
const (
	mulawBias      = 0x84
	mulawSignBit   = 0x80
	mulawExpMask   = 0x70
	mulawQuantMask = 0x0F
)

// DecodeSample expands a single 8-bit mu-law sample to 16-bit linear PCM.
// Defined for all 256 input values; matches the standard G.711 expansion
// table (0xFF -> 0, 0x00 -> -32124, 0x80 -> +32124).
func DecodeSample(sample byte) int16 {
	u := ^sample
	exponent := (u & mulawExpMask) >> 4
	magnitude := (int(u&mulawQuantMask)<<3 + mulawBias) << exponent
	magnitude -= mulawBias
	if u&mulawSignBit != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// DecodeBuffer expands a mu-law payload to 16-bit little-endian linear PCM,
// preserving sample order. The output is exactly twice the input length.
func DecodeBuffer(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(DecodeSample(b)))
	}
	return out
}

// DecodeSamples expands a mu-law payload to 16-bit linear PCM samples.
func DecodeSamples(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeSample(b)
	}
	return out
}
