package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}

	data, err := EncodeWAV(samples, 8000)
	require.NoError(t, err)
	require.Len(t, data, 44+len(samples)*2)

	got, rate, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Equal(t, samples, got)
}

func TestEncodeWAVErrors(t *testing.T) {
	_, err := EncodeWAV(nil, 8000)
	assert.Error(t, err)

	_, err = EncodeWAV([]int16{1}, 0)
	assert.Error(t, err)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	samples := []int16{7, -7, 7}
	data, err := EncodeWAV(samples, 8000)
	require.NoError(t, err)

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(list[4:], 4)
	list = append(list, 'I', 'N', 'F', 'O')

	spliced := append([]byte{}, data[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, data[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:], uint32(len(spliced)-8))

	got, rate, err := DecodeWAV(spliced)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Equal(t, samples, got)
}

func TestDecodeWAVRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"wrong magic", append([]byte("JUNK1234WAVE"), make([]byte, 44)...)},
		{"no chunks", []byte("RIFF\x04\x00\x00\x00WAVE")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestDecodeWAVRejectsStereo(t *testing.T) {
	data, err := EncodeWAV([]int16{1, 2}, 8000)
	require.NoError(t, err)

	// Flip the channel count in the fmt chunk (offset 22).
	binary.LittleEndian.PutUint16(data[22:], 2)

	_, _, err = DecodeWAV(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel")
}
