package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavFormat holds the fields of a WAV "fmt " chunk we care about.
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV parses a PCM WAV container and returns the 16-bit samples and
// the sample rate. Only mono 16-bit PCM is accepted; chunks other than
// "fmt " and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE container")
	}

	var format *wavFormat
	var raw []byte

	// Walk the chunk list after the RIFF header.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, fmt.Errorf("truncated %q chunk: declared %d bytes", id, size)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			f := &wavFormat{}
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, f); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			format = f
		case "data":
			raw = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if format == nil {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if raw == nil {
		return nil, 0, fmt.Errorf("missing data chunk")
	}
	if format.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format %d (only PCM)", format.AudioFormat)
	}
	if format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count %d (only mono)", format.NumChannels)
	}
	if format.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d (only 16-bit)", format.BitsPerSample)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, int(format.SampleRate), nil
}

// EncodeWAV builds a mono 16-bit PCM WAV file from samples.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, wavFormat{
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
	})

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}
