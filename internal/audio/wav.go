package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// ParseWAV decodes a PCM or IEEE-float WAV stream into mono 16-bit samples.
// Multi-channel audio is averaged down to one channel.
func ParseWAV(r io.ReadSeeker) (*Stream, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, fmt.Errorf("read wav header: %w", err)
	}

	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, ErrInvalidWAV
	}

	var (
		format     wavFormat
		dataOffset int64
		dataSize   uint32
		hasFmt     bool
		hasData    bool
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		chunkStart, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek wav chunk start: %w", err)
		}

		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, ErrInvalidWAV
			}

			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("read wav fmt chunk: %w", err)
			}

			format = wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(buf[0:2]),
				channels:      binary.LittleEndian.Uint16(buf[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
			}
			hasFmt = true

			if chunkSize%2 != 0 {
				if _, err := r.Seek(1, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("seek wav fmt padding: %w", err)
				}
			}
		case "data":
			dataOffset = chunkStart
			dataSize = chunkSize
			hasData = true
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("seek wav data chunk: %w", err)
			}
		default:
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return nil, ErrInvalidWAV
	}
	if format.channels == 0 || format.sampleRate == 0 {
		return nil, ErrInvalidWAV
	}

	if err := validateFormat(format.audioFormat, format.bitsPerSample); err != nil {
		return nil, err
	}

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek wav end: %w", err)
	}
	size := int64(dataSize)
	if dataOffset+size > end {
		size = end - dataOffset
	}

	if _, err := r.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek wav data offset: %w", err)
	}

	data := make([]byte, size)
	n, err := io.ReadFull(r, data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read wav data: %w", err)
	}

	samples, err := decodeMono(data[:n], format)
	if err != nil {
		return nil, err
	}

	return &Stream{Samples: samples, SampleRate: int(format.sampleRate)}, nil
}

// EncodeWAV wraps mono 16-bit samples in a canonical RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels       = 1
		bytesPerSample = 2
		fmtChunkSize   = 16
	)
	dataSize := len(samples) * bytesPerSample
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], "RIFF")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], "WAVE")
	off += 4

	copy(out[off:], "fmt ")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], fmtChunkSize)
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], channels)
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], channels*bytesPerSample)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], "data")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}

func validateFormat(audioFormat, bitsPerSample uint16) error {
	switch audioFormat {
	case 1:
		switch bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case 3:
		switch bitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

func decodeMono(data []byte, format wavFormat) ([]int16, error) {
	bytesPerSample := int(format.bitsPerSample / 8)
	if bytesPerSample <= 0 {
		return nil, ErrUnsupportedWAV
	}
	channels := int(format.channels)
	frameSize := bytesPerSample * channels

	samples := make([]int16, 0, len(data)/frameSize)
	for i := 0; i+frameSize <= len(data); i += frameSize {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i + c*bytesPerSample
			value, err := decodeSample(data[off:off+bytesPerSample], format.audioFormat, format.bitsPerSample)
			if err != nil {
				return nil, err
			}
			sum += value
		}
		samples = append(samples, toInt16(sum/float64(channels)))
	}

	return samples, nil
}

func decodeSample(sample []byte, audioFormat, bitsPerSample uint16) (float64, error) {
	if audioFormat == 3 {
		switch bitsPerSample {
		case 32:
			bits := binary.LittleEndian.Uint32(sample)
			return float64(math.Float32frombits(bits)), nil
		case 64:
			bits := binary.LittleEndian.Uint64(sample)
			return math.Float64frombits(bits), nil
		default:
			return 0, ErrUnsupportedWAV
		}
	}

	switch bitsPerSample {
	case 8:
		u := float64(sample[0])
		return (u - 128.0) / 128.0, nil
	case 16:
		v := int16(binary.LittleEndian.Uint16(sample))
		return float64(v) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		v := int32(binary.LittleEndian.Uint32(sample))
		return float64(v) / 2147483648.0, nil
	default:
		return 0, ErrUnsupportedWAV
	}
}

func toInt16(value float64) int16 {
	scaled := math.Round(value * 32768.0)
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16
	case scaled < math.MinInt16:
		return math.MinInt16
	default:
		return int16(scaled)
	}
}
