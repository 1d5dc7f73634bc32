package audio

import (
	"math"
)

// DefaultSampleRate is what ffmpeg resamples non-WAV inputs to.
const DefaultSampleRate = 16000

// Stream is a decoded mono 16-bit PCM timeline.
type Stream struct {
	Samples    []int16
	SampleRate int
}

func (s *Stream) DurationMS() int64 {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return int64(len(s.Samples)) * 1000 / int64(s.SampleRate)
}

// Slice returns the samples in [startMS, endMS), clamped to the stream.
func (s *Stream) Slice(startMS, endMS int64) []int16 {
	if s == nil || s.SampleRate <= 0 {
		return nil
	}
	start := s.offset(startMS)
	end := s.offset(endMS)
	if end <= start {
		return nil
	}
	return s.Samples[start:end]
}

func (s *Stream) offset(ms int64) int {
	if ms <= 0 {
		return 0
	}
	idx := ms * int64(s.SampleRate) / 1000
	if idx > int64(len(s.Samples)) {
		return len(s.Samples)
	}
	return int(idx)
}

// Levels summarizes the loudness of a run of samples.
type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

func Measure(samples []int16) Levels {
	if len(samples) == 0 {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	var peak, sumSquares float64
	for _, s := range samples {
		value := float64(s) / 32768.0
		abs := math.Abs(value)
		if abs > peak {
			peak = abs
		}
		sumSquares += value * value
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return Levels{
		RMSdBFS:  amplitudeToDBFS(rms),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  int64(len(samples)),
	}
}

// Silent reports whether RMS is under thresholdDBFS and the peak stays
// within 6 dB of it.
func (l Levels) Silent(thresholdDBFS float64) bool {
	if l.Samples == 0 {
		return true
	}
	if math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1) {
		return true
	}

	peakGate := thresholdDBFS + 6
	return l.RMSdBFS <= thresholdDBFS && l.PeakdBFS <= peakGate
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
