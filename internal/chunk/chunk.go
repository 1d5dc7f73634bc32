package chunk

import (
	"errors"
	"fmt"
)

var ErrInvalidWindowing = errors.New("invalid windowing parameters")

// Window is one time slice of an audio stream. Index is 1-based.
type Window struct {
	Index   int
	StartMS int64
	EndMS   int64
}

func (w Window) DurationMS() int64 {
	return w.EndMS - w.StartMS
}

func (w Window) String() string {
	return fmt.Sprintf("window %d: %s-%s", w.Index, FormatTimestamp(w.StartMS), FormatTimestamp(w.EndMS))
}

// Split cuts [0, totalMS) into windows of chunkMS that advance by
// chunkMS-overlapMS. The last window is clamped to totalMS.
func Split(totalMS, chunkMS, overlapMS int64) ([]Window, error) {
	if chunkMS <= 0 {
		return nil, fmt.Errorf("%w: chunk size %dms must be positive", ErrInvalidWindowing, chunkMS)
	}
	if overlapMS < 0 {
		return nil, fmt.Errorf("%w: overlap %dms must not be negative", ErrInvalidWindowing, overlapMS)
	}
	if overlapMS >= chunkMS {
		return nil, fmt.Errorf("%w: overlap %dms >= chunk size %dms", ErrInvalidWindowing, overlapMS, chunkMS)
	}
	if totalMS < 0 {
		return nil, fmt.Errorf("%w: duration %dms must not be negative", ErrInvalidWindowing, totalMS)
	}

	step := chunkMS - overlapMS
	windows := make([]Window, 0, (totalMS+step-1)/step)
	for start := int64(0); start < totalMS; start += step {
		windows = append(windows, Window{
			Index:   len(windows) + 1,
			StartMS: start,
			EndMS:   min(start+chunkMS, totalMS),
		})
	}

	return windows, nil
}

// FormatTimestamp renders milliseconds as MM:SS:CC (minutes, seconds,
// hundredths), truncating. Minutes are not wrapped into hours.
func FormatTimestamp(ms int64) string {
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	centis := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d:%02d", minutes, seconds, centis)
}
