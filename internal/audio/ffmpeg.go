package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrDecode         = errors.New("decode audio")
	ErrTranscode      = errors.New("transcode audio")
	ErrFFmpegNotFound = errors.New("ffmpeg not found")
)

const (
	// Container is the upload and archive format produced by Encode.
	Container      = "mp3"
	DefaultBitrate = "64k"
	ArchiveBitrate = "192k"
)

// SupportedExtensions lists the input containers the pipeline picks up.
var SupportedExtensions = []string{".m4a", ".mp3", ".wav", ".flac", ".aac"}

type commandRunner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// Codec decodes source files into PCM and encodes PCM ranges to MP3 using
// ffmpeg. Plain PCM WAV files are decoded in-process.
type Codec struct {
	FFmpegPath string
	Bitrate    string
	Logger     *zap.Logger

	run commandRunner
}

func NewCodec(ffmpegPath, bitrate string, logger *zap.Logger) *Codec {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = DefaultBitrate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{FFmpegPath: ffmpegPath, Bitrate: bitrate, Logger: logger, run: runCommand}
}

// IsSupported reports whether path has one of SupportedExtensions.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range SupportedExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

func (c *Codec) Decode(ctx context.Context, path string) (*Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecode, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w %s: is a directory", ErrDecode, path)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		stream, err := decodeWAVFile(path)
		if err == nil {
			return stream, nil
		}
		c.log().Debug("in-process wav decode failed; falling back to ffmpeg", zap.String("audio", path), zap.Error(err))
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprint(DefaultSampleRate),
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"pipe:1",
	}

	c.log().Debug("decoding audio with ffmpeg", zap.String("audio", path), zap.Strings("args", args))
	raw, err := c.runner()(ctx, c.FFmpegPath, args, nil)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecode, path, err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return &Stream{Samples: samples, SampleRate: DefaultSampleRate}, nil
}

// Encode renders [startMS, endMS) of s as an MP3 byte buffer.
func (c *Codec) Encode(ctx context.Context, s *Stream, startMS, endMS int64) ([]byte, error) {
	samples := s.Slice(startMS, endMS)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty range %d-%dms", ErrTranscode, startMS, endMS)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "wav",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-b:a", c.Bitrate,
		"-f", Container,
		"pipe:1",
	}

	out, err := c.runner()(ctx, c.FFmpegPath, args, EncodeWAV(samples, s.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("%w %d-%dms: %w", ErrTranscode, startMS, endMS, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %d-%dms: encoder produced no output", ErrTranscode, startMS, endMS)
	}

	return out, nil
}

// Archive renders the whole source file as MP3 at its own sample rate and
// channel layout. MP3 sources are copied unchanged.
func (c *Codec) Archive(ctx context.Context, path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), "."+Container) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrTranscode, path, err)
		}
		return data, nil
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-b:a", ArchiveBitrate,
		"-f", Container,
		"pipe:1",
	}

	c.log().Debug("archiving audio with ffmpeg", zap.String("audio", path), zap.Strings("args", args))
	out, err := c.runner()(ctx, c.FFmpegPath, args, nil)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrTranscode, path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %s: encoder produced no output", ErrTranscode, path)
	}
	return out, nil
}

func (c *Codec) runner() commandRunner {
	if c.run == nil {
		return runCommand
	}
	return c.run
}

func (c *Codec) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func decodeWAVFile(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return ParseWAV(f)
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, name)
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w (%s)", err, errText)
	}

	return stdout.Bytes(), nil
}
