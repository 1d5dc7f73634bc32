package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/store"
	"github.com/fmueller/voxbatch/internal/transcribe"
	"github.com/stretchr/testify/require"
)

type span [2]int64

type fakeCodec struct {
	mu         sync.Mutex
	durationMS map[string]int64
	decodeErr  map[string]error
	encodeErr  map[span]error
	archiveErr error
	encoded    []span
	archived   []string
}

func (f *fakeCodec) Decode(_ context.Context, path string) (*audio.Stream, error) {
	if err := f.decodeErr[filepath.Base(path)]; err != nil {
		return nil, fmt.Errorf("%w %s: %w", audio.ErrDecode, path, err)
	}
	ms, ok := f.durationMS[filepath.Base(path)]
	if !ok {
		ms = 65_000
	}
	return &audio.Stream{Samples: make([]int16, ms*16), SampleRate: 16000}, nil
}

func (f *fakeCodec) Encode(_ context.Context, _ *audio.Stream, startMS, endMS int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encoded = append(f.encoded, span{startMS, endMS})
	if err := f.encodeErr[span{startMS, endMS}]; err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%d-%d", startMS, endMS)), nil
}

func (f *fakeCodec) Archive(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, path)
	if f.archiveErr != nil {
		return nil, f.archiveErr
	}
	return []byte("archive:" + filepath.Base(path)), nil
}

type fakeTranscriber struct {
	mu      sync.Mutex
	fail    map[int]error
	delay   func(index int) time.Duration
	prompts []string
	calls   int
}

func (f *fakeTranscriber) TranscribeAndTranslate(_ context.Context, req transcribe.Request) (transcribe.Transcription, error) {
	index := windowIndex(req.Filename)
	if f.delay != nil {
		time.Sleep(f.delay(index))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if err := f.fail[index]; err != nil {
		return transcribe.Transcription{}, err
	}
	return transcribe.Transcription{
		SourceText: fmt.Sprintf("src-%d", index),
		TargetText: fmt.Sprintf("tgt-%d", index),
	}, nil
}

func windowIndex(filename string) int {
	name := strings.TrimSuffix(filename, "."+audio.Container)
	idx, _ := strconv.Atoi(name[strings.LastIndex(name, "_")+1:])
	return idx
}

type harness struct {
	codec       *fakeCodec
	transcriber *fakeTranscriber
	store       *store.Store
	orch        *Orchestrator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	s, err := store.New(store.Options{Layout: store.Layout{Root: filepath.Join(t.TempDir(), "processed_data")}})
	require.NoError(t, err)

	h := &harness{
		codec:       &fakeCodec{durationMS: map[string]int64{}, decodeErr: map[string]error{}, encodeErr: map[span]error{}},
		transcriber: &fakeTranscriber{fail: map[int]error{}},
		store:       s,
	}
	if opts.ChunkSizeMS == 0 {
		opts.ChunkSizeMS = DefaultChunkSizeMS
		opts.OverlapMS = DefaultOverlapMS
	}
	h.orch = New(h.codec, h.transcriber, s, opts, nil)
	h.orch.Now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.Local) }
	h.orch.NewID = func() string { return "run-fixed" }
	return h
}

func TestProcessFileEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	record, err := h.orch.ProcessFile(context.Background(), "Dataset/talk.m4a")
	require.NoError(t, err)

	require.Equal(t, "run-fixed", record.Metadata.RunID)
	require.Equal(t, 3, record.Metadata.TotalChunks)
	require.Equal(t, 3, record.Summary.SuccessfulChunks)
	require.Equal(t, "src-1 src-2 src-3", record.SourceText)
	require.Equal(t, "tgt-1 tgt-2 tgt-3", record.TargetText)
	require.InDelta(t, 65.0, record.Metadata.DurationSeconds, 1e-9)
	require.Equal(t, filepath.Join(h.store.Layout().AudioDir(), "talk.mp3"), record.Metadata.ProcessedFile)
	require.Equal(t, []string{"Dataset/talk.m4a"}, h.codec.archived)
	require.NotContains(t, h.codec.encoded, span{0, 65_000})
	archived, err := os.ReadFile(record.Metadata.ProcessedFile)
	require.NoError(t, err)
	require.Equal(t, "archive:talk.m4a", string(archived))

	require.Equal(t, []string{"00:00:00", "00:25:00", "00:50:00"}, []string{
		record.Chunks[0].StartTime, record.Chunks[1].StartTime, record.Chunks[2].StartTime,
	})
	require.Equal(t, "01:05:00", record.Chunks[2].EndTime)

	text, err := os.ReadFile(filepath.Join(h.store.Layout().SourceDir(), "talk.txt"))
	require.NoError(t, err)
	require.Equal(t, "src-1 src-2 src-3", string(text))
	_, err = os.Stat(h.store.DetailedPath("talk.m4a"))
	require.NoError(t, err)

	ledger, err := h.store.LoadLedger()
	require.NoError(t, err)
	require.Equal(t, 1, ledger.TotalFiles)
	require.Equal(t, "talk.m4a", ledger.ProcessingHistory[0].Filename)
	require.Equal(t, 3, ledger.ProcessingHistory[0].Chunks)
}

func TestProcessFileDegradesFailedWindows(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.transcriber.fail[2] = errors.New("service unavailable")
	h.codec.encodeErr[span{50_000, 65_000}] = fmt.Errorf("%w: encoder crashed", audio.ErrTranscode)

	record, err := h.orch.ProcessFile(context.Background(), "talk.wav")
	require.NoError(t, err)

	require.Equal(t, 3, record.Metadata.TotalChunks)
	require.Equal(t, 1, record.Summary.SuccessfulChunks)
	require.Equal(t, "src-1", record.SourceText)
	require.False(t, record.Chunks[0].Failed())
	require.True(t, record.Chunks[1].Failed())
	require.Contains(t, *record.Chunks[1].Error, "service unavailable")
	require.True(t, record.Chunks[2].Failed())
	require.Contains(t, *record.Chunks[2].Error, "encoder crashed")

	ledger, err := h.store.LoadLedger()
	require.NoError(t, err)
	require.Equal(t, 1, ledger.TotalFiles)
}

func TestProcessFileDecodeFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.codec.decodeErr["broken.mp3"] = errors.New("invalid data")

	_, err := h.orch.ProcessFile(context.Background(), "broken.mp3")
	require.ErrorIs(t, err, audio.ErrDecode)
	require.Zero(t, h.transcriber.calls)

	ledger, err := h.store.LoadLedger()
	require.NoError(t, err)
	require.Zero(t, ledger.TotalFiles)
	_, err = os.Stat(h.store.DetailedPath("broken.mp3"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessFileArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.codec.archiveErr = audio.ErrTranscode

	record, err := h.orch.ProcessFile(context.Background(), "talk.aac")
	require.NoError(t, err)
	require.Empty(t, record.Metadata.ProcessedFile)
	require.Equal(t, 3, record.Summary.SuccessfulChunks)
}

func TestProcessFileZeroDuration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.codec.durationMS["empty.wav"] = 0

	record, err := h.orch.ProcessFile(context.Background(), "empty.wav")
	require.NoError(t, err)
	require.Zero(t, record.Metadata.TotalChunks)
	require.Empty(t, record.SourceText)
	require.Zero(t, h.transcriber.calls)
}

func TestProcessFileWorkersKeepWindowOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Workers: 4})
	h.codec.durationMS["long.wav"] = 5 * 25_000
	// later windows finish first
	h.transcriber.delay = func(index int) time.Duration {
		return time.Duration(6-index) * 15 * time.Millisecond
	}

	var progress, totals []int
	h.orch.Hooks.WindowDone = func(_ string, done, total int) {
		progress = append(progress, done)
		totals = append(totals, total)
	}

	record, err := h.orch.ProcessFile(context.Background(), "long.wav")
	require.NoError(t, err)
	require.Equal(t, "src-1 src-2 src-3 src-4 src-5", record.SourceText)
	for i, w := range record.Chunks {
		require.Equal(t, i+1, w.Index)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	require.Equal(t, []int{5, 5, 5, 5, 5}, totals)
}

func TestProcessFilePassesPriorContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Prompt: "Urdu lecture.", PriorContext: true})
	h.transcriber.fail[2] = errors.New("timeout")

	_, err := h.orch.ProcessFile(context.Background(), "talk.wav")
	require.NoError(t, err)
	require.Equal(t, []string{
		"Urdu lecture.",
		"Urdu lecture. src-1",
		"Urdu lecture. src-1",
	}, h.transcriber.prompts)
}

func TestProcessFileSilenceGateSkipsRemoteCalls(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{SilenceGate: true})
	record, err := h.orch.ProcessFile(context.Background(), "quiet.wav")
	require.NoError(t, err)
	require.Zero(t, h.transcriber.calls)
	require.Equal(t, 3, record.Summary.SuccessfulChunks)
	require.Empty(t, record.SourceText)
}

func TestTail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", tail("", 5))
	require.Equal(t, "abc", tail(" abc ", 5))
	require.Equal(t, "لام", tail("سلام", 3))
}
