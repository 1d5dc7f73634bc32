package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/chunk"
	"github.com/fmueller/voxbatch/internal/result"
	"github.com/fmueller/voxbatch/internal/store"
	"github.com/fmueller/voxbatch/internal/transcribe"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSizeMS = 30_000
	DefaultOverlapMS   = 5_000
	DefaultSilenceDBFS = -50.0

	// priorContextRunes bounds how much of the previous window's text is
	// passed on as a prompt.
	priorContextRunes = 200
)

type Codec interface {
	Decode(ctx context.Context, path string) (*audio.Stream, error)
	Encode(ctx context.Context, s *audio.Stream, startMS, endMS int64) ([]byte, error)
	Archive(ctx context.Context, path string) ([]byte, error)
}

type Transcriber interface {
	TranscribeAndTranslate(ctx context.Context, req transcribe.Request) (transcribe.Transcription, error)
}

// Sink persists what the orchestrator produces. *store.Store implements it.
type Sink interface {
	SaveArchive(sourcePath string, data []byte) (string, error)
	SaveFile(record result.FileRecord) error
	AppendToLedger(record result.FileRecord) (result.Ledger, error)
}

var _ Sink = (*store.Store)(nil)

type Options struct {
	ChunkSizeMS int64
	OverlapMS   int64
	// Workers caps how many windows of one file are in flight at once.
	Workers int
	// Prompt is a static hint sent with every window.
	Prompt string
	// PriorContext appends the tail of the previous window's text to the
	// prompt. Ignored unless Workers is 1.
	PriorContext bool
	SilenceGate  bool
	SilenceDBFS  float64
}

// Hooks are optional callbacks for progress reporting. WindowDone may be
// called from several goroutines but never concurrently.
type Hooks struct {
	FileStarted func(path string, windows int)
	WindowDone  func(path string, done, total int)
}

type Orchestrator struct {
	codec       Codec
	transcriber Transcriber
	sink        Sink
	opts        Options
	logger      *zap.Logger

	Hooks Hooks
	Now   func() time.Time
	NewID func() string
}

func New(codec Codec, transcriber Transcriber, sink Sink, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.ChunkSizeMS <= 0 {
		opts.ChunkSizeMS = DefaultChunkSizeMS
	}
	if opts.OverlapMS < 0 {
		opts.OverlapMS = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SilenceDBFS == 0 {
		opts.SilenceDBFS = DefaultSilenceDBFS
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		codec:       codec,
		transcriber: transcriber,
		sink:        sink,
		opts:        opts,
		logger:      logger,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

type state string

const (
	stateLoading     state = "loading"
	stateChunking    state = "chunking"
	stateWindows     state = "windows"
	stateAggregating state = "aggregating"
	stateDone        state = "done"
	stateFailed      state = "failed"
)

// ProcessFile runs one audio file through decode, windowing, transcription
// and persistence. Window failures are recorded in the returned record.
// Only load, chunking and persistence failures are returned as errors.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) (result.FileRecord, error) {
	runID := o.NewID()
	log := o.logger.With(zap.String("file", path), zap.String("run_id", runID))
	enter := func(s state, fields ...zap.Field) {
		log.Debug("file state", append([]zap.Field{zap.String("state", string(s))}, fields...)...)
	}
	fail := func(err error) (result.FileRecord, error) {
		enter(stateFailed, zap.Error(err))
		return result.FileRecord{}, err
	}

	enter(stateLoading)
	stream, err := o.codec.Decode(ctx, path)
	if err != nil {
		return fail(fmt.Errorf("load %s: %w", path, err))
	}

	enter(stateChunking, zap.Int64("duration_ms", stream.DurationMS()))
	windows, err := chunk.Split(stream.DurationMS(), o.opts.ChunkSizeMS, o.opts.OverlapMS)
	if err != nil {
		return fail(fmt.Errorf("chunk %s: %w", path, err))
	}
	log.Info("processing file",
		zap.Float64("duration_seconds", float64(stream.DurationMS())/1000),
		zap.Int("windows", len(windows)),
	)

	enter(stateWindows)
	if o.Hooks.FileStarted != nil {
		o.Hooks.FileStarted(path, len(windows))
	}
	outcomes := o.processWindows(ctx, log, path, stream, windows)
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("process %s: %w", path, err))
	}

	enter(stateAggregating)
	archivePath := o.archive(ctx, log, path)

	record := result.Aggregate(result.AggregateInput{
		RunID:       runID,
		SourcePath:  path,
		ArchivePath: archivePath,
		DurationMS:  stream.DurationMS(),
		Outcomes:    outcomes,
		ProcessedAt: o.Now(),
	})
	if err := o.sink.SaveFile(record); err != nil {
		return fail(fmt.Errorf("save results for %s: %w", path, err))
	}
	if _, err := o.sink.AppendToLedger(record); err != nil {
		return fail(fmt.Errorf("update ledger for %s: %w", path, err))
	}

	enter(stateDone)
	log.Info("file processed",
		zap.Int("windows", record.Metadata.TotalChunks),
		zap.Int("successful", record.Summary.SuccessfulChunks),
		zap.Int("source_words", record.Summary.TotalSourceWords),
		zap.Int("target_words", record.Summary.TotalTargetWords),
	)
	return record, nil
}

func (o *Orchestrator) processWindows(ctx context.Context, log *zap.Logger, path string, stream *audio.Stream, windows []chunk.Window) []result.WindowOutcome {
	outcomes := make([]result.WindowOutcome, len(windows))

	var mu sync.Mutex
	done := 0
	finished := func() {
		if o.Hooks.WindowDone == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		o.Hooks.WindowDone(path, done, len(windows))
	}

	if o.opts.Workers == 1 {
		prior := ""
		for i, w := range windows {
			prompt := o.opts.Prompt
			if o.opts.PriorContext {
				prompt = joinPrompt(prompt, tail(prior, priorContextRunes))
			}
			outcomes[i] = o.processWindow(ctx, log, path, stream, w, prompt)
			if s, ok := outcomes[i].(result.Success); ok && s.Transcription.SourceText != "" {
				prior = s.Transcription.SourceText
			}
			finished()
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, w := range windows {
		g.Go(func() error {
			outcomes[i] = o.processWindow(ctx, log, path, stream, w, o.opts.Prompt)
			finished()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// processWindow never fails. Errors become a result.Failure.
func (o *Orchestrator) processWindow(ctx context.Context, log *zap.Logger, path string, stream *audio.Stream, w chunk.Window, prompt string) result.WindowOutcome {
	log = log.With(zap.Int("window", w.Index), zap.String("range", w.String()))

	if err := ctx.Err(); err != nil {
		return result.Failure{Window: w, Err: err}
	}

	if o.opts.SilenceGate {
		levels := audio.Measure(stream.Slice(w.StartMS, w.EndMS))
		if levels.Silent(o.opts.SilenceDBFS) {
			log.Debug("skipping silent window", zap.Float64("rms_dbfs", levels.RMSdBFS))
			return result.Success{Window: w}
		}
	}

	payload, err := o.codec.Encode(ctx, stream, w.StartMS, w.EndMS)
	if err != nil {
		log.Warn("window encode failed", zap.Error(err))
		return result.Failure{Window: w, Err: err}
	}

	text, err := o.transcriber.TranscribeAndTranslate(ctx, transcribe.Request{
		Payload:  payload,
		Filename: fmt.Sprintf("%s_chunk_%03d.%s", store.Stem(path), w.Index, audio.Container),
		Prompt:   prompt,
		Logger:   log,
	})
	if err != nil {
		log.Warn("window transcription failed", zap.Error(err))
		return result.Failure{Window: w, Err: err}
	}

	log.Debug("window transcribed",
		zap.Int("source_words", result.WordCount(text.SourceText)),
		zap.Bool("source_script", text.HasSourceScript),
	)
	return result.Success{Window: w, Transcription: text}
}

// archive stores a full-fidelity copy of the source for the viewer. Failures
// are logged and leave the archive path empty.
func (o *Orchestrator) archive(ctx context.Context, log *zap.Logger, path string) string {
	data, err := o.codec.Archive(ctx, path)
	if err != nil {
		log.Warn("archive copy failed", zap.Error(err))
		return ""
	}
	archivePath, err := o.sink.SaveArchive(path, data)
	if err != nil {
		log.Warn("archive copy failed", zap.Error(err))
		return ""
	}
	return archivePath
}

func joinPrompt(static, prior string) string {
	return strings.TrimSpace(strings.TrimSpace(static) + " " + prior)
}

func tail(text string, n int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[len(runes)-n:])
}

// IsFileFailure reports whether err came out of ProcessFile for a reason
// other than cancellation.
func IsFileFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
