package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/fmueller/voxbatch/internal/retry"
	"github.com/fmueller/voxbatch/internal/whisper"
	"go.uber.org/zap"
)

// ArabicScript covers the Arabic and Arabic Supplement blocks used to
// write Urdu.
var ArabicScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
	},
}

// Transcription is the pair of texts produced for one audio payload.
type Transcription struct {
	SourceText      string
	TargetText      string
	HasSourceScript bool
}

type Request struct {
	Payload  []byte
	Filename string
	// Prompt is an optional source-language hint. Only the transcription call
	// receives it; translation runs without a prompt.
	Prompt string
	Logger *zap.Logger
}

type Options struct {
	Engine      whisper.Engine
	Language    string
	Script      *unicode.RangeTable
	MaxAttempts int
	Backoff     retry.BackoffFunc
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *zap.Logger
}

// Adapter calls the speech engine twice per payload (recognize, then
// translate) and retries the pair as a unit.
type Adapter struct {
	engine      whisper.Engine
	language    string
	script      *unicode.RangeTable
	maxAttempts int
	backoff     retry.BackoffFunc
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

func NewAdapter(opts Options) *Adapter {
	if opts.Script == nil {
		opts.Script = ArabicScript
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = retry.DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.ExponentialJitter(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Adapter{
		engine:      opts.Engine,
		language:    opts.Language,
		script:      opts.Script,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
}

// TranscribeAndTranslate returns the source-language transcription and the
// translation of req.Payload. After MaxAttempts failed attempts the last
// error is returned.
func (a *Adapter) TranscribeAndTranslate(ctx context.Context, req Request) (Transcription, error) {
	if len(req.Payload) == 0 {
		return Transcription{}, errors.New("empty audio payload")
	}
	log := req.Logger
	if log == nil {
		log = a.logger
	}

	payload := bytes.NewReader(req.Payload)
	var result Transcription

	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: a.maxAttempts,
		Backoff:     a.backoff,
		Sleep:       a.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Warn("speech attempt failed; retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max", a.maxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context, attempt int) error {
		log.Debug("requesting transcription", zap.Int("attempt", attempt+1), zap.String("language", a.language))
		source, err := a.call(ctx, payload, req.Filename, req.Prompt, a.engine.Transcribe)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}

		log.Debug("requesting translation", zap.Int("attempt", attempt+1))
		target, err := a.call(ctx, payload, req.Filename, "", a.engine.Translate)
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}

		result = Transcription{
			SourceText:      source,
			TargetText:      target,
			HasSourceScript: HasScript(source, a.script),
		}
		return nil
	})
	if err != nil {
		log.Warn("speech attempts exhausted", zap.Int("max", a.maxAttempts), zap.Error(err))
		return Transcription{}, err
	}

	return result, nil
}

func (a *Adapter) call(ctx context.Context, payload *bytes.Reader, filename, prompt string, fn func(context.Context, whisper.Request) (string, error)) (string, error) {
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind payload: %w", err)
	}
	return fn(ctx, whisper.Request{
		Audio:    payload,
		Filename: filename,
		Language: a.language,
		Prompt:   prompt,
	})
}

// HasScript reports whether text contains at least one rune from table.
func HasScript(text string, table *unicode.RangeTable) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.Is(table, r)
	}) >= 0
}
