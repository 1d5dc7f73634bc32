package whisper

import (
	"context"
	"io"
)

// Request describes one upload of an encoded audio payload. Audio is read
// once per call; callers rewind it between calls.
type Request struct {
	Audio    io.Reader
	Filename string
	Language string
	Prompt   string
}

// Engine is a remote speech service that can transcribe audio in its
// spoken language and translate it into English text.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (string, error)
	Translate(ctx context.Context, req Request) (string, error)
}
