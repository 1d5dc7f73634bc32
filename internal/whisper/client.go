package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"
	DefaultTimeout = 5 * time.Minute

	maxErrorBody = 2048
)

var ErrRemoteCall = errors.New("remote speech call failed")

// APIError is a non-2xx answer from the speech service.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrRemoteCall }

type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to an OpenAI-compatible /audio/transcriptions and
// /audio/translations API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

var _ Engine = (*Client)(nil)

func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
}

func (c *Client) Model() string { return c.model }

// Transcribe returns the text in the spoken language, hinted by req.Language.
func (c *Client) Transcribe(ctx context.Context, req Request) (string, error) {
	return c.post(ctx, "transcriptions", req, true)
}

// Translate returns an English translation of the speech.
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	return c.post(ctx, "translations", req, false)
}

func (c *Client) post(ctx context.Context, operation string, req Request, withLanguage bool) (string, error) {
	if req.Audio == nil {
		return "", errors.New("audio payload is required")
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.mp3"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	fields := [][2]string{
		{"model", c.model},
		{"response_format", "text"},
		{"temperature", "0"},
	}
	lang := strings.TrimSpace(req.Language)
	if withLanguage && lang != "" && lang != "auto" {
		fields = append(fields, [2]string{"language", lang})
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		fields = append(fields, [2]string{"prompt", prompt})
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return "", fmt.Errorf("write form field %s: %w", field[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/"+operation, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("User-Agent", "voxbatch/1")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %s request: %w", ErrRemoteCall, operation, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read %s response: %w", ErrRemoteCall, operation, err)
	}

	c.logger.Debug("speech api call finished",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := truncateUTF8(strings.TrimSpace(string(content)), maxErrorBody)
		return "", &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: text}
	}

	return strings.TrimSpace(string(content)), nil
}

// truncateUTF8 cuts text to at most limit bytes without splitting a rune.
func truncateUTF8(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
