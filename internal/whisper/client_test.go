package whisper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path   string
	auth   string
	fields map[string]string
	file   []byte
	name   string
}

func newCapturingServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.fields = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			captured.fields[key] = values[0]
		}

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		captured.name = header.Filename
		captured.file, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientTranscribeSendsLanguageAndPrompt(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	server := newCapturingServer(t, http.StatusOK, "  سلام دنیا \n", &captured)

	client := NewClient(ClientOptions{BaseURL: server.URL + "/v1/", APIKey: "sk-test"})
	text, err := client.Transcribe(context.Background(), Request{
		Audio:    bytes.NewReader([]byte("mp3-bytes")),
		Filename: "window_001.mp3",
		Language: "ur",
		Prompt:   "previous words",
	})

	require.NoError(t, err)
	require.Equal(t, "سلام دنیا", text)
	require.Equal(t, "/v1/audio/transcriptions", captured.path)
	require.Equal(t, "Bearer sk-test", captured.auth)
	require.Equal(t, "window_001.mp3", captured.name)
	require.Equal(t, []byte("mp3-bytes"), captured.file)
	require.Equal(t, map[string]string{
		"model":           DefaultModel,
		"response_format": "text",
		"temperature":     "0",
		"language":        "ur",
		"prompt":          "previous words",
	}, captured.fields)
}

func TestClientTranslateOmitsLanguage(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	server := newCapturingServer(t, http.StatusOK, "hello world", &captured)

	client := NewClient(ClientOptions{BaseURL: server.URL, Model: "whisper-large"})
	text, err := client.Translate(context.Background(), Request{
		Audio:    bytes.NewReader([]byte("mp3")),
		Language: "ur",
	})

	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, "/audio/translations", captured.path)
	require.Empty(t, captured.auth)
	require.Equal(t, "audio.mp3", captured.name)
	require.NotContains(t, captured.fields, "language")
	require.Equal(t, "whisper-large", captured.fields["model"])
}

func TestClientReturnsAPIErrorOnBadStatus(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	server := newCapturingServer(t, http.StatusTooManyRequests, `{"error":"rate limited"}`, &captured)

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.Transcribe(context.Background(), Request{Audio: bytes.NewReader([]byte("x"))})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRemoteCall)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "transcriptions", apiErr.Operation)
	require.Contains(t, apiErr.Body, "rate limited")
}

func TestClientTruncatesErrorBodyOnRuneBoundary(t *testing.T) {
	t.Parallel()

	body := "a" + strings.Repeat("ش", maxErrorBody)
	var captured capturedRequest
	server := newCapturingServer(t, http.StatusBadRequest, body, &captured)

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.Translate(context.Background(), Request{Audio: bytes.NewReader([]byte("x"))})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, utf8.ValidString(apiErr.Body))
	require.Len(t, apiErr.Body, maxErrorBody-1)
	require.True(t, strings.HasPrefix(body, apiErr.Body))
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncateUTF8("short", 10))
	require.Equal(t, "ab", truncateUTF8("abcd", 2))
	require.Equal(t, "x", truncateUTF8("xیہ", 2))
	require.Equal(t, "xی", truncateUTF8("xیہ", 3))
	require.Empty(t, truncateUTF8("یہ", 1))
}

func TestClientWrapsTransportErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(ClientOptions{BaseURL: url})
	_, err := client.Translate(context.Background(), Request{Audio: bytes.NewReader([]byte("x"))})
	require.ErrorIs(t, err, ErrRemoteCall)
}

func TestClientRequiresAudio(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ClientOptions{}).Transcribe(context.Background(), Request{})
	require.Error(t, err)
}
