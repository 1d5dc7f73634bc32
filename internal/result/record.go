package result

import (
	"strings"
	"time"

	"github.com/fmueller/voxbatch/internal/chunk"
	"github.com/fmueller/voxbatch/internal/transcribe"
)

// TimeLayout is the local-time ISO-8601 layout the viewer reads.
const TimeLayout = "2006-01-02T15:04:05.000000"

const (
	sourceErrorPlaceholder = "[Error in Urdu transcription]"
	targetErrorPlaceholder = "[Error in English translation]"
)

// WindowOutcome is either a Success or a Failure for one window.
type WindowOutcome interface {
	window() chunk.Window
}

type Success struct {
	Window        chunk.Window
	Transcription transcribe.Transcription
}

type Failure struct {
	Window chunk.Window
	Err    error
}

func (s Success) window() chunk.Window { return s.Window }
func (f Failure) window() chunk.Window { return f.Window }

// WindowResult is one entry of the "chunks" array in a detailed record.
type WindowResult struct {
	Index           int     `json:"chunk_id"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	SourceText      string  `json:"urdu_text"`
	TargetText      string  `json:"english_translation"`
	SourceWordCount int     `json:"urdu_word_count"`
	TargetWordCount int     `json:"english_word_count"`
	HasSourceScript bool    `json:"has_urdu_script"`
	Error           *string `json:"error,omitempty"`
}

func (w WindowResult) Failed() bool { return w.Error != nil }

type FileMetadata struct {
	RunID           string  `json:"run_id"`
	OriginalFile    string  `json:"original_file"`
	ProcessedFile   string  `json:"processed_file"`
	ProcessingDate  string  `json:"processing_date"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalChunks     int     `json:"total_chunks"`
}

type FileSummary struct {
	TotalSourceWords int `json:"total_urdu_words"`
	TotalTargetWords int `json:"total_english_words"`
	SuccessfulChunks int `json:"successful_chunks"`
}

// FileRecord is the per-file detailed document.
type FileRecord struct {
	Metadata FileMetadata   `json:"metadata"`
	Chunks   []WindowResult `json:"chunks"`
	Summary  FileSummary    `json:"summary"`

	// Combined texts are written to their own files, not into the record.
	SourceText string `json:"-"`
	TargetText string `json:"-"`
}

type AggregateInput struct {
	RunID       string
	SourcePath  string
	ArchivePath string
	DurationMS  int64
	Outcomes    []WindowOutcome
	ProcessedAt time.Time
}

// ToWindowResult converts an outcome into its persisted form. Failures carry
// placeholder text and the error message.
func ToWindowResult(o WindowOutcome) WindowResult {
	w := o.window()
	res := WindowResult{
		Index:     w.Index,
		StartTime: chunk.FormatTimestamp(w.StartMS),
		EndTime:   chunk.FormatTimestamp(w.EndMS),
	}

	switch v := o.(type) {
	case Success:
		res.SourceText = v.Transcription.SourceText
		res.TargetText = v.Transcription.TargetText
		res.SourceWordCount = WordCount(v.Transcription.SourceText)
		res.TargetWordCount = WordCount(v.Transcription.TargetText)
		res.HasSourceScript = v.Transcription.HasSourceScript
	case Failure:
		msg := "unknown error"
		if v.Err != nil {
			msg = v.Err.Error()
		}
		res.SourceText = sourceErrorPlaceholder
		res.TargetText = targetErrorPlaceholder
		res.Error = &msg
	}

	return res
}

// Aggregate builds the FileRecord for one processed file. Outcomes must be
// in window order.
func Aggregate(in AggregateInput) FileRecord {
	record := FileRecord{
		Metadata: FileMetadata{
			RunID:           in.RunID,
			OriginalFile:    in.SourcePath,
			ProcessedFile:   in.ArchivePath,
			ProcessingDate:  in.ProcessedAt.Format(TimeLayout),
			DurationSeconds: float64(in.DurationMS) / 1000,
			TotalChunks:     len(in.Outcomes),
		},
		Chunks: make([]WindowResult, 0, len(in.Outcomes)),
	}

	for _, outcome := range in.Outcomes {
		wr := ToWindowResult(outcome)
		record.Chunks = append(record.Chunks, wr)
		record.Summary.TotalSourceWords += wr.SourceWordCount
		record.Summary.TotalTargetWords += wr.TargetWordCount
		if !wr.Failed() {
			record.Summary.SuccessfulChunks++
		}
	}

	record.SourceText, record.TargetText = CombineTexts(in.Outcomes)
	return record
}

// CombineTexts joins the texts of successful windows with single spaces.
// Failed windows are left out entirely, as are windows with no text.
func CombineTexts(outcomes []WindowOutcome) (source, target string) {
	var sources, targets []string
	for _, outcome := range outcomes {
		success, ok := outcome.(Success)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(success.Transcription.SourceText); text != "" {
			sources = append(sources, text)
		}
		if text := strings.TrimSpace(success.Transcription.TargetText); text != "" {
			targets = append(targets, text)
		}
	}
	return strings.Join(sources, " "), strings.Join(targets, " ")
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
