package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var errInvalidChoice = errors.New("invalid choice")

// runMenu is the interactive entry point used when no subcommand is given.
func (a *appState) runMenu(ctx context.Context) error {
	out := a.outWriter()
	reader := bufio.NewReader(a.inReader())

	fmt.Fprintln(out, "Audio transcription pipeline")
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintln(out, "1. Process single audio file")
	fmt.Fprintln(out, "2. Process entire dataset folder")

	choice, err := promptLine(reader, out, "Enter your choice (1 or 2): ")
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		path, err := promptLine(reader, out, "Enter path to audio file: ")
		if err != nil {
			return err
		}
		path = filepath.Clean(path)
		if err := checkAudioFile(path); err != nil {
			return err
		}

		processFn := a.processFn
		if processFn == nil {
			processFn = a.processFile
		}
		record, err := processFn(ctx, path)
		if err != nil {
			return fmt.Errorf("process %s: %w", path, err)
		}
		printFileSummary(out, record)
		return nil

	case "2":
		fallback := a.defaultDatasetDir()
		dir, err := promptLine(reader, out, fmt.Sprintf("Enter path to dataset folder [%s]: ", fallback))
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if dir == "" {
			dir = fallback
		}

		datasetFn := a.datasetFn
		if datasetFn == nil {
			datasetFn = a.processDataset
		}
		report, err := datasetFn(ctx, dir)
		if err != nil {
			return err
		}
		printDatasetReport(out, report)
		return nil

	default:
		return fmt.Errorf("%w %q; expected 1 or 2", errInvalidChoice, choice)
	}
}

// promptLine returns the next trimmed input line. io.EOF is only returned
// when nothing was typed.
func promptLine(r *bufio.Reader, w io.Writer, message string) (string, error) {
	fmt.Fprint(w, message)
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", err
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
