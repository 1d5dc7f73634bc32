package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/result"
	"github.com/spf13/cobra"
)

func newProcessCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "process <audio-file>",
		Short: "Chunk, transcribe and translate one audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Clean(args[0])
			if err := checkAudioFile(path); err != nil {
				return err
			}

			processFn := app.processFn
			if processFn == nil {
				processFn = app.processFile
			}

			record, err := processFn(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("process %s: %w", path, err)
			}
			printFileSummary(cmd.OutOrStdout(), record)
			return nil
		},
	}
}

func checkAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory; use the dataset command", path)
	}
	if !audio.IsSupported(path) {
		return fmt.Errorf("unsupported audio format %q (supported: %v)", filepath.Ext(path), audio.SupportedExtensions)
	}
	return nil
}

func printFileSummary(w io.Writer, record result.FileRecord) {
	fmt.Fprintf(w, "Processed %s: %d/%d windows, %d source words, %d target words\n",
		record.Metadata.OriginalFile,
		record.Summary.SuccessfulChunks,
		record.Metadata.TotalChunks,
		record.Summary.TotalSourceWords,
		record.Summary.TotalTargetWords,
	)
}
