package cli

import (
	"fmt"
	"io"

	"github.com/fmueller/voxbatch/internal/pipeline"
	"github.com/spf13/cobra"
)

func newDatasetCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "dataset [folder]",
		Short: "Process every audio file under a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = app.defaultDatasetDir()
			}

			datasetFn := app.datasetFn
			if datasetFn == nil {
				datasetFn = app.processDataset
			}

			report, err := datasetFn(cmd.Context(), dir)
			if err != nil {
				return err
			}
			printDatasetReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printDatasetReport(w io.Writer, report pipeline.Report) {
	if report.Discovered == 0 {
		fmt.Fprintln(w, "No audio files found.")
		return
	}
	fmt.Fprintf(w, "Dataset processing completed: %d succeeded, %d failed of %d files\n",
		len(report.Succeeded), len(report.Failed), report.Discovered)
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  failed: %s: %v\n", f.Path, f.Err)
	}
}
