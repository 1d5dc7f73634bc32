package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLedgerCmd(app *appState) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show totals and recent history from the processing ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadFn := app.loadLedgerFn
			if loadFn == nil {
				loadFn = app.loadLedger
			}

			ledger, err := loadFn()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Files processed: %d\n", ledger.TotalFiles)
			fmt.Fprintf(out, "Total duration:  %.1fs\n", ledger.TotalDuration)
			if ledger.LastProcessed != nil {
				fmt.Fprintf(out, "Last processed:  %s\n", *ledger.LastProcessed)
			}

			history := ledger.ProcessingHistory
			if limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}
			for _, entry := range history {
				fmt.Fprintf(out, "%s  %-40s %8.1fs %4d windows\n", entry.Date, entry.Filename, entry.Duration, entry.Chunks)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of history entries to show; 0 shows all")
	return cmd
}
