package main

import (
	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/extract"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract learnings from a markdown or PDF document",
	Long: `Scan a document for decision statements and architecture notes and
store them as entries. Candidates that duplicate existing entries bump
their updated_at instead of creating a copy, so re-running extraction on
the same document is a no-op.

Examples:
  lore extract docs/adr/0007-queue-backend.md
  lore extract notes/retro.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(false)
	defer s.close()

	eng := extract.New(s.store, s.engine, s.log)
	report, err := eng.File(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if !humanOutput {
		return outputJSON(report)
	}
	outputHuman("Scanned %d candidates: %d created, %d already known\n",
		report.Scanned, len(report.Created), len(report.Touched))
	for _, id := range report.Created {
		outputHuman("  + %s\n", id)
	}
	return nil
}
