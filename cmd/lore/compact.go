package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(compactCmd)
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Materialize the snapshot to speed up future opens",
	Long: `Write current state into the SQLite snapshot so opening the store
replays only operations appended afterwards. Purely a performance
operation; skipping it never affects correctness.`,
	Args: cobra.NoArgs,
	RunE: runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(false)
	defer s.close()

	before := s.store.TailLen()
	if err := s.store.Compact(); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Compacted %d tail ops into the snapshot\n", before)
		return nil
	}
	return outputJSON(StatusResponse{Status: "compacted"})
}
