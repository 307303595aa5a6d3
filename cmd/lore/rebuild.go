package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/index"
	"github.com/lorekeep/lore/internal/store"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild snapshot and index from the full operation log",
	Long: `Replay the whole operation log, ignoring the snapshot, then rewrite
both the snapshot and the index cache. Use after repairing a corrupt log
or when the caches are suspect.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	root := mustFindRepository()
	logger := newLogger()

	st, err := store.Open(root, store.Options{Logger: logger, FullReplay: true})
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			exitWithError(ExitLockContention, "%v", err)
		}
		exitWithError(ExitError, "replaying log: %v", err)
	}
	defer st.Close()

	if err := st.Compact(); err != nil {
		exitWithError(ExitError, "rewriting snapshot: %v", err)
	}

	idx := index.Build(st.List(store.Filter{IncludeTombstoned: true}))
	idx.SetFingerprint(storeFingerprint(st))
	if err := idx.Save(config.IndexPath(root)); err != nil {
		exitWithError(ExitError, "rewriting index: %v", err)
	}

	if humanOutput {
		outputHuman("Rebuilt snapshot and index from %d ops (%d entries)\n",
			st.OpCount(), st.Len())
		return nil
	}
	return outputJSON(StatusResponse{Status: "rebuilt", Path: root})
}
