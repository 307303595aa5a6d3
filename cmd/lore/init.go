package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/config"
)

var initRemote string

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initRemote, "remote", "", "Sync remote (directory path or git URL)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a lore repository in the current directory",
	Long: `Create a .lore directory with default configuration and an empty
operation log.

Example:
  lore init --remote git@github.com:team/lore-sync.git`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	if config.IsRepository(cwd) {
		exitWithError(ExitError, "already a lore repository: %s", config.LorePath(cwd))
	}

	if err := os.MkdirAll(config.CachePath(cwd), 0755); err != nil {
		exitWithError(ExitError, "creating %s: %v", config.LoreDir, err)
	}

	cfg := config.DefaultConfig()
	cfg.Remote = initRemote
	if err := cfg.Save(cwd); err != nil {
		exitWithError(ExitError, "writing config: %v", err)
	}

	// Touch the op log so the repository is complete from the start.
	f, err := os.OpenFile(config.OpLogPath(cwd), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		exitWithError(ExitError, "creating op log: %v", err)
	}
	f.Close()

	if humanOutput {
		outputHuman("Initialized lore repository in %s\n", config.LorePath(cwd))
		return nil
	}
	return outputJSON(StatusResponse{Status: "initialized", Path: config.LorePath(cwd)})
}
