package main

import (
	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/clipboard"
)

var getCopyBody bool

func init() {
	getCmd.Flags().BoolVar(&getCopyBody, "copy", false, "also copy the entry body to the clipboard")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one entry by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(true)
	defer s.close()

	e, ok := s.store.Get(args[0])
	if !ok {
		exitWithError(ExitError, "entry %s not found", args[0])
	}

	if getCopyBody {
		if err := clipboard.Copy(e.Body); err != nil {
			exitWithError(ExitError, "copying to clipboard: %v", err)
		}
	}

	if humanOutput {
		printEntryHuman(e)
		return nil
	}
	return outputJSON(e)
}
