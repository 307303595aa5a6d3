package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/clipboard"
	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/extract"
)

var reflectFromClipboard bool

func init() {
	reflectCmd.Flags().BoolVar(&reflectFromClipboard, "clipboard", false, "read notes from the system clipboard")
	rootCmd.AddCommand(reflectCmd)
}

var reflectCmd = &cobra.Command{
	Use:   "reflect [file]",
	Short: "Record learnings from session notes",
	Long: `Run the extraction rules over free-form session notes and store what
they find with origin=reflect. Reads the file argument, stdin when none
is given, or the clipboard with --clipboard.

Example:
  lore reflect </tmp/session-notes.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReflect,
}

func runReflect(cmd *cobra.Command, args []string) error {
	var doc []byte
	var err error
	switch {
	case reflectFromClipboard:
		var text string
		text, err = clipboard.Paste()
		doc = []byte(text)
	case len(args) == 1:
		doc, err = os.ReadFile(args[0])
	default:
		doc, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitWithError(ExitError, "reading notes: %v", err)
	}

	s := mustOpenSession(false)
	defer s.close()

	eng := extract.New(s.store, s.engine, s.log)
	report, err := eng.Text(string(doc), entry.OriginReflect)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if !humanOutput {
		return outputJSON(report)
	}
	outputHuman("Recorded %d learnings (%d already known)\n",
		len(report.Created), len(report.Touched))
	return nil
}
