package main

import (
	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/entry"
)

var (
	curateCategory   string
	curateConfidence string
	curateBody       string
	curateTags       []string
	curateRelated    []string
)

func init() {
	rootCmd.AddCommand(curateCmd)
	curateCmd.AddCommand(curateAddCmd)
	curateCmd.AddCommand(curateEditCmd)
	curateCmd.AddCommand(curateRemoveCmd)

	for _, c := range []*cobra.Command{curateAddCmd, curateEditCmd} {
		c.Flags().StringVar(&curateCategory, "category", "", "Entry category")
		c.Flags().StringVar(&curateConfidence, "confidence", "", "Confidence level (low, medium, high)")
		c.Flags().StringVar(&curateBody, "body", "", "Entry body text")
		c.Flags().StringSliceVar(&curateTags, "tag", nil, "Tag (repeatable)")
		c.Flags().StringSliceVar(&curateRelated, "related", nil, "Related entry id (repeatable)")
	}
	curateAddCmd.MarkFlagRequired("category")
}

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Add, edit, or remove entries by hand",
}

var curateAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new entry",
	Long: `Add a manually curated entry.

Example:
  lore curate add "Retry idempotent requests only" \
    --category api --confidence high --body "POST is not retried" --tag http`,
	Args: cobra.ExactArgs(1),
	RunE: runCurateAdd,
}

func runCurateAdd(cmd *cobra.Command, args []string) error {
	cat, err := entry.ParseCategory(curateCategory)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	conf := entry.ConfidenceMedium
	if curateConfidence != "" {
		conf, err = entry.ParseConfidence(curateConfidence)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
	}

	e := &entry.Entry{
		Category:   cat,
		Title:      args[0],
		Body:       curateBody,
		Confidence: conf,
		Tags:       curateTags,
		RelatedIDs: curateRelated,
		Origin:     entry.OriginManual,
	}

	s := mustOpenSession(false)
	defer s.close()

	id, err := s.store.Put(e)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Created %s\n", id)
		return nil
	}
	return outputJSON(StatusResponse{Status: "created", ID: id})
}

var curateEditCmd = &cobra.Command{
	Use:   "edit <id> [title]",
	Short: "Edit an existing entry",
	Long: `Edit fields of an existing entry. Only the flags given change;
everything else is kept. This is the one path allowed to lower an
entry's confidence.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCurateEdit,
}

func runCurateEdit(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(false)
	defer s.close()

	e, ok := s.store.Get(args[0])
	if !ok {
		exitWithError(ExitError, "entry %s not found", args[0])
	}
	if e.Tombstoned {
		exitWithError(ExitError, "entry %s is tombstoned", args[0])
	}

	if len(args) == 2 {
		e.Title = args[1]
	}
	if cmd.Flags().Changed("category") {
		cat, err := entry.ParseCategory(curateCategory)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		e.Category = cat
	}
	if cmd.Flags().Changed("confidence") {
		conf, err := entry.ParseConfidence(curateConfidence)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		e.Confidence = conf
	}
	if cmd.Flags().Changed("body") {
		e.Body = curateBody
	}
	if cmd.Flags().Changed("tag") {
		e.Tags = curateTags
	}
	if cmd.Flags().Changed("related") {
		e.RelatedIDs = curateRelated
	}

	if _, err := s.store.Put(e); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Updated %s\n", e.ID)
		return nil
	}
	return outputJSON(StatusResponse{Status: "updated", ID: e.ID})
}

var curateRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Tombstone an entry",
	Long: `Soft-delete an entry. The record stays in the operation log so the
deletion propagates to other workstations on sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runCurateRemove,
}

func runCurateRemove(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(false)
	defer s.close()

	if err := s.store.Delete(args[0]); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Removed %s\n", args[0])
		return nil
	}
	return outputJSON(StatusResponse{Status: "removed", ID: args[0]})
}
