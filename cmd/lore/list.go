package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/store"
)

var (
	listCategory   string
	listTombstoned bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	listCmd.Flags().BoolVar(&listTombstoned, "tombstoned", false, "Include tombstoned entries")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	filter := store.Filter{IncludeTombstoned: listTombstoned}
	if listCategory != "" {
		cat, err := entry.ParseCategory(listCategory)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		filter.Categories = []entry.Category{cat}
	}

	s := mustOpenSession(true)
	defer s.close()

	entries := s.store.List(filter)
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})

	if !humanOutput {
		return outputJSON(entries)
	}
	for _, e := range entries {
		printEntryLine(e, 0, false)
	}
	outputHuman("\n%d entries\n", len(entries))
	return nil
}
