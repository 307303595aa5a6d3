package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/entry"
	"github.com/lorekeep/lore/internal/query"
)

var (
	queryCategories  []string
	queryConfidences []string
	queryTags        []string
	queryRecentDays  int
	queryLimit       int
	queryCursor      string
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringSliceVar(&queryCategories, "category", nil, "Filter by category (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryConfidences, "confidence", nil, "Filter by confidence level (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryTags, "tag", nil, "Require tag (repeatable)")
	queryCmd.Flags().IntVar(&queryRecentDays, "recent", 0, "Only entries updated in the last N days")
	queryCmd.Flags().IntVar(&queryLimit, "limit", DefaultQueryLimit, "Page size")
	queryCmd.Flags().StringVar(&queryCursor, "cursor", "", "Resume from a pagination cursor")
}

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the knowledge base",
	Long: `Rank entries against free text with fuzzy matching, boosted by
recency and confidence. With no text, filters alone select entries,
newest first.

Examples:
  lore query "connection pool timeout"
  lore query retry --category debugging --confidence high
  lore query --tag database --recent 30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := query.Request{
		Limit:  queryLimit,
		Cursor: queryCursor,
		Tags:   queryTags,
	}
	if len(args) == 1 {
		req.Text = args[0]
	}

	for _, c := range queryCategories {
		cat, err := entry.ParseCategory(c)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		req.Categories = append(req.Categories, cat)
	}
	for _, c := range queryConfidences {
		conf, err := entry.ParseConfidence(c)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		req.Confidences = append(req.Confidences, conf)
	}
	if queryRecentDays > 0 {
		req.UpdatedAfter = time.Now().AddDate(0, 0, -queryRecentDays)
	}

	s := mustOpenSession(true)
	defer s.close()

	page, err := s.engine.Query(req)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if !humanOutput {
		return outputJSON(page)
	}

	if len(page.Results) == 0 {
		outputHuman("No matches.\n")
		return nil
	}
	for _, r := range page.Results {
		printEntryLine(r.Entry, r.Score, req.Text != "")
	}
	outputHuman("\n%d of %d matches\n", len(page.Results), page.Total)
	if page.NextCursor != "" {
		outputHuman("next: lore query %q --cursor %s\n", req.Text, page.NextCursor)
	}
	return nil
}
