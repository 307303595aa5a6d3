package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lorekeep/lore/internal/entry"
)

// DefaultQueryLimit is the page size for query/list commands.
const DefaultQueryLimit = 20

// ListTitleMaxLen truncates titles in list output.
const ListTitleMaxLen = 60

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format and exits.
// os.Exit skips deferred closes, so the open session is released here.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	releaseActiveSession()
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	ID     string `json:"id,omitempty"`
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// printEntryHuman prints one entry in detail form.
func printEntryHuman(e *entry.Entry) {
	fmt.Printf("%s  [%s/%s]\n", e.ID, e.Category, e.Confidence)
	fmt.Printf("  Title: %s\n", e.Title)
	if len(e.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if len(e.RelatedIDs) > 0 {
		fmt.Printf("  Related: %s\n", strings.Join(e.RelatedIDs, ", "))
	}
	fmt.Printf("  Origin: %s  Updated: %s\n", e.Origin, e.UpdatedAt.Format("2006-01-02 15:04"))
	if e.NeedsReview {
		fmt.Printf("  NEEDS REVIEW\n")
	}
	if e.Tombstoned {
		fmt.Printf("  TOMBSTONED\n")
	}
	if e.Body != "" {
		fmt.Println()
		for _, line := range strings.Split(e.Body, "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
}

// printEntryLine prints one entry as a single list line.
func printEntryLine(e *entry.Entry, score float64, withScore bool) {
	if withScore {
		fmt.Printf("[%.2f] %s  %s/%s  %s\n", score, e.ID, e.Category, e.Confidence,
			truncateString(e.Title, ListTitleMaxLen))
		return
	}
	fmt.Printf("%s  %s/%s  %s\n", e.ID, e.Category, e.Confidence,
		truncateString(e.Title, ListTitleMaxLen))
}
