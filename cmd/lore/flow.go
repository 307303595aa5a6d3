package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/route"
)

var flowSplit bool

func init() {
	rootCmd.AddCommand(flowCmd)
	flowCmd.AddCommand(flowRouteCmd)
	flowRouteCmd.Flags().BoolVar(&flowSplit, "split", false, "Classify each sentence independently")
}

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Workflow helpers",
}

var flowRouteCmd = &cobra.Command{
	Use:   "route <text>",
	Short: "Classify text to a tracking destination",
	Long: `Decide where a piece of text belongs: github for issue-shaped
content, notion for documentation-shaped content, local otherwise.
Classification is pure pattern matching; nothing is written anywhere.

Examples:
  lore flow route "flaky CI failure on the auth suite"
  lore flow route --split "Fix the build. Then document the release steps."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFlowRoute,
}

func runFlowRoute(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	if flowSplit {
		decisions := route.ClassifySplit(text)
		if !humanOutput {
			return outputJSON(decisions)
		}
		for _, d := range decisions {
			outputHuman("%-7s %s\n", d.Destination, d.Text.Body)
		}
		return nil
	}

	d := route.Classify(text)
	if !humanOutput {
		return outputJSON(d)
	}
	outputHuman("%s", d.Destination)
	if d.Rule != "" {
		outputHuman("  (%s)", d.Rule)
	}
	outputHuman("\n")
	return nil
}
