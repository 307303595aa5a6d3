package main

import (
	"github.com/spf13/cobra"
)

// InfoResponse reports store and cache status.
type InfoResponse struct {
	Root        string `json:"root"`
	Workstation string `json:"workstation"`
	Entries     int    `json:"entries"`
	Ops         int    `json:"ops"`
	TailOps     int    `json:"tail_ops"`
	Counter     uint64 `json:"counter"`
	IndexedDocs int    `json:"indexed_docs"`
	Remote      string `json:"remote,omitempty"`
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store, snapshot, and index status",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	s := mustOpenSession(true)
	defer s.close()

	resp := InfoResponse{
		Root:        s.root,
		Workstation: s.store.Workstation(),
		Entries:     s.store.Len(),
		Ops:         s.store.OpCount(),
		TailOps:     s.store.TailLen(),
		Counter:     s.store.Counter(),
		IndexedDocs: s.index.DocCount(),
		Remote:      s.store.Config().Remote,
	}

	if !humanOutput {
		return outputJSON(resp)
	}
	outputHuman("Repository:  %s\n", resp.Root)
	outputHuman("Workstation: %s\n", resp.Workstation)
	outputHuman("Entries:     %d live (%d indexed)\n", resp.Entries, resp.IndexedDocs)
	outputHuman("Ops:         %d total, %d since last compaction\n", resp.Ops, resp.TailOps)
	outputHuman("Counter:     %d\n", resp.Counter)
	if resp.Remote != "" {
		outputHuman("Remote:      %s\n", resp.Remote)
	}
	if resp.TailOps > s.store.Config().CompactThreshold {
		outputHuman("\nLog tail is long; consider 'lore compact'.\n")
	}
	return nil
}
