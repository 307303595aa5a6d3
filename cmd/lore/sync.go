package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/syncer"
)

var (
	syncPull     bool
	syncPush     bool
	syncStrategy string
	syncResolve  []string
	syncTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Only pull remote operations")
	syncCmd.Flags().BoolVar(&syncPush, "push", false, "Only push local operations")
	syncCmd.Flags().StringVar(&syncStrategy, "strategy", "merge", "Conflict strategy: merge, theirs, ours, interactive")
	syncCmd.Flags().StringSliceVar(&syncResolve, "resolve", nil, "Interactive resolution as <entry-id>=<ours|theirs|merge> (repeatable)")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 2*time.Minute, "Overall sync deadline")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Exchange operations with the team remote",
	Long: `Pull unseen operations from every peer workstation, resolve
conflicts per the selected strategy, and push locally-authored
operations.

The remote comes from .lore/config.yaml (remote:), the LORE_REMOTE
environment variable, or the global default. A git URL syncs through a
cloned repository; anything else is treated as a shared directory.

Unresolved conflicts exit with code 2 and list the conflicting entries;
re-run with --strategy or --resolve to settle them.

Examples:
  lore sync
  lore sync --pull --strategy theirs
  lore sync --strategy interactive --resolve 4f2c…=ours`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	strategy, err := syncer.ParseStrategy(syncStrategy)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	resolutions, err := parseResolutions(syncResolve)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	s := mustOpenSession(false)
	defer s.close()

	remote := resolveRemote(s)
	if remote == "" {
		exitWithError(ExitError, "no sync remote configured (set remote: in .lore/config.yaml or LORE_REMOTE)")
	}
	transport, err := buildTransport(s, remote)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	eng, err := syncer.New(s.store, transport, s.log)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, syncTimeout)
	defer cancelTimeout()

	result, err := eng.Sync(ctx, syncer.Options{
		Strategy:    strategy,
		PullOnly:    syncPull,
		PushOnly:    syncPush,
		Resolutions: resolutions,
	})
	if err != nil {
		if errors.Is(err, syncer.ErrConflictUnresolved) {
			reportSync(result)
			releaseActiveSession()
			os.Exit(ExitConflictUnresolved)
		}
		exitWithError(ExitError, "%v", err)
	}

	reportSync(result)
	return nil
}

// resolveRemote picks the sync remote: repo config, then environment,
// then the machine-wide default.
func resolveRemote(s *session) string {
	if r := s.store.Config().Remote; r != "" {
		return r
	}
	if r := os.Getenv("LORE_REMOTE"); r != "" {
		return r
	}
	if g, err := config.LoadGlobalConfig(); err == nil {
		return g.DefaultRemote
	}
	return ""
}

// buildTransport picks git vs shared-directory transport from the remote
// shape.
func buildTransport(s *session, remote string) (syncer.Transport, error) {
	if isGitURL(remote) {
		ident := syncer.Identity{}
		if g, err := config.LoadGlobalConfig(); err == nil {
			ident.Name = g.GitUserName
			ident.Email = g.GitUserEmail
		}
		cloneDir := filepath.Join(config.CachePath(s.root), "remote")
		return syncer.NewGitTransport(remote, cloneDir, ident), nil
	}
	return syncer.NewDirTransport(remote), nil
}

// isGitURL reports whether the remote looks like a git URL rather than a
// filesystem path.
func isGitURL(remote string) bool {
	if strings.Contains(remote, "://") {
		return true
	}
	// scp-like syntax: user@host:path
	at := strings.Index(remote, "@")
	return at > 0 && strings.Contains(remote[at:], ":")
}

func parseResolutions(specs []string) (map[string]syncer.Choice, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]syncer.Choice, len(specs))
	for _, spec := range specs {
		id, choice, ok := strings.Cut(spec, "=")
		if !ok || id == "" {
			return nil, errors.New("resolve spec must be <entry-id>=<ours|theirs|merge>: " + spec)
		}
		switch syncer.Choice(choice) {
		case syncer.ChooseOurs, syncer.ChooseTheirs, syncer.ChooseMerge:
			out[id] = syncer.Choice(choice)
		default:
			return nil, errors.New("unknown resolution choice " + choice + " for " + id)
		}
	}
	return out, nil
}

func reportSync(r *syncer.Result) {
	if !humanOutput {
		outputJSON(r)
		return
	}
	outputHuman("Pulled %d ops, applied %d, merged %d conflicts, pushed %d\n",
		r.Pulled, r.Applied, r.Merged, r.Pushed)
	if len(r.Conflicts) > 0 {
		outputHuman("\nUnresolved conflicts:\n")
		for _, c := range r.Conflicts {
			outputHuman("  %s  (ours %s vs theirs %s from %s)\n",
				c.EntryID, c.Ours.Clock, c.Theirs.Clock, c.Peer)
		}
		outputHuman("\nRe-run with --strategy or --resolve <id>=<ours|theirs|merge>.\n")
	}
}
