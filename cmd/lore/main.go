// Package main provides the lore CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lorekeep/lore/internal/config"
	"github.com/lorekeep/lore/internal/index"
	"github.com/lorekeep/lore/internal/logging"
	"github.com/lorekeep/lore/internal/query"
	"github.com/lorekeep/lore/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// verboseLogs lowers the log level to debug
var verboseLogs bool

func main() {
	// A .env in the working directory can set LORE_WORKSTATION, LORE_REMOTE
	// and friends; absence is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lore",
	Short: "Team knowledge base CLI",
	Long: `lore maintains a local, team-syncable knowledge base of context
entries and learnings: architecture decisions, code-style rules,
debugging patterns.

Core features:
  - Append-only entry store with logical clocks and soft deletes
  - Fuzzy full-text query with recency and confidence ranking
  - Heuristic extraction of learnings from markdown and PDF documents
  - Multi-workstation sync over a shared directory or git remote
  - Routing classifier for tracking destinations

Data is stored in git-friendly JSONL with an ephemeral SQLite snapshot.
All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verboseLogs, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

func newLogger() *zap.Logger {
	return logging.New(verboseLogs)
}

// mustFindRepository locates the enclosing lore repository, exits on error.
func mustFindRepository() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}
	root, err := config.FindRepository(cwd)
	if err != nil {
		exitWithError(ExitError, "%v\n\nRun 'lore init' to create one.", err)
	}
	return root
}

// session bundles an open store with its synchronized index and query
// engine. Mutations flow through the store's apply hook into the index;
// close persists the index cache when anything changed.
type session struct {
	root   string
	store  *store.Store
	index  *index.Index
	engine *query.Engine
	log    *zap.Logger

	readOnly bool
	dirty    bool
}

// activeSession is the session owned by the running command. exitWithError
// releases it, so early exits do not strand the writer lock until the
// stale-PID reclaim.
var activeSession *session

func releaseActiveSession() {
	if activeSession != nil {
		activeSession.close()
	}
}

// mustOpenSession opens the store (exit 3 on lock contention), loads or
// rebuilds the index cache, and wires store writes into the index.
func mustOpenSession(readOnly bool) *session {
	root := mustFindRepository()
	logger := newLogger()

	st, err := store.Open(root, store.Options{ReadOnly: readOnly, Logger: logger})
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			exitWithError(ExitLockContention, "%v", err)
		}
		if errors.Is(err, store.ErrCorruption) {
			exitWithError(ExitError, "%v\n\nRun 'lore rebuild' after repairing the log.", err)
		}
		exitWithError(ExitError, "opening store: %v", err)
	}

	s := &session{root: root, store: st, log: logger, readOnly: readOnly}
	activeSession = s

	fp := storeFingerprint(st)
	idx, err := index.Load(config.IndexPath(root), fp)
	if err != nil {
		if !errors.Is(err, index.ErrRebuildRequired) {
			st.Close()
			exitWithError(ExitError, "loading index: %v", err)
		}
		logger.Debug("rebuilding index cache", zap.Error(err))
		idx = index.Build(st.List(store.Filter{IncludeTombstoned: true}))
		s.dirty = true
	}
	s.index = idx

	st.AddApplyHook(func(ops []store.Op) {
		for i := range ops {
			idx.Add(ops[i].Payload)
		}
		s.dirty = true
	})

	s.engine = query.New(st, idx, st.Config())
	return s
}

// close saves the index cache if it changed and releases the store lock.
func (s *session) close() {
	if s == activeSession {
		activeSession = nil
	}
	// Only the writer-lock holder persists the cache. Read-only sessions
	// rebuild a stale index in memory and drop it: two concurrent readers
	// must not race on the cache file.
	if s.dirty && !s.readOnly {
		s.index.SetFingerprint(storeFingerprint(s.store))
		if err := s.index.Save(config.IndexPath(s.root)); err != nil {
			s.log.Warn("saving index cache", zap.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing store", zap.Error(err))
	}
}

// storeFingerprint identifies a store version; the index cache and query
// cursors are both pinned to it.
func storeFingerprint(st *store.Store) string {
	return fmt.Sprintf("%d:%d", st.OpCount(), st.Counter())
}
