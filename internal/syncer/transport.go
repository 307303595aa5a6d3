package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lorekeep/lore/internal/store"
)

// remoteLogsDir is the directory inside a remote holding one op log per
// workstation: logs/<workstation>.jsonl.
const remoteLogsDir = "logs"

// Transport exchanges per-workstation operation logs with a remote. Logs
// are append-only on the remote too: Append only ever extends a
// workstation's file.
type Transport interface {
	// Workstations lists the workstation ids that have logs on the remote.
	Workstations(ctx context.Context) ([]string, error)
	// Count returns the number of ops in a workstation's remote log.
	// A workstation with no log has count zero.
	Count(ctx context.Context, workstation string) (int, error)
	// Fetch returns a workstation's remote ops starting at position since.
	Fetch(ctx context.Context, workstation string, since int) ([]store.Op, error)
	// Append extends a workstation's remote log with new ops.
	Append(ctx context.Context, workstation string, ops []store.Op) error
}

// DirTransport syncs through a shared directory (network mount, synced
// folder). It is also the transport the tests use.
type DirTransport struct {
	dir string
}

// NewDirTransport returns a transport rooted at dir. The directory is
// created on first Append.
func NewDirTransport(dir string) *DirTransport {
	return &DirTransport{dir: dir}
}

func (t *DirTransport) logPath(workstation string) string {
	return filepath.Join(t.dir, remoteLogsDir, workstation+".jsonl")
}

func (t *DirTransport) Workstations(ctx context.Context) ([]string, error) {
	return listLogDir(filepath.Join(t.dir, remoteLogsDir))
}

func (t *DirTransport) Count(ctx context.Context, workstation string) (int, error) {
	ops, err := store.ReadOps(t.logPath(workstation))
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (t *DirTransport) Fetch(ctx context.Context, workstation string, since int) ([]store.Op, error) {
	ops, err := store.ReadOps(t.logPath(workstation))
	if err != nil {
		return nil, err
	}
	if since > len(ops) {
		return nil, fmt.Errorf("%w: remote log for %s shorter than high-water mark", ErrNetwork, workstation)
	}
	return ops[since:], nil
}

func (t *DirTransport) Append(ctx context.Context, workstation string, ops []store.Op) error {
	if len(ops) == 0 {
		return nil
	}
	path := t.logPath(workstation)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating remote log dir: %w", err)
	}
	return store.AppendOps(path, ops)
}

// listLogDir returns workstation ids for the *.jsonl files in dir. A
// missing directory means no peers have pushed yet.
func listLogDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing remote logs: %w", err)
	}

	var out []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".jsonl"))
	}
	return out, nil
}
