package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/lorekeep/lore/internal/store"
)

// Identity is the commit author used for pushes.
type Identity struct {
	Name  string
	Email string
}

// GitTransport syncs op logs through a git remote. The remote is cloned
// into a local cache directory; fetch reads from the refreshed clone,
// push commits the appended log and pushes.
type GitTransport struct {
	url   string
	dir   string // local clone path
	ident Identity

	repo   *git.Repository
	pulled bool
}

// NewGitTransport returns a transport for the given remote URL, cloning
// into cacheDir on first use.
func NewGitTransport(url, cacheDir string, ident Identity) *GitTransport {
	if ident.Name == "" {
		ident.Name = "lore"
	}
	if ident.Email == "" {
		ident.Email = "lore@localhost"
	}
	return &GitTransport{url: url, dir: cacheDir, ident: ident}
}

// ensure opens or clones the remote and pulls once per transport
// lifetime. Failures reaching the remote wrap ErrNetwork so the engine
// retries them.
func (t *GitTransport) ensure(ctx context.Context) error {
	if t.repo == nil {
		repo, err := git.PlainOpen(t.dir)
		if err != nil {
			repo, err = git.PlainCloneContext(ctx, t.dir, false, &git.CloneOptions{URL: t.url})
			if errors.Is(err, transport.ErrEmptyRemoteRepository) {
				// Brand-new remote: set up a local repo to push into.
				repo, err = git.PlainInit(t.dir, false)
				if err == nil {
					_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
						Name: git.DefaultRemoteName,
						URLs: []string{t.url},
					})
				}
				if err != nil {
					return fmt.Errorf("initializing clone: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("%w: cloning %s: %v", ErrNetwork, t.url, err)
			}
		}
		t.repo = repo
	}

	if t.pulled {
		return nil
	}
	wt, err := t.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{})
	switch {
	case err == nil,
		errors.Is(err, git.NoErrAlreadyUpToDate),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return fmt.Errorf("%w: pulling %s: %v", ErrNetwork, t.url, err)
	}
	t.pulled = true
	return nil
}

func (t *GitTransport) dirTransport() *DirTransport {
	return NewDirTransport(t.dir)
}

func (t *GitTransport) Workstations(ctx context.Context) ([]string, error) {
	if err := t.ensure(ctx); err != nil {
		return nil, err
	}
	return t.dirTransport().Workstations(ctx)
}

func (t *GitTransport) Count(ctx context.Context, workstation string) (int, error) {
	if err := t.ensure(ctx); err != nil {
		return 0, err
	}
	return t.dirTransport().Count(ctx, workstation)
}

func (t *GitTransport) Fetch(ctx context.Context, workstation string, since int) ([]store.Op, error) {
	if err := t.ensure(ctx); err != nil {
		return nil, err
	}
	return t.dirTransport().Fetch(ctx, workstation, since)
}

// Append writes the ops into the clone, commits, and pushes.
func (t *GitTransport) Append(ctx context.Context, workstation string, ops []store.Op) error {
	if len(ops) == 0 {
		return nil
	}
	if err := t.ensure(ctx); err != nil {
		return err
	}
	if err := t.dirTransport().Append(ctx, workstation, ops); err != nil {
		return err
	}

	wt, err := t.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	rel := filepath.Join(remoteLogsDir, workstation+".jsonl")
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	msg := fmt.Sprintf("sync: %d ops from %s", len(ops), workstation)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  t.ident.Name,
			Email: t.ident.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing log update: %w", err)
	}

	if err := t.repo.PushContext(ctx, &git.PushOptions{}); err != nil &&
		!errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: pushing %s: %v", ErrNetwork, t.url, err)
	}
	return nil
}
