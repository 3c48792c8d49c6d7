package git

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// CreateOrResetBranch creates branch (or force-resets it if it already
// exists) at base's tip, then force-cleans the working tree. Safe to call
// repeatedly — idempotent so a retried step doesn't compound partial state.
func (s *RepositoryService) CreateOrResetBranch(name, branch, base string) error {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}

	baseRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", base), true)
	if err != nil {
		return GitError("resolve base branch").WithCause(err).WithField("base", base).Build()
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, baseRef.Hash())); err != nil {
		return GitError("force-reset branch").WithCause(err).WithField("branch", branch).Build()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return GitError("open worktree").WithCause(err).Build()
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return GitError("checkout branch").WithCause(err).WithField("branch", branch).Build()
	}
	if err := wt.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return GitError("clean worktree").WithCause(err).Build()
	}
	return nil
}

// SyncWithRemote stashes local edits to keepPaths, hard-resets the current
// branch to remote's tip, then restores those files over the reset tree,
// tolerating the restore simply overwriting whatever the reset produced.
// go-git has no native stash; since the only local edit the engine ever
// produces at this point is the changelog bump from the immediately
// preceding step, saving and reapplying those specific files' bytes is
// equivalent.
func (s *RepositoryService) SyncWithRemote(name, branch string, keepPaths ...string) error {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return GitError("resolve remote tip").WithCause(err).WithField("branch", branch).Build()
	}

	stashed := make(map[string][]byte, len(keepPaths))
	for _, rel := range keepPaths {
		if data, readErr := os.ReadFile(filepath.Join(path, rel)); readErr == nil {
			stashed[rel] = data
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return GitError("open worktree").WithCause(err).Build()
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: remoteRef.Hash(), Mode: gogit.HardReset}); err != nil {
		return GitError("hard reset to remote tip").WithCause(err).Build()
	}

	for rel, data := range stashed {
		full := filepath.Join(path, rel)
		if writeErr := os.WriteFile(full, data, 0o644); writeErr != nil {
			return GitError("restore stashed edit").WithCause(writeErr).WithField("path", rel).Build()
		}
	}
	return nil
}

// CommitChangelog stages debian/changelog and commits it with the standard
// three-paragraph release message, returning the new commit id. A clean
// tree (nothing staged) is a no-op returning the current HEAD id.
func (s *RepositoryService) CommitChangelog(name, version, authorName, authorEmail string) (string, error) {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", GitError("open worktree").WithCause(err).Build()
	}
	if _, err := wt.Add("debian/changelog"); err != nil {
		return "", GitError("stage changelog").WithCause(err).Build()
	}

	status, err := wt.Status()
	if err != nil {
		return "", GitError("read worktree status").WithCause(err).Build()
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return "", GitError("read head").WithCause(err).Build()
		}
		return head.Hash().String(), nil
	}

	msg := fmt.Sprintf("chore: bump version to %s\n\nupdate changelog to %s\n\nLog: update changelog to %s", version, version, version)
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
	})
	if err != nil {
		return "", GitError("commit changelog").WithCause(err).Build()
	}
	return hash.String(), nil
}

// EnsureRemote adds (or leaves alone) a remote named remoteName pointing at url.
func (s *RepositoryService) EnsureRemote(name, remoteName, url string) error {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}
	_, err = repo.Remote(remoteName)
	if err == nil {
		return nil
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{url}})
	return err
}

// ForcePush force-pushes branch to remoteName.
func (s *RepositoryService) ForcePush(name, remoteName, branch string) error {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}
	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/heads/%s", branch, branch))
	err = s.applyProxy(remoteURL(repo, remoteName), func() error {
		return repo.Push(&gogit.PushOptions{RemoteName: remoteName, RefSpecs: []config.RefSpec{refSpec}, Force: true})
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return GitError("force push").WithCause(err).WithField("branch", branch).WithField("remote", remoteName).Build()
	}
	return nil
}

func remoteURL(repo *gogit.Repository, remoteName string) string {
	r, err := repo.Remote(remoteName)
	if err != nil || r == nil || len(r.Config().URLs) == 0 {
		return ""
	}
	return r.Config().URLs[0]
}
