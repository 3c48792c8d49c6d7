package git

import (
	"errors"
	"fmt"
	"log/slog"

	"git.internal.example/releng/pkgrelease/internal/logfields"
	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

func (c *Client) updateExistingRepo(repoPath string, repo Repository) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	slog.Info("Updating repository", logfields.Name(repo.Name), slog.String("path", repoPath))
	wt, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}

	// 1. Fetch remote refs
	if err := fetchOrigin(repository); err != nil {
		return "", classifyFetchError(repo.URL, err)
	}

	// 2. Resolve target branch
	branch, err := resolveTargetBranch(repository, repo)
	if err != nil {
		return "", err
	}

	// 3. Checkout/create local branch & obtain refs
	localRef, remoteRef, err := checkoutAndGetRefs(repository, wt, branch)
	if err != nil {
		return "", err
	}

	// 4. Fast-forward, or surface divergence as a permanent error
	if err := syncWithRemote(repository, wt, repo, branch, localRef, remoteRef); err != nil {
		return "", &RemoteDivergedError{Op: "update", URL: repo.URL, Branch: branch, Err: err}
	}

	logRepositoryUpdated(repository, repo, branch)
	return repoPath, nil
}

// fetchOrigin fetches all branch refs from origin. Clones in this domain are
// unauthenticated over the internal network, so no transport.AuthMethod is
// attached.
func fetchOrigin(repository *git.Repository) error {
	fetchOpts := &git.FetchOptions{RemoteName: "origin", Tags: git.NoTags, RefSpecs: []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"}}
	if err := repository.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// resolveTargetBranch determines the branch to update or checkout, following precedence rules:
// 1. Explicit branch in config, 2. Current HEAD branch, 3. Remote default branch, 4. "main" fallback.
func resolveTargetBranch(repository *git.Repository, repo Repository) (string, error) {
	if repo.Branch != "" {
		return repo.Branch, nil
	}
	if headRef, err := repository.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short(), nil
	}
	if def, err := resolveRemoteDefaultBranch(repository); err == nil && def != "" {
		return def, nil
	}
	return "main", nil
}

// checkoutAndGetRefs ensures the local branch exists and is checked out, returning both local and remote references.
func checkoutAndGetRefs(repository *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localBranchRef := plumbing.NewBranchReferenceName(branch)
	remoteBranchRef := plumbing.NewRemoteReferenceName("origin", branch)
	remoteRef, err = repository.Reference(remoteBranchRef, true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}
	localRef, lerr := repository.Reference(localBranchRef, true)
	if lerr != nil { // create local branch
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, _ = repository.Reference(localBranchRef, true)
	} else {
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
		}
	}
	return localRef, remoteRef, nil
}

// syncWithRemote fast-forwards the local branch to the remote tip when
// possible. A diverged branch is never force-reconciled: it is returned to
// the caller as an error so the task engine can surface it as a blocked
// release rather than silently discarding local history.
func syncWithRemote(repository *git.Repository, wt *git.Worktree, repo Repository, branch string, localRef, remoteRef *plumbing.Reference) error {
	fastForwardPossible, ffErr := isAncestor(repository, localRef.Hash(), remoteRef.Hash())
	if ffErr != nil {
		slog.Warn("ancestor check failed", slog.String("error", ffErr.Error()))
	}
	if !fastForwardPossible {
		return fmt.Errorf("local branch diverged from remote")
	}
	currentHead, _ := repository.Head()
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("fast-forward reset: %w", err)
	}
	if currentHead != nil && currentHead.Hash() == remoteRef.Hash() {
		slog.Info("Repository already up-to-date", logfields.Name(repo.Name), slog.String("branch", branch), slog.String("commit", remoteRef.Hash().String()[:8]))
	} else {
		slog.Info("Fast-forwarded repository", logfields.Name(repo.Name), slog.String("branch", branch), slog.String("from", currentHead.Hash().String()[:8]), slog.String("to", remoteRef.Hash().String()[:8]))
	}
	return nil
}

// logRepositoryUpdated logs a repository update summary, including the short commit hash if available.
func logRepositoryUpdated(repository *git.Repository, repo Repository, branch string) {
	if headRef, err := repository.Head(); err == nil {
		slog.Info("Repository updated", logfields.Name(repo.Name), slog.String("branch", branch), slog.String("commit", headRef.Hash().String()[:8]))
	} else {
		slog.Info("Repository updated", logfields.Name(repo.Name), slog.String("branch", branch))
	}
}

func resolveRemoteDefaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true)
	if err != nil {
		return "", err
	}
	target := ref.Target()
	if target == "" {
		return "", fmt.Errorf("origin/HEAD target empty")
	}
	return plumbing.ReferenceName(target).Short(), nil
}

func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}
