// Package git wraps go-git with the clone/update/retry mechanics the
// release task engine needs to maintain a local working tree per project.
package git

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.internal.example/releng/pkgrelease/internal/logfields"
)

// Repository identifies a clone target: the remote URL, the local directory
// name under the workspace, and the branch to track.
type Repository struct {
	URL    string
	Name   string
	Branch string
}

// Client handles low-level clone/update mechanics for one workspace
// directory, retrying transient failures and classifying permanent ones.
type Client struct {
	workspaceDir string
	inRetry      bool // internal guard to avoid nested retry wrapping
}

// CloneResult contains the result of a clone or update operation.
type CloneResult struct {
	Path       string    // local filesystem path
	CommitSHA  string    // HEAD commit SHA
	CommitDate time.Time // HEAD commit date
}

// NewClient creates a new Git client with the specified workspace directory,
// creating it if it does not already exist.
func NewClient(workspaceDir string) *Client {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		slog.Warn("could not create workspace directory", logfields.Path(workspaceDir), "error", err)
	}
	return &Client{workspaceDir: workspaceDir}
}

// CloneRepoWithMetadata clones a repository and returns metadata including
// commit SHA and date. Wraps the operation with retry logic unless already
// running inside a retry loop.
func (c *Client) CloneRepoWithMetadata(repo Repository) (CloneResult, error) {
	if c.inRetry {
		return c.cloneOnceWithMetadata(repo)
	}
	return c.withRetryMetadata("clone", repo.Name, func() (CloneResult, error) {
		return c.cloneOnceWithMetadata(repo)
	})
}

func (c *Client) cloneOnce(repo Repository) (string, error) {
	result, err := c.cloneOnceWithMetadata(repo)
	return result.Path, err
}

func (c *Client) cloneOnceWithMetadata(repo Repository) (CloneResult, error) {
	repoPath := filepath.Join(c.workspaceDir, repo.Name)
	slog.Debug("Cloning repository", logfields.URL(repo.URL), logfields.Name(repo.Name), slog.String("branch", repo.Branch), logfields.Path(repoPath))
	if err := os.RemoveAll(repoPath); err != nil {
		return CloneResult{}, fmt.Errorf("failed to remove existing directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: repo.URL}
	if repo.Branch != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + repo.Branch)
		cloneOptions.SingleBranch = true
		slog.Debug("Cloning branch reference", logfields.Name(repo.Name), slog.String("branch", repo.Branch), slog.String("ref", string(cloneOptions.ReferenceName)))
	}

	repository, err := git.PlainClone(repoPath, false, cloneOptions)
	if err != nil {
		return CloneResult{}, classifyCloneError(repo.URL, err)
	}

	result := CloneResult{Path: repoPath}
	if ref, herr := repository.Head(); herr == nil {
		result.CommitSHA = ref.Hash().String()
		if commit, cerr := repository.CommitObject(ref.Hash()); cerr == nil {
			result.CommitDate = commit.Author.When
			slog.Info("Repository cloned successfully",
				logfields.Name(repo.Name), logfields.URL(repo.URL),
				slog.String("commit", result.CommitSHA[:8]), slog.Time("commit_date", result.CommitDate),
				logfields.Path(repoPath))
		} else {
			slog.Info("Repository cloned successfully (commit metadata unavailable)",
				logfields.Name(repo.Name), logfields.URL(repo.URL),
				slog.String("commit", result.CommitSHA[:8]), logfields.Path(repoPath))
		}
	} else {
		slog.Info("Repository cloned successfully", logfields.Name(repo.Name), logfields.URL(repo.URL), logfields.Path(repoPath))
	}

	return result, nil
}

func classifyCloneError(url string, err error) error {
	l := strings.ToLower(err.Error())
	if strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") || strings.Contains(l, "invalid username or password") {
		return &AuthError{Op: "clone", URL: url, Err: err}
	}
	if strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist") {
		return &NotFoundError{Op: "clone", URL: url, Err: err}
	}
	if strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported") {
		return &UnsupportedProtocolError{Op: "clone", URL: url, Err: err}
	}
	if strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests") {
		return &RateLimitError{Op: "clone", URL: url, Err: err}
	}
	if strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout") {
		return &NetworkTimeoutError{Op: "clone", URL: url, Err: err}
	}
	return fmt.Errorf("failed to clone repository %s: %w", url, err)
}

// UpdateRepo updates an existing repository or clones it if missing. Wraps
// the operation with retry logic unless already running inside a retry loop.
func (c *Client) UpdateRepo(repo Repository) (string, error) {
	if c.inRetry {
		return c.updateOnce(repo)
	}
	return c.withRetry("update", repo.Name, func() (string, error) { return c.updateOnce(repo) })
}

func (c *Client) updateOnce(repo Repository) (string, error) {
	repoPath := filepath.Join(c.workspaceDir, repo.Name)
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil { // missing => clone
		slog.Debug("Repository missing, cloning", logfields.Name(repo.Name))
		return c.cloneOnce(repo)
	}
	return c.updateExistingRepo(repoPath, repo)
}
