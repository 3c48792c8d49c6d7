package changelog

import (
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// FindCommitForVersion locates the commit that introduced the changelog line
// "pkg (version) ..." by walking debian/changelog's line history. Falls
// back to a commit-message substring search for "bump version to
// {version}" when the blame walk finds nothing.
func FindCommitForVersion(clonePath, version string) (string, error) {
	repo, err := gogit.PlainOpen(clonePath)
	if err != nil {
		return "", foundation.NotFoundError("clone not found").
			WithComponent("changelog").WithField("clone_path", clonePath).WithCause(err).Build()
	}

	if id, ok := blameForVersion(repo, version); ok {
		return id, nil
	}
	if id, ok := searchMessageForVersion(repo, version); ok {
		return id, nil
	}
	return "", foundation.NotFoundError("no commit introduces changelog version").
		WithComponent("changelog").WithField("version", version).Build()
}

// blameForVersion walks debian/changelog's history commit-by-commit (newest
// first) and returns the first commit whose top-of-file stanza matches
// version. This approximates a line-history git-blame without requiring
// go-git's (expensive) full blame implementation for a file that only ever
// changes at the top.
func blameForVersion(repo *gogit.Repository, version string) (string, bool) {
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash(), PathFilter: func(p string) bool {
		return p == filepath.ToSlash(filepath.Join("debian", "changelog"))
	}})
	if err != nil {
		return "", false
	}
	defer iter.Close()

	var found string
	_ = iter.ForEach(func(c *object.Commit) error {
		if found != "" {
			return gogit.ErrStop
		}
		v, ok := versionAtCommit(c)
		if ok && v == version {
			found = c.Hash.String()
			return gogit.ErrStop
		}
		return nil
	})
	return found, found != ""
}

func versionAtCommit(c *object.Commit) (string, bool) {
	f, err := c.File(filepath.ToSlash(filepath.Join("debian", "changelog")))
	if err != nil {
		return "", false
	}
	contents, err := f.Contents()
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(contents, "\n") {
		if m := topLineRe.FindStringSubmatch(line); m != nil {
			return m[2], true
		}
	}
	return "", false
}

func searchMessageForVersion(repo *gogit.Repository, version string) (string, bool) {
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return "", false
	}
	defer iter.Close()

	needle := "bump version to " + version
	var found string
	_ = iter.ForEach(func(c *object.Commit) error {
		if found != "" {
			return gogit.ErrStop
		}
		if strings.Contains(c.Message, needle) {
			found = c.Hash.String()
			return gogit.ErrStop
		}
		return nil
	})
	return found, found != ""
}
