package git

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// CommitInfo describes a single commit the way a task's latest_commit and
// commits_since fields need it.
type CommitInfo struct {
	Short     string
	Long      string
	Subject   string
	Author    string
	Timestamp string
}

// RepositoryService owns the on-disk clone tree rooted at a configured
// clone root directory. It wraps Client for clone/fetch mechanics and adds
// a per-clone-path advisory lock plus read-only commit inspection
// operations.
type RepositoryService struct {
	client    *Client
	cloneRoot string
	proxyURL  string
	proxyHost string // host of the review (public) forge; proxy applies only to this host

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRepositoryService creates a service rooted at cloneRoot. proxyHost is
// the review forge's host; the configured proxyURL is applied only to
// operations whose repository URL matches that host.
func NewRepositoryService(cloneRoot, proxyURL, proxyHost string) *RepositoryService {
	return &RepositoryService{
		client:    NewClient(cloneRoot),
		cloneRoot: cloneRoot,
		proxyURL:  proxyURL,
		proxyHost: proxyHost,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *RepositoryService) pathFor(name string) string {
	return filepath.Join(s.cloneRoot, name)
}

// lockFor returns the advisory lock for a clone path, serializing mutating
// operations on the same working tree.
func (s *RepositoryService) lockFor(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// applyProxy exports http_proxy/https_proxy for the duration of fn when
// repoURL targets the review forge host; restores the prior environment
// afterward. The repository service is the only caller that needs transient
// process-env proxy toggling (go-git's transport reads it from the
// environment); every other subprocess invocation goes through
// internal/toolchain, which sets env per-exec.Cmd instead.
func (s *RepositoryService) applyProxy(repoURL string, fn func() error) error {
	if s.proxyURL == "" || s.proxyHost == "" {
		return fn()
	}
	u, err := url.Parse(repoURL)
	if err != nil || u.Host != s.proxyHost {
		return fn()
	}

	prevHTTP, hadHTTP := os.LookupEnv("http_proxy")
	prevHTTPS, hadHTTPS := os.LookupEnv("https_proxy")
	_ = os.Setenv("http_proxy", s.proxyURL)
	_ = os.Setenv("https_proxy", s.proxyURL)
	defer func() {
		if hadHTTP {
			_ = os.Setenv("http_proxy", prevHTTP)
		} else {
			_ = os.Unsetenv("http_proxy")
		}
		if hadHTTPS {
			_ = os.Setenv("https_proxy", prevHTTPS)
		} else {
			_ = os.Unsetenv("https_proxy")
		}
	}()
	return fn()
}

// Clone runs synchronously while holding the clone path's lock; destructive
// with respect to any pre-existing tree.
func (s *RepositoryService) Clone(repoURL, branch, name string) (path string, err error) {
	path = s.pathFor(name)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	repo := Repository{URL: repoURL, Name: name, Branch: branch}
	err = s.applyProxy(repoURL, func() error {
		_, cloneErr := s.client.CloneRepoWithMetadata(repo)
		return cloneErr
	})
	if err != nil {
		return "", ClassifyGitError(err, "clone", repoURL)
	}
	return path, nil
}

// Update fetches origin, checks out the configured branch and fast-forwards.
// It never mutates the branch head destructively.
func (s *RepositoryService) Update(repoURL, branch, name string) (path string, err error) {
	path = s.pathFor(name)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	repo := Repository{URL: repoURL, Name: name, Branch: branch}
	err = s.applyProxy(repoURL, func() error {
		_, updateErr := s.client.UpdateRepo(repo)
		return updateErr
	})
	if err != nil {
		return "", ClassifyGitError(err, "update", repoURL)
	}
	return path, nil
}

// WithLock runs fn while holding the advisory lock for name's clone path;
// used by checkout-sensitive step handlers (commit, push) that must not run
// concurrently with a clone/update of the same project.
func (s *RepositoryService) WithLock(name string, fn func(clonePath string) error) error {
	path := s.pathFor(name)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return fn(path)
}

func (s *RepositoryService) openBranch(name, branch string) (*gogit.Repository, *plumbing.Reference, error) {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, nil, foundation.NotFoundError("clone not found").
			WithComponent("git").WithField("name", name).WithCause(err).Build()
	}
	var ref *plumbing.Reference
	if branch != "" {
		ref, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	} else {
		ref, err = repo.Head()
	}
	if err != nil {
		return nil, nil, GitError("resolve branch reference").WithCause(err).
			WithField("name", name).WithField("branch", branch).Build()
	}
	return repo, ref, nil
}

func toCommitInfo(c *object.Commit) CommitInfo {
	subject := c.Message
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	return CommitInfo{
		Short:     c.Hash.String()[:8],
		Long:      c.Hash.String(),
		Subject:   subject,
		Author:    c.Author.Name,
		Timestamp: c.Author.When.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// LatestCommit returns the tip commit of the configured branch.
func (s *RepositoryService) LatestCommit(name, branch string) (CommitInfo, error) {
	repo, ref, err := s.openBranch(name, branch)
	if err != nil {
		return CommitInfo{}, err
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return CommitInfo{}, GitError("read tip commit").WithCause(err).WithField("name", name).Build()
	}
	return toCommitInfo(commit), nil
}

// CommitsSince enumerates commits reachable from the branch tip but not from
// rev (a commit id or tag). Returns them oldest-first as full CommitInfo
// values; the changelog step reads only their subjects.
func (s *RepositoryService) CommitsSince(name, branch, rev string) ([]CommitInfo, error) {
	repo, ref, err := s.openBranch(name, branch)
	if err != nil {
		return nil, err
	}

	boundary, err := resolveRevision(repo, rev)
	if err != nil {
		return nil, err
	}

	commits, err := walkCommitsSince(repo, ref.Hash(), boundary)
	if err != nil {
		return nil, GitError("walk commits since boundary").WithCause(err).
			WithField("name", name).WithField("rev", rev).Build()
	}
	return commits, nil
}

func resolveRevision(repo *gogit.Repository, rev string) (plumbing.Hash, error) {
	if h, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
		return *h, nil
	}
	if h, err := repo.ResolveRevision(plumbing.Revision("refs/tags/" + rev)); err == nil {
		return *h, nil
	}
	return plumbing.Hash{}, GitError("resolve revision").WithField("rev", rev).Build()
}

func walkCommitsSince(repo *gogit.Repository, tip, boundary plumbing.Hash) ([]CommitInfo, error) {
	iter, err := repo.Log(&gogit.LogOptions{From: tip})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == boundary {
			return gogit.ErrStop
		}
		if len(c.ParentHashes) > 1 {
			return nil // skip merges
		}
		out = append(out, toCommitInfo(c))
		return nil
	})
	if err != nil && err != gogit.ErrStop {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CommitSubject returns the one-line subject of an arbitrary commit id.
func (s *RepositoryService) CommitSubject(name, id string) (string, error) {
	path := s.pathFor(name)
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", foundation.NotFoundError("clone not found").WithComponent("git").WithField("name", name).Build()
	}
	commit, err := repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return "", GitError("read commit").WithCause(err).WithField("name", name).WithField("commit", id).Build()
	}
	return toCommitInfo(commit).Subject, nil
}

// ClonePath returns the expected on-disk path for a project name without touching disk.
func (s *RepositoryService) ClonePath(name string) string { return s.pathFor(name) }
