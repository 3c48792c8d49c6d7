// Package changelog parses the Debian changelog format and answers the
// "current version" / "last commit that touched the changelog" questions
// the task engine needs, with a short-TTL cache keyed by clone path.
package changelog

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// Entry is the parsed header of the topmost changelog stanza.
type Entry struct {
	Source      string
	Version     string
	Distribution string
	Urgency     string
	Raw         string
}

// topLineRe matches the Debian changelog stanza header, the same shape
// dpkg-parsechangelog's output describes: "pkg (version) distribution;
// urgency=level"
var topLineRe = regexp.MustCompile(`^(\S+)\s+\(([^)]+)\)\s+([^;]+);\s*urgency=(\S+)`)

type cacheEntry struct {
	version   string
	commit    string
	fetchedAt time.Time
}

const cacheTTL = 60 * time.Second

// Service parses debian/changelog files and caches the results.
// The cache's "same key" staleness quirk is preserved intentionally:
// Invalidate only clears the requested clone path's entry,
// and a cache hit returns whichever of version/commit was last populated
// even if the other was fetched at a different time.
type Service struct {
	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewService creates an empty-cache changelog service.
func NewService() *Service {
	return &Service{cache: make(map[string]*cacheEntry)}
}

func changelogPath(clonePath string) string {
	return filepath.Join(clonePath, "debian", "changelog")
}

// Info returns the full first-entry header, parsed directly (never cached;
// callers needing the cached version/commit pair use CurrentVersion).
func (s *Service) Info(clonePath string) (*Entry, error) {
	f, err := os.Open(changelogPath(clonePath))
	if err != nil {
		return nil, foundation.NotFoundError("debian/changelog not found").
			WithComponent("changelog").WithField("clone_path", clonePath).WithCause(err).Build()
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := topLineRe.FindStringSubmatch(line); m != nil {
			return &Entry{Source: m[1], Version: m[2], Distribution: strings.TrimSpace(m[3]), Urgency: m[4], Raw: line}, nil
		}
	}
	return nil, foundation.ValidationError("malformed debian/changelog: no stanza header found").
		WithComponent("changelog").WithField("clone_path", clonePath).Build()
}

// CurrentVersion returns the topmost entry's version, using the 60s cache.
func (s *Service) CurrentVersion(clonePath string) (string, error) {
	s.mu.Lock()
	if e, ok := s.cache[clonePath]; ok && time.Since(e.fetchedAt) < cacheTTL && e.version != "" {
		v := e.version
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	entry, err := s.Info(clonePath)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	e, ok := s.cache[clonePath]
	if !ok {
		e = &cacheEntry{}
		s.cache[clonePath] = e
	}
	e.version = entry.Version
	e.fetchedAt = time.Now()
	s.mu.Unlock()

	return entry.Version, nil
}

// LastTouchingCommit returns the id of the most recent commit that modified
// debian/changelog, using the same cache entry as CurrentVersion.
func (s *Service) LastTouchingCommit(clonePath string, blame func() (string, error)) (string, error) {
	s.mu.Lock()
	if e, ok := s.cache[clonePath]; ok && time.Since(e.fetchedAt) < cacheTTL && e.commit != "" {
		c := e.commit
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	commit, err := blame()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	e, ok := s.cache[clonePath]
	if !ok {
		e = &cacheEntry{}
		s.cache[clonePath] = e
	}
	e.commit = commit
	e.fetchedAt = time.Now()
	s.mu.Unlock()

	return commit, nil
}

// Invalidate clears the cache entry for one clone path.
func (s *Service) Invalidate(clonePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, clonePath)
}

// InvalidateAll clears the entire cache.
func (s *Service) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cacheEntry)
}

// NormalizeSubject applies NFC normalization before comparing commit
// subjects across forges, since the mirror and review forge may encode
// non-ASCII maintainer names or commit summaries differently even when
// the bytes are semantically the same string. Used by the mirror-sync
// subject-fallback match.
func NormalizeSubject(subject string) string {
	return norm.NFC.String(strings.TrimSpace(subject))
}
