// Package monitor fans out over ready projects to report new commits since
// the last release.
package monitor

import (
	"sync"

	"git.internal.example/releng/pkgrelease/internal/changelog"
	"git.internal.example/releng/pkgrelease/internal/git"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// ProjectStatus is the per-project result of a monitor sweep.
type ProjectStatus struct {
	Project         *task.Project
	CurrentVersion  string
	NewCommitsCount int
	NewCommits      []git.CommitInfo
	LatestCommit    git.CommitInfo
	Err             error
}

// orderedResult pairs a fan-out slot with its outcome.
type orderedResult[R any] struct {
	Value R
	Err   error
}

// FanOut runs fn over items with bounded concurrency, preserving input
// order in the result slice. concurrency is clamped to [1, len(items)].
func FanOut[T any, R any](items []T, concurrency int, fn func(T) (R, error)) []R {
	if len(items) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	sem := make(chan struct{}, concurrency)
	results := make([]orderedResult[R], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := fn(item)
			results[i] = orderedResult[R]{Value: v, Err: err}
		}(i, item)
	}
	wg.Wait()

	out := make([]R, len(results))
	for i, r := range results {
		out[i] = r.Value
		_ = r.Err
	}
	return out
}

// maxConcurrency bounds the monitor's worker pool at min(len(projects), 5).
const maxConcurrency = 5

// Monitor aggregates per-project status using the repository and changelog services.
type Monitor struct {
	repos      *git.RepositoryService
	changelogs *changelog.Service
}

// New creates a Monitor over the given repository and changelog services.
func New(repos *git.RepositoryService, changelogs *changelog.Service) *Monitor {
	return &Monitor{repos: repos, changelogs: changelogs}
}

// Scan runs the fan-out over every ready project and returns one
// ProjectStatus per input, in the same order as projects. Callers should
// not assume this order is meaningful beyond matching the input slice; sort
// the result explicitly if a particular presentation order is required.
func (m *Monitor) Scan(projects []*task.Project) []ProjectStatus {
	concurrency := len(projects)
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}
	return FanOut(projects, concurrency, m.scanOne)
}

func (m *Monitor) scanOne(p *task.Project) (ProjectStatus, error) {
	status := ProjectStatus{Project: p}

	version, err := m.changelogs.CurrentVersion(p.ClonePath)
	if err != nil {
		status.Err = err
		return status, nil
	}
	status.CurrentVersion = version

	touchingCommit, err := m.changelogs.LastTouchingCommit(p.ClonePath, func() (string, error) {
		return changelog.FindCommitForVersion(p.ClonePath, version)
	})
	if err != nil {
		status.Err = err
		return status, nil
	}

	branch := branchFor(p)
	commits, err := m.repos.CommitsSince(p.Name, branch, touchingCommit)
	if err != nil {
		status.Err = err
		return status, nil
	}
	status.NewCommits = commits
	status.NewCommitsCount = len(commits)

	latest, err := m.repos.LatestCommit(p.Name, branch)
	if err != nil {
		status.Err = err
		return status, nil
	}
	status.LatestCommit = latest

	return status, nil
}

func branchFor(p *task.Project) string {
	if p.ReviewForgeBranch != "" {
		return p.ReviewForgeBranch
	}
	return p.MirrorForgeBranch
}
