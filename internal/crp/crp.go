// Package crp implements the client contract for the external package
// service (CRP): login, topic/release search, release submission and
// deletion.
package crp

import "context"

// BuildState mirrors the CRP "BuildState.state" field.
type BuildState string

// Release is one (project, branch, commit, tag) tuple registered under a topic.
type Release struct {
	ID          int
	ProjectID   int
	ProjectName string
	Branch      string
	Tag         string
	Commit      string
	BuildID     int
	BuildState  BuildState
	Arches      string
}

// ReleaseRequest is the input to PackageService.SubmitRelease.
type ReleaseRequest struct {
	TopicID        string
	ProjectID      int
	ProjectName    string
	Branch         string
	BranchID       string
	Commit         string
	Tag            string
	Arches         []string
	ChangelogTitle string
}

// Project is one CRP-side project record, as returned by project search.
type Project struct {
	ID     int
	Name   string
	Branch string
}

// PackageService is the narrow contract the engine depends on. Wire bodies
// are an HTTP implementation detail; only the semantics the engine relies
// on are named here.
type PackageService interface {
	// CurrentUser returns the display name of the authenticated account,
	// re-logging in transparently on an expired/absent token.
	CurrentUser(ctx context.Context) (string, error)

	// SearchTopics looks up topics visible to username on a branch.
	SearchTopics(ctx context.Context, topicType, username, branchID string) ([]string, error)

	// ListTopicReleases lists every release registered under a topic.
	ListTopicReleases(ctx context.Context, topicID string) ([]Release, error)

	// SearchProjects looks up CRP project ids by (name, branchID).
	SearchProjects(ctx context.Context, name, branchID string) ([]Project, error)

	// SubmitRelease creates a new release under the topic, returning its id.
	SubmitRelease(ctx context.Context, req ReleaseRequest) (releaseID int, buildURL string, err error)

	// DeleteRelease removes an existing release (used before re-submitting).
	DeleteRelease(ctx context.Context, releaseID int) error

	// RetryRelease re-triggers a build for an existing release without
	// deleting it first. SubmitOrReplace does not call it: it always
	// deletes a matching prior release and submits a new one.
	RetryRelease(ctx context.Context, releaseID int) error
}

// DefaultArches is the fallback architecture set used when a task specifies
// none.
var DefaultArches = []string{"amd64", "arm64", "loong64", "sw64", "mips64el"}
