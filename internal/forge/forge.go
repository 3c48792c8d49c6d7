// Package forge defines the semantic contracts of the two Git forges the
// task engine depends on. Wire/HTTP shape is deliberately out of scope:
// these interfaces describe only what the engine needs to observe and
// invoke, leaving concrete HTTP clients to be wired in by an operator.
package forge

import "context"

// ReviewState is the lifecycle of a public-forge review (pull request).
type ReviewState string

const (
	ReviewStateOpen   ReviewState = "open"
	ReviewStateClosed ReviewState = "closed"
)

// ReviewDetail is the result of polling a review's detail endpoint.
type ReviewDetail struct {
	State           ReviewState
	Merged          bool
	MergeableState  string
	MergeCommitSHA  string
	MergedByLogin   string
}

// CommitDetail is the result of the commit-detail endpoint.
type CommitDetail struct {
	Message string
}

// CreateReviewRequest is the input to ReviewForge.CreateReview.
type CreateReviewRequest struct {
	Owner string
	Repo  string
	Head  string // "{user}:{branch}"
	Base  string
	Title string
	Body  string
}

// ReviewForge is the public, pull-request-model Git forge. Bearer-token
// authenticated.
type ReviewForge interface {
	// CreateReview opens a review, tolerating a forge report that one
	// already exists for head/base (the caller is expected to recover the
	// existing review's URL from the returned error).
	CreateReview(ctx context.Context, req CreateReviewRequest) (url string, number int, err error)
	GetReview(ctx context.Context, owner, repo string, number int) (ReviewDetail, error)
	GetCommit(ctx context.Context, owner, repo, id string) (CommitDetail, error)
}

// InternalForge is the internal, review-on-push mirror forge.
// LDAP-credential authenticated.
type InternalForge interface {
	// BranchTip returns the current revision id at the tip of branch.
	BranchTip(ctx context.Context, project, branch string) (revision string, err error)
	// CommitMessage returns the commit message for a gitiles-style lookup by id.
	CommitMessage(ctx context.Context, project, id string) (string, error)
}
