package crp

import (
	"context"
	"strings"
)

// ResolveProjectID implements the three-level ProjectID resolution fallback
// from original_source/app/services/crp_service.py's submit_build: first
// look for an existing release under the topic whose project name is a
// prefix match on the same branch, then fall back to a direct project
// search, and finally give up with 0 (meaning "let CRP infer it").
func ResolveProjectID(ctx context.Context, svc PackageService, topicID, projectName, branchID string) (int, error) {
	releases, err := svc.ListTopicReleases(ctx, topicID)
	if err == nil {
		for _, r := range releases {
			if r.Branch == branchID && strings.HasPrefix(r.ProjectName, projectName) {
				return r.ProjectID, nil
			}
		}
	}

	projects, err := svc.SearchProjects(ctx, projectName, branchID)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		if strings.HasPrefix(p.Name, projectName) {
			return p.ID, nil
		}
	}
	return 0, nil
}

// findExistingRelease returns the release already registered under the
// topic for this project/branch, if any (prefix match on project name, the
// way crp_service.py locates the release to delete before resubmitting).
func findExistingRelease(releases []Release, projectName, branchID string) (Release, bool) {
	for _, r := range releases {
		if r.Branch == branchID && strings.HasPrefix(r.ProjectName, projectName) {
			return r, true
		}
	}
	return Release{}, false
}

// SubmitOrReplace submits a new release, first deleting any existing
// fuzzy-matching release under the topic for the same project/branch
// (original_source's submit_build: CRP refuses a second release for an
// already-registered project/branch pair, so the prior one is removed
// first). Returns the new release id and its build URL.
func SubmitOrReplace(ctx context.Context, svc PackageService, req ReleaseRequest) (int, string, error) {
	if req.ProjectID == 0 {
		resolved, err := ResolveProjectID(ctx, svc, req.TopicID, req.ProjectName, req.BranchID)
		if err == nil {
			req.ProjectID = resolved
		}
	}

	if releases, err := svc.ListTopicReleases(ctx, req.TopicID); err == nil {
		if existing, found := findExistingRelease(releases, req.ProjectName, req.BranchID); found {
			if err := svc.DeleteRelease(ctx, existing.ID); err != nil {
				return 0, "", err
			}
		}
	}

	return svc.SubmitRelease(ctx, req)
}
