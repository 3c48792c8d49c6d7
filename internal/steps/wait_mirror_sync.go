package steps

import (
	"context"
	"time"

	"git.internal.example/releng/pkgrelease/internal/changelog"
	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/foundation"
)

const (
	mirrorPollInterval   = 30 * time.Second
	mirrorPollMaxRetries = 20
)

// WaitMirrorSync is skipped unless both forges are configured. Considers the mirror synchronized by
// either tip-id match or commit-subject match (mirroring may rewrite ids).
// On retry, the very first poll skips the initial sleep.
func (d *Deps) WaitMirrorSync(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	if !sc.Project.HasReviewForge() || !sc.Project.HasMirrorForge() {
		return engine.Skip()
	}
	if d.InternalForge == nil {
		return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "project has a mirror forge configured but no InternalForge client is wired").
			WithComponent("steps").WithOperation("wait_for_mirror_sync").Build())
	}

	expectedID := sc.Task.MirrorHead
	expectedSubject, err := d.expectedSubject(ctx, sc)
	if err != nil {
		sc.Log.Warn("wait mirror sync: could not resolve expected subject", "error", err.Error())
	}

	owner, repo := ownerRepo(sc.Project.MirrorForgeURL)
	skipFirstSleep := sc.Step.RetryCount > 0

	for i := 0; i < mirrorPollMaxRetries; i++ {
		if i > 0 || !skipFirstSleep {
			if sc.SleepOrCancel(mirrorPollInterval) {
				return engine.Ok()
			}
		}

		tip, err := d.InternalForge.BranchTip(ctx, owner+"/"+repo, sc.Project.MirrorForgeBranch)
		if err != nil {
			sc.Log.Warn("wait mirror sync: poll failed, retrying", "error", err.Error())
			continue
		}
		if tip == expectedID {
			sc.Task.MirrorSynced = true
			return engine.Ok()
		}
		if expectedSubject != "" {
			if msg, err := d.InternalForge.CommitMessage(ctx, owner+"/"+repo, tip); err == nil {
				if changelog.NormalizeSubject(firstLine(msg)) == changelog.NormalizeSubject(expectedSubject) {
					sc.Task.MirrorSynced = true
					return engine.Ok()
				}
			}
		}
	}

	return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "mirror did not observe the merge within the polling budget").
		WithComponent("steps").WithOperation("wait_for_mirror_sync").Retryable().Build())
}

// expectedSubject resolves the expected commit subject via the public
// forge's commit-detail endpoint, falling back to the local clone.
func (d *Deps) expectedSubject(ctx context.Context, sc *engine.StepContext) (string, error) {
	if sc.Task.MirrorHead == "" {
		return "", nil
	}
	owner, repo := ownerRepo(sc.Project.ReviewForgeURL)
	if detail, err := d.ReviewForge.GetCommit(ctx, owner, repo, sc.Task.MirrorHead); err == nil {
		return firstLine(detail.Message), nil
	}
	return d.Repos.CommitSubject(sc.Project.Name, sc.Task.MirrorHead)
}
