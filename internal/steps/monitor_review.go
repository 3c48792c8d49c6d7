package steps

import (
	"context"
	"time"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/foundation"
	"git.internal.example/releng/pkgrelease/internal/forge"
)

const (
	reviewPollInterval   = 30 * time.Second
	reviewPollMaxRetries = 60
)

// MonitorReview polls the public forge's review-detail endpoint every 30s
// for up to 60 iterations.
func (d *Deps) MonitorReview(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	if !sc.Project.HasReviewForge() {
		return engine.Skip()
	}
	if d.ReviewForge == nil {
		return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "project has a review forge configured but no ReviewForge client is wired").
			WithComponent("steps").WithOperation("monitor_review").Build())
	}

	owner, repo := ownerRepo(sc.Project.ReviewForgeURL)

	for i := 0; i < reviewPollMaxRetries; i++ {
		if i > 0 {
			if sc.SleepOrCancel(reviewPollInterval) {
				return engine.Ok()
			}
		}

		detail, err := d.ReviewForge.GetReview(ctx, owner, repo, sc.Task.ReviewNumber)
		if err != nil {
			sc.Log.Warn("monitor review: poll failed, retrying", "error", err.Error())
			continue
		}

		if detail.Merged {
			sc.Task.MirrorHead = detail.MergeCommitSHA
			sc.Task.ReviewState = "merged"
			return engine.Ok()
		}
		if detail.State == forge.ReviewStateClosed && !detail.Merged {
			return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "review closed but not merged").
				WithComponent("steps").WithOperation("monitor_review").UserFacing().Build())
		}
		sc.Task.ReviewState = string(detail.State)
	}

	return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "review did not merge within the polling budget").
		WithComponent("steps").WithOperation("monitor_review").Retryable().Build())
}
