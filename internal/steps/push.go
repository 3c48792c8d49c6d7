package steps

import (
	"context"
	"fmt"
	"net/url"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/toolchain"
)

// Push force-pushes public-forge projects to a "fork" remote;
// internal-forge-only projects invoke the review-push CLI against
// refs/for/{branch}.
func (d *Deps) Push(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	b := sc.Task.ReviewBranch
	if b == "" {
		b = branch(sc.Project)
	}

	if sc.Project.HasReviewForge() {
		repo := sc.Project.Name
		user := sc.Project.GithubUsername
		if user == "" {
			user = sc.Config.ForgeUsername
		}
		forkURL := fmt.Sprintf("https://%s/%s/%s.git", reviewForgeHost(sc.Project.ReviewForgeURL), user, repo)
		if err := d.Repos.EnsureRemote(repo, "fork", forkURL); err != nil {
			return engine.Fail(err)
		}
		if err := d.Repos.ForcePush(repo, "fork", b); err != nil {
			return engine.Fail(err)
		}
		return engine.Ok()
	}

	clonePath := d.Repos.ClonePath(sc.Project.Name)
	env := toolchain.BaseEnv("/usr/bin:/bin", sc.Config.DebEmailName, sc.Config.DebEmailAddress)
	if _, err := d.ForgeCLI.Push(ctx, clonePath, b, env); err != nil {
		return engine.Fail(err)
	}
	return engine.Ok()
}

func reviewForgeHost(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return ""
	}
	return u.Host
}
