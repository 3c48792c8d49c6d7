package steps

import (
	"context"

	"git.internal.example/releng/pkgrelease/internal/engine"
)

// PullLatest fetches and fast-forwards the configured branch, recording the
// resulting head onto the task for later comparison.
func (d *Deps) PullLatest(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	b := branch(sc.Project)
	repoURL := sc.Project.ReviewForgeURL
	if repoURL == "" {
		repoURL = sc.Project.MirrorCloneURL
	}

	if _, err := d.Repos.Update(repoURL, b, sc.Project.Name); err != nil {
		return engine.Fail(err)
	}

	head, err := d.Repos.LatestCommit(sc.Project.Name, b)
	if err != nil {
		return engine.Fail(err)
	}
	sc.Task.StartHead = head.Long
	return engine.Ok()
}
