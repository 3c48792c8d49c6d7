package steps

import (
	"context"

	"git.internal.example/releng/pkgrelease/internal/engine"
)

// Commit synchronizes with remote, stages debian/changelog, and commits
// with the fixed three-paragraph message. A clean tree is a no-op. Records the new commit id for later mirror-sync
// comparison.
func (d *Deps) Commit(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	b := sc.Task.ReviewBranch
	if b == "" {
		b = branch(sc.Project)
	}

	if err := d.Repos.SyncWithRemote(sc.Project.Name, b, "debian/changelog"); err != nil {
		sc.Log.Warn("sync with remote failed, proceeding with local tree", "error", err.Error())
	}

	commitID, err := d.Repos.CommitChangelog(sc.Project.Name, sc.Task.Version, sc.Config.DebEmailName, sc.Config.DebEmailAddress)
	if err != nil {
		return engine.Fail(err)
	}
	sc.Task.MirrorHead = "" // reset; set for real by "monitor review" once merged
	sc.Task.StartHead = commitID
	return engine.Ok()
}
