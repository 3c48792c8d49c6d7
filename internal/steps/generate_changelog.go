package steps

import (
	"context"
	"strings"

	"git.internal.example/releng/pkgrelease/internal/changelog"
	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/toolchain"
)

// GenerateChangelog, on public-forge projects, (re)creates the dev branch
// from the remote base, finds the previous version, enumerates commit
// subjects since it, and drives dch to synthesize the new stanza.
func (d *Deps) GenerateChangelog(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	clonePath := d.Repos.ClonePath(sc.Project.Name)
	b := branch(sc.Project)

	if sc.Project.HasReviewForge() {
		devBranch := "dev-changelog-" + safeVersion(sc.Task.Version)
		if err := d.Repos.CreateOrResetBranch(sc.Project.Name, devBranch, b); err != nil {
			return engine.Fail(err)
		}
		sc.Task.ReviewBranch = devBranch
		b = devBranch
	}

	prevVersion, err := d.Changelogs.CurrentVersion(clonePath)
	if err != nil {
		prevVersion = "" // no prior stanza; use the fallback below
	}

	var boundary string
	if prevVersion != "" {
		boundary, err = changelog.FindCommitForVersion(clonePath, prevVersion)
	}
	if boundary == "" {
		// fallback: the branch tip. CommitsSince then returns no commits, so
		// the stanza gets the single "Release {version}" entry below; neither
		// the latest tag nor the repository root commit is consulted.
		if head, herr := d.Repos.LatestCommit(sc.Project.Name, b); herr == nil {
			boundary = head.Long
		}
	}

	var subjects []string
	if boundary != "" {
		commits, cerr := d.Repos.CommitsSince(sc.Project.Name, b, boundary)
		if cerr == nil {
			for _, c := range commits {
				subjects = append(subjects, c.Subject)
			}
		}
	}
	if len(subjects) == 0 {
		subjects = []string{"Release " + sc.Task.Version}
	}

	env := toolchain.WithProxy(
		toolchain.BaseEnv("/usr/bin:/bin", sc.Config.DebEmailName, sc.Config.DebEmailAddress),
		"",
	)

	for i, subject := range subjects {
		if i == 0 {
			if err := runDchFirstEntry(ctx, d, clonePath, sc.Task.Version, subject, env); err != nil {
				return engine.Fail(err)
			}
			continue
		}
		if err := d.Dch.Append(ctx, clonePath, subject, env); err != nil {
			return engine.Fail(err)
		}
	}

	d.Changelogs.Invalidate(clonePath)
	return engine.Ok()
}

// runDchFirstEntry runs `dch -v {version} -D unstable {subject}` for the
// first commit subject; subsequent subjects are appended with -a instead.
func runDchFirstEntry(ctx context.Context, d *Deps, clonePath, version, subject string, env []string) error {
	_, err := d.Runner.Run(ctx, clonePath, "dch", []string{"-v", version, "-D", "unstable", subject}, env)
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
