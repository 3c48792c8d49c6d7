// Package steps implements the ten catalog step handlers dispatched by
// internal/engine, one file per step family.
package steps

import (
	"strings"

	"git.internal.example/releng/pkgrelease/internal/changelog"
	"git.internal.example/releng/pkgrelease/internal/crp"
	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/forge"
	"git.internal.example/releng/pkgrelease/internal/git"
	"git.internal.example/releng/pkgrelease/internal/task"
	"git.internal.example/releng/pkgrelease/internal/toolchain"
)

// Deps bundles every external collaborator a step handler may need. A
// single Deps value is shared by every handler in the catalog.
type Deps struct {
	Repos      *git.RepositoryService
	Changelogs *changelog.Service
	Runner     *toolchain.Runner
	Dch        *toolchain.Changelog
	ForgeCLI   *toolchain.ForgeCLI
	ReviewForge forge.ReviewForge
	InternalForge forge.InternalForge
	PackageService crp.PackageService
}

// BuildCatalog wires every handler into an engine.Catalog keyed by step name.
func BuildCatalog(d *Deps) engine.Catalog {
	return engine.Catalog{
		task.StepCheckEnvironment:  d.CheckEnvironment,
		task.StepPullLatest:        d.PullLatest,
		task.StepGenerateChangelog: d.GenerateChangelog,
		task.StepCommit:            d.Commit,
		task.StepPush:              d.Push,
		task.StepCreateReview:      d.CreateReview,
		task.StepMonitorReview:     d.MonitorReview,
		task.StepWaitMirrorSync:    d.WaitMirrorSync,
		task.StepDispatchBuild:     d.DispatchBuild,
		task.StepMonitorBuild:      d.MonitorBuild,
	}
}

// safeVersion replaces ':', ' ', '/' with '-' to derive
// dev-changelog-{safe_version} branch names.
func safeVersion(version string) string {
	r := strings.NewReplacer(":", "-", " ", "-", "/", "-")
	return r.Replace(version)
}

// branch resolves the branch a task operates against, preferring the
// review forge's branch and falling back to the mirror forge's.
func branch(p *task.Project) string {
	if p.ReviewForgeBranch != "" {
		return p.ReviewForgeBranch
	}
	return p.MirrorForgeBranch
}
