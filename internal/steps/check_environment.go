package steps

import (
	"context"
	"os"
	"path/filepath"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// CheckEnvironment verifies the clone exists, debian/changelog exists, and
// the tools this task will need are on PATH. Failures are fatal and
// user-actionable.
func (d *Deps) CheckEnvironment(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	clonePath := d.Repos.ClonePath(sc.Project.Name)
	if fi, err := os.Stat(clonePath); err != nil || !fi.IsDir() {
		return engine.Fail(foundation.ValidationError("clone does not exist").
			WithComponent("steps").WithOperation("check_environment").
			WithField("path", clonePath).UserFacing().Build())
	}

	changelogPath := filepath.Join(clonePath, "debian", "changelog")
	if _, err := os.Stat(changelogPath); err != nil {
		return engine.Fail(foundation.ValidationError("debian/changelog is missing").
			WithComponent("steps").WithOperation("check_environment").
			WithField("path", changelogPath).UserFacing().Build())
	}

	if !d.Runner.Available("dch") {
		return engine.Fail(foundation.ValidationError("dch is not available on PATH").
			WithComponent("steps").WithOperation("check_environment").UserFacing().Build())
	}
	if sc.Project.HasReviewForge() && !d.Runner.Available("public-forge") {
		return engine.Fail(foundation.ValidationError("public-forge CLI is not available on PATH").
			WithComponent("steps").WithOperation("check_environment").UserFacing().Build())
	}
	if sc.Project.HasMirrorForge() && !d.Runner.Available("review-push") {
		return engine.Fail(foundation.ValidationError("review-push CLI is not available on PATH").
			WithComponent("steps").WithOperation("check_environment").UserFacing().Build())
	}

	return engine.Ok()
}
