package steps

import (
	"context"
	"strconv"

	"git.internal.example/releng/pkgrelease/internal/crp"
	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// DispatchBuild resolves the CRP project id, deletes a fuzzy-matching
// prior release under the topic if one exists, and submits a new release.
func (d *Deps) DispatchBuild(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	if d.PackageService == nil {
		return engine.Fail(foundation.NewError(foundation.ErrorCodeCRP, "no PackageService client is wired").
			WithComponent("steps").WithOperation("dispatch_build").Build())
	}

	commit := sc.Task.StartHead
	if sc.Task.MirrorHead != "" {
		commit = sc.Task.MirrorHead
	}

	var title string
	if head, err := d.Repos.LatestCommit(sc.Project.Name, branch(sc.Project)); err == nil {
		title = head.Subject
	}
	if len(title) > 100 {
		title = title[:100]
	}

	arches := sc.Task.Architectures
	if len(arches) == 0 {
		arches = crp.DefaultArches
	}

	id, buildURL, err := crp.SubmitOrReplace(ctx, d.PackageService, crp.ReleaseRequest{
		TopicID:        sc.Task.TopicID,
		ProjectName:    sc.Project.EffectiveAlias(),
		Branch:         branch(sc.Project),
		BranchID:       sc.Config.PackageServiceDefaultBranchID,
		Commit:         commit,
		Tag:            sc.Task.Version,
		Arches:         arches,
		ChangelogTitle: title,
	})
	if err != nil {
		return engine.Fail(err)
	}

	sc.Task.BuildID = strconv.Itoa(id)
	sc.Task.BuildURL = buildURL
	return engine.Ok()
}
