package steps

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/foundation"
	"git.internal.example/releng/pkgrelease/internal/forge"
)

const reviewTitleTemplate = "chore: bump version to %s"
const reviewBodyTemplate = "Automated changelog update to version %s."

// reviewNumberInURLRe extracts the trailing review/PR number from a forge URL.
var reviewNumberInURLRe = regexp.MustCompile(`/(\d+)$`)

// alreadyExistsRe extracts the existing review's URL from a CLI's "already
// exists" error text.
var alreadyExistsRe = regexp.MustCompile(`already exists:\s*(\S+)`)

// CreateReview is skipped without a public forge URL; tolerates "already
// exists" by recovering the existing review's URL and number.
func (d *Deps) CreateReview(ctx context.Context, sc *engine.StepContext) engine.Outcome {
	if !sc.Project.HasReviewForge() {
		return engine.Skip()
	}
	if d.ReviewForge == nil {
		return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "project has a review forge configured but no ReviewForge client is wired").
			WithComponent("steps").WithOperation("create_review").Build())
	}

	owner, repo := ownerRepo(sc.Project.ReviewForgeURL)
	head := fmt.Sprintf("%s:%s", sc.Config.ForgeUsername, sc.Task.ReviewBranch)
	base := branch(sc.Project)

	reviewURL, number, err := d.ReviewForge.CreateReview(ctx, forge.CreateReviewRequest{
		Owner: owner, Repo: repo, Head: head, Base: base,
		Title: fmt.Sprintf(reviewTitleTemplate, sc.Task.Version),
		Body:  fmt.Sprintf(reviewBodyTemplate, sc.Task.Version),
	})
	if err != nil {
		if match := alreadyExistsRe.FindStringSubmatch(err.Error()); match != nil {
			reviewURL = match[1]
			number = parseReviewNumber(reviewURL)
		} else {
			return engine.Fail(foundation.NewError(foundation.ErrorCodeForge, "create review failed").
				WithComponent("steps").WithOperation("create_review").WithCause(err).Build())
		}
	}

	sc.Task.ReviewURL = reviewURL
	sc.Task.ReviewNumber = number
	return engine.Ok()
}

func parseReviewNumber(reviewURL string) int {
	match := reviewNumberInURLRe.FindStringSubmatch(reviewURL)
	if match == nil {
		return 0
	}
	n, _ := strconv.Atoi(match[1])
	return n
}

func ownerRepo(reviewForgeURL string) (owner, repo string) {
	u, err := url.Parse(reviewForgeURL)
	if err != nil {
		return "", ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return "", ""
}
