package toolchain

import (
	"context"
	"strings"
)

// ForgeCLI wraps the two command-line helpers that front the Git forges:
// review-push (pushes a branch for review to the internal forge; the push
// step uses it for projects without a review forge URL)
// and public-forge (the mirror/public forge's companion CLI), kept as thin
// subprocess wrappers outside the engine's direct HTTP concerns.
type ForgeCLI struct {
	runner *Runner
}

// NewForgeCLI builds a ForgeCLI wrapper over runner.
func NewForgeCLI(runner *Runner) *ForgeCLI {
	return &ForgeCLI{runner: runner}
}

// Push runs `review-push <branch>` inside clonePath, returning the review
// URL it prints on success.
func (f *ForgeCLI) Push(ctx context.Context, clonePath, branch string, env []string) (string, error) {
	result, err := f.runner.Run(ctx, clonePath, "review-push", []string{branch}, env)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// MirrorSyncStatus runs `public-forge sync-status <project> <revision>`,
// returning "synced" or "pending" as printed by the CLI.
func (f *ForgeCLI) MirrorSyncStatus(ctx context.Context, project, revision string, env []string) (string, error) {
	result, err := f.runner.Run(ctx, "", "public-forge", []string{"sync-status", project, revision}, env)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}
