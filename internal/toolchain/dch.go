package toolchain

import (
	"context"
	"strings"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// Changelog wraps dch(1) and dpkg-parsechangelog(1). The
// changelog-generation step shells out to dch only.
type Changelog struct {
	runner *Runner
}

// NewChangelog builds a Changelog tool wrapper over runner.
func NewChangelog(runner *Runner) *Changelog {
	return &Changelog{runner: runner}
}

// BumpVersion runs `dch --newversion <version> <title>` inside clonePath,
// appending a new debian/changelog stanza.
func (c *Changelog) BumpVersion(ctx context.Context, clonePath, version, title string, env []string) error {
	_, err := c.runner.Run(ctx, clonePath, "dch", []string{"--newversion", version, title}, env)
	if err != nil {
		return err
	}
	return nil
}

// Append runs `dch -a <subject>`, adding a bullet line to the currently
// open (topmost, unreleased) stanza without touching its version. Used for
// every commit subject after the first in a release with multiple commits.
func (c *Changelog) Append(ctx context.Context, clonePath, subject string, env []string) error {
	_, err := c.runner.Run(ctx, clonePath, "dch", []string{"-a", subject}, env)
	return err
}

// Release runs `dch --release ""`, closing the changelog stanza for upload.
func (c *Changelog) Release(ctx context.Context, clonePath string, env []string) error {
	_, err := c.runner.Run(ctx, clonePath, "dch", []string{"--release", ""}, env)
	return err
}

// ParseVersion runs `dpkg-parsechangelog -SVersion` and returns the trimmed
// version string, independent of the in-process regex parser in
// internal/changelog. No step handler calls it.
func (c *Changelog) ParseVersion(ctx context.Context, clonePath string, env []string) (string, error) {
	result, err := c.runner.Run(ctx, clonePath, "dpkg-parsechangelog", []string{"-SVersion"}, env)
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(result.Stdout)
	if version == "" {
		return "", foundation.NewError(foundation.ErrorCodeToolchain, "dpkg-parsechangelog returned an empty version").
			WithComponent("toolchain").WithField("dir", clonePath).Build()
	}
	return version, nil
}
