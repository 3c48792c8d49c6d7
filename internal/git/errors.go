package git

import (
	"strings"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// GitError simplifies creating a git-scoped ClassifiedError.
func GitError(message string) *foundation.ErrorBuilder {
	return foundation.NewError(foundation.ErrorCodeGit, message)
}

// ClassifyGitError translates go-git or command-line git errors into ClassifiedErrors.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}

	// Already classified
	var classified *foundation.ClassifiedError
	if foundation.AsClassified(err, &classified) {
		return err
	}

	msg := err.Error()
	l := strings.ToLower(msg)

	ce := GitError("git operation failed").
		WithCause(err).
		WithField("op", op).
		WithField("url", url).
		Build()

	switch {
	case strings.Contains(l, "authentication failed") || strings.Contains(l, "not authorized") || strings.Contains(l, "could not read username") || strings.Contains(l, "invalid credentials"):
		ce.Code = foundation.ErrorCodeAuth
	case strings.Contains(l, "repository not found") || strings.Contains(l, "not found") || strings.Contains(l, "does not exist"):
		ce.Code = foundation.ErrorCodeNotFound
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") || strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout") || strings.Contains(l, "no route to host"):
		ce.Code = foundation.ErrorCodeNetwork
		ce.Retryable = true
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		ce.Code = foundation.ErrorCodeNetwork
		ce.Retryable = true
	case strings.Contains(l, "diverged") || strings.Contains(l, "non-fast-forward"):
		ce.WithContext(foundation.Fields{"diverged": true})
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		ce.Code = foundation.ErrorCodeConfiguration
	}

	return ce
}
