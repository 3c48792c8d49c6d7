package git

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"git.internal.example/releng/pkgrelease/internal/logfields"
	"git.internal.example/releng/pkgrelease/internal/retry"
)

// defaultRetryPolicy governs every clone/update retry loop: two retries,
// linear backoff starting at 500ms and capped at 10s.
var defaultRetryPolicy = retry.NewPolicy(retry.BackoffLinear, 500*time.Millisecond, 10*time.Second, 2)

// withRetry wraps a path-returning operation with the default retry policy.
func (c *Client) withRetry(op, repoName string, fn func() (string, error)) (string, error) {
	pol := defaultRetryPolicy
	var lastErr error
	for attempt := 0; attempt <= pol.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying git operation", slog.String("operation", op), logfields.Name(repoName), slog.Int("attempt", attempt))
		}
		c.inRetry = true
		path, err := fn()
		c.inRetry = false
		if err == nil {
			return path, nil
		}
		lastErr = err
		if isPermanentGitError(err) {
			slog.Error("permanent git error", slog.String("operation", op), logfields.Name(repoName), slog.String("error", err.Error()))
			return "", err
		}
		if attempt == pol.MaxRetries {
			break
		}
		time.Sleep(pol.Delay(attempt + 1)) // attempt is 0-based; Policy expects 1-based retry number
	}
	return "", fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}

// withRetryMetadata wraps a CloneResult-returning operation with the same
// default retry policy as withRetry.
func (c *Client) withRetryMetadata(op, repoName string, fn func() (CloneResult, error)) (CloneResult, error) {
	pol := defaultRetryPolicy
	var lastErr error
	for attempt := 0; attempt <= pol.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying git operation", slog.String("operation", op), logfields.Name(repoName), slog.Int("attempt", attempt))
		}
		c.inRetry = true
		result, err := fn()
		c.inRetry = false
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isPermanentGitError(err) {
			slog.Error("permanent git error", slog.String("operation", op), logfields.Name(repoName), slog.String("error", err.Error()))
			return CloneResult{}, err
		}
		if attempt == pol.MaxRetries {
			break
		}
		time.Sleep(pol.Delay(attempt + 1))
	}
	return CloneResult{}, fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}

func isPermanentGitError(err error) bool {
	if err == nil {
		return false
	}
	var diverged *RemoteDivergedError
	if errors.As(err, &diverged) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return true
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no such remote") || strings.Contains(msg, "invalid reference") {
		return true
	}
	if strings.Contains(msg, "unsupported protocol") {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	return false
}

// IsPermanentGitError exposes isPermanentGitError for tests.
var IsPermanentGitError = isPermanentGitError
