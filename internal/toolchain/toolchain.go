// Package toolchain wraps the external command-line tools the task engine
// shells out to: dch, dpkg-parsechangelog, the review-forge push helper and
// the public-forge CLI. Every invocation is isolated to an explicit
// directory and environment — it never inherits the daemon's own
// process-wide environment or working directory.
package toolchain

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// DefaultTimeout bounds any single external command invocation.
const DefaultTimeout = 2 * time.Minute

// Result is the outcome of a single command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands with an isolated Dir/Env. LookPath is
// injectable so step handlers can be tested without invoking real binaries.
type Runner struct {
	LookPath func(file string) (string, error)
	Timeout  time.Duration
}

// NewRunner builds a Runner using the real OS exec.LookPath.
func NewRunner() *Runner {
	return &Runner{LookPath: exec.LookPath, Timeout: DefaultTimeout}
}

// Available reports whether name resolves to an executable on PATH.
func (r *Runner) Available(name string) bool {
	lookup := r.LookPath
	if lookup == nil {
		lookup = exec.LookPath
	}
	_, err := lookup(name)
	return err == nil
}

// Run executes name with args in dir, with env appended to a clean base
// environment (never the daemon's own os.Environ()); callers pass every
// variable the command needs explicitly (e.g. DEBEMAIL, DEBFULLNAME,
// http_proxy).
func (r *Runner) Run(ctx context.Context, dir, name string, args []string, env []string) (Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		return result, foundation.NewError(foundation.ErrorCodeToolchain, name+" failed").
			WithCause(err).WithComponent("toolchain").WithOperation(name).
			WithField("dir", dir).WithField("args", args).WithField("stderr", result.Stderr).
			Build()
	}
	return result, nil
}
