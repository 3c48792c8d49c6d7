package steps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/git"
	"git.internal.example/releng/pkgrelease/internal/task"
	"git.internal.example/releng/pkgrelease/internal/toolchain"
)

func TestCheckEnvironment_FailsWhenCloneMissing(t *testing.T) {
	root := t.TempDir()
	d := &Deps{
		Repos:  git.NewRepositoryService(root, "", ""),
		Runner: &toolchain.Runner{LookPath: func(string) (string, error) { return "/usr/bin/dch", nil }},
	}
	sc := &engine.StepContext{Project: &task.Project{Name: "demo"}, Task: &task.Task{}}
	outcome := d.CheckEnvironment(context.Background(), sc)
	require.Error(t, outcome.Err)
}

func TestCheckEnvironment_FailsWhenChangelogMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo"), 0o755))

	d := &Deps{
		Repos:  git.NewRepositoryService(root, "", ""),
		Runner: &toolchain.Runner{LookPath: func(string) (string, error) { return "/usr/bin/dch", nil }},
	}
	sc := &engine.StepContext{Project: &task.Project{Name: "demo"}, Task: &task.Task{}}
	outcome := d.CheckEnvironment(context.Background(), sc)
	require.Error(t, outcome.Err)
}

func TestCheckEnvironment_SucceedsWithCloneAndChangelogAndTools(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo", "debian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo", "debian", "changelog"), []byte("demo (1.0) unstable; urgency=low\n"), 0o644))

	d := &Deps{
		Repos:  git.NewRepositoryService(root, "", ""),
		Runner: &toolchain.Runner{LookPath: func(string) (string, error) { return "/usr/bin/dch", nil }},
	}
	sc := &engine.StepContext{Project: &task.Project{Name: "demo"}, Task: &task.Task{}}
	outcome := d.CheckEnvironment(context.Background(), sc)
	require.NoError(t, outcome.Err)
}
