package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunner_RunCapturesStdoutAndIsolatesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("hi"), 0o644))

	r := NewRunner()
	result, err := r.Run(context.Background(), dir, "ls", nil, []string{"PATH=/usr/bin:/bin"})
	require.NoError(t, err)
	require.Contains(t, result.Stdout, "marker.txt")
}

func TestRunner_RunWrapsFailureAsToolchainError(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), t.TempDir(), "false", nil, []string{"PATH=/usr/bin:/bin"})
	require.Error(t, err)
}

func TestRunner_Available(t *testing.T) {
	r := &Runner{LookPath: func(file string) (string, error) {
		if file == "dch" {
			return "/usr/bin/dch", nil
		}
		return "", os.ErrNotExist
	}}
	require.True(t, r.Available("dch"))
	require.False(t, r.Available("nonexistent-tool"))
}

func TestBaseEnv_FormatsDebEmail(t *testing.T) {
	env := BaseEnv("/usr/bin", "Releng Bot", "releng-bot@example.com")
	require.Contains(t, env, "DEBFULLNAME=Releng Bot")
	require.Contains(t, env, "DEBEMAIL=Releng Bot <releng-bot@example.com>")
}

func TestWithProxy_NoopWhenEmpty(t *testing.T) {
	env := []string{"PATH=/usr/bin"}
	require.Equal(t, env, WithProxy(env, ""))
	require.Len(t, WithProxy(env, "http://proxy:3128"), 3)
}
