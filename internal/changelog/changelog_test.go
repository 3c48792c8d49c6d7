package changelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeChangelog(t *testing.T, dir, body string) string {
	t.Helper()
	debianDir := filepath.Join(dir, "debian")
	require.NoError(t, os.MkdirAll(debianDir, 0o755))
	path := filepath.Join(debianDir, "changelog")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir
}

const sampleChangelog = `widget-tools (1.2.3) unstable; urgency=medium

  * chore: bump version to 1.2.3

 -- Release Engineer <releng@example.com>  Wed, 30 Jul 2026 10:00:00 +0000
`

func TestService_CurrentVersion_ParsesTopStanza(t *testing.T) {
	dir := writeChangelog(t, t.TempDir(), sampleChangelog)
	svc := NewService()

	v, err := svc.CurrentVersion(dir)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", v)
}

func TestService_Info_MalformedChangelog(t *testing.T) {
	dir := writeChangelog(t, t.TempDir(), "not a changelog\n")
	svc := NewService()

	_, err := svc.Info(dir)
	require.Error(t, err)
}

func TestService_CurrentVersion_CacheHitWithinTTL(t *testing.T) {
	dir := writeChangelog(t, t.TempDir(), sampleChangelog)
	svc := NewService()

	v1, err := svc.CurrentVersion(dir)
	require.NoError(t, err)

	// Overwrite on disk; cached value should still win within the TTL.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debian", "changelog"),
		[]byte("widget-tools (9.9.9) unstable; urgency=medium\n\n -- x <x@x>  "+time.Now().Format(time.RFC1123Z)+"\n"), 0o644))

	v2, err := svc.CurrentVersion(dir)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestService_Invalidate_ForcesReread(t *testing.T) {
	dir := writeChangelog(t, t.TempDir(), sampleChangelog)
	svc := NewService()

	_, err := svc.CurrentVersion(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "debian", "changelog"),
		[]byte("widget-tools (9.9.9) unstable; urgency=medium\n\n -- x <x@x>  "+time.Now().Format(time.RFC1123Z)+"\n"), 0o644))
	svc.Invalidate(dir)

	v, err := svc.CurrentVersion(dir)
	require.NoError(t, err)
	require.Equal(t, "9.9.9", v)
}

func TestNormalizeSubject_TrimsAndNormalizes(t *testing.T) {
	require.Equal(t, "bump version", NormalizeSubject("  bump version  "))
}
