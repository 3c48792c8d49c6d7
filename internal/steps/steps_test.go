package steps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeVersion_ReplacesUnsafeCharacters(t *testing.T) {
	require.Equal(t, "1-2-3", safeVersion("1:2 3"))
	require.Equal(t, "feature-branch-1.0", safeVersion("feature/branch:1.0"))
}

func TestReviewForgeHost_ExtractsHost(t *testing.T) {
	require.Equal(t, "pf", reviewForgeHost("https://pf/owner/demo"))
	require.Equal(t, "", reviewForgeHost("not a url %"))
}

func TestOwnerRepo_SplitsPath(t *testing.T) {
	owner, repo := ownerRepo("https://pf/owner/demo")
	require.Equal(t, "owner", owner)
	require.Equal(t, "demo", repo)
}

func TestParseReviewNumber_ExtractsTrailingDigits(t *testing.T) {
	require.Equal(t, 11, parseReviewNumber("https://pf/owner/demo/pull/11"))
	require.Equal(t, 0, parseReviewNumber("https://pf/owner/demo"))
}

func TestFirstLine_StopsAtNewline(t *testing.T) {
	require.Equal(t, "subject", firstLine("subject\nbody line 1\nbody line 2"))
	require.Equal(t, "subject", firstLine("subject"))
}
