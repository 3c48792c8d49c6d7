package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProjectAddListRemove(t *testing.T) {
	root := &CLI{Config: testConfigPath(t)}

	add := &ProjectAddCmd{Name: "widget", ReviewForgeURL: "https://forge.example/widget.git", ReviewForgeBranch: "main"}
	require.NoError(t, add.Run(&Global{}, root))

	list := &ProjectListCmd{}
	require.NoError(t, list.Run(&Global{}, root))

	remove := &ProjectRemoveCmd{Name: "widget"}
	require.NoError(t, remove.Run(&Global{}, root))

	require.Error(t, remove.Run(&Global{}, root))
}

func TestReviewForgeHost(t *testing.T) {
	require.Equal(t, "forge.example", reviewForgeHost("https://forge.example/widget.git"))
	require.Equal(t, "", reviewForgeHost(""))
}
