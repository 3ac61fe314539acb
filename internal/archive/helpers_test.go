package archive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/worktree"
)

func mustIndex(t *testing.T, tree *worktree.Tree) worktree.Index {
	t.Helper()
	ix, err := tree.Index()
	require.NoError(t, err)
	return ix
}
