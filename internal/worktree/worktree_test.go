package worktree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/sb3/sb3test"
)

func newTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewMemory("xxh3")
	require.NoError(t, err)
	p := sb3test.Project{Targets: []sb3test.Target{sb3test.Stage()}}
	require.NoError(t, tree.SetManifest(p.Manifest(t)))
	c := p.Targets[0].Costumes[0]
	_, err = tree.AddAsset(c.File(), c.Data)
	require.NoError(t, err)
	return tree
}

func TestCreateAndOpen(t *testing.T) {
	tree := newTree(t)

	reopened, err := Open(tree.FS, tree.Root)
	require.NoError(t, err)
	equal, err := tree.Equal(reopened)
	require.NoError(t, err)
	assert.True(t, equal)

	_, err = Open(fs.NewMemoryFS(), "nowhere")
	assert.ErrorIs(t, err, ErrNoTree)
}

func TestFilesLayout(t *testing.T) {
	tree := newTree(t)
	files, err := tree.Files()
	require.NoError(t, err)

	var paths []string
	for p := range files {
		paths = append(paths, p)
	}
	assert.Len(t, paths, 3)
	assert.Contains(t, files, "project.json")
	assert.Contains(t, files, "assets.json")
}

func TestAddAssetReplacesName(t *testing.T) {
	tree := newTree(t)
	e1, err := tree.AddAsset("x.png", []byte("one"))
	require.NoError(t, err)
	e2, err := tree.AddAsset("x.png", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, e1.ID, e2.ID)

	ix, err := tree.Index()
	require.NoError(t, err)
	got, ok := ix.Lookup("x.png")
	require.True(t, ok)
	assert.Equal(t, e2.ID, got.ID)
	assert.Equal(t, "image/png", got.Type)
}

func TestReferenced(t *testing.T) {
	tree := newTree(t)
	p, err := tree.Project()
	require.NoError(t, err)

	refs, err := tree.Referenced(p)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	for id, entries := range refs {
		assert.True(t, tree.Assets().Has(id))
		assert.Equal(t, "image/svg+xml", entries[0].Type)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tree := newTree(t)
	clone, err := tree.Clone()
	require.NoError(t, err)

	_, err = clone.AddAsset("extra.wav", []byte("RIFF"))
	require.NoError(t, err)

	equal, err := tree.Equal(clone)
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestSaveToDisk(t *testing.T) {
	tree := newTree(t)
	dir := filepath.Join(t.TempDir(), "working")

	saved, err := tree.SaveTo(fs.NewOSFS(), dir)
	require.NoError(t, err)
	equal, err := tree.Equal(saved)
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "audio/wav", MediaType("a.WAV"))
	assert.Equal(t, "audio/mpeg", MediaType("a.mp3"))
	assert.Equal(t, "application/octet-stream", MediaType("a.zzz"))
}
