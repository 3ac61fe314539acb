package archive

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/sb3/sb3test"
)

func sampleProject() sb3test.Project {
	return sb3test.Project{
		Targets: []sb3test.Target{
			sb3test.Stage(),
			sb3test.Sprite("Sprite1", map[string]any{
				"b1": sb3test.Block("motion_movesteps", map[string]any{"STEPS": sb3test.Field("10")}),
			}),
		},
	}
}

func unzip(t *testing.T, bundle []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = data
	}
	return out
}

func TestIngestCanonicalizes(t *testing.T) {
	p := sampleProject()
	tree, err := Ingest(p.Bundle(t), Options{})
	require.NoError(t, err)

	manifest, err := tree.Manifest()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(manifest), "{\n  \"extensions\""))
	assert.True(t, strings.HasSuffix(string(manifest), "}\n"))

	ix, err := tree.Index()
	require.NoError(t, err)
	assert.Equal(t, "xxh3", ix.Hash)
	require.Len(t, ix.Assets, 2)
	for _, e := range ix.Assets {
		assert.True(t, tree.Assets().Has(e.ID), e.Name)
		assert.Equal(t, "image/svg+xml", e.Type)
	}

	proj, err := tree.Project()
	require.NoError(t, err)
	assert.Equal(t, []string{"Stage", "Sprite1"}, proj.TargetNames())
}

func TestIngestMissingAsset(t *testing.T) {
	p := sampleProject()
	bundle := sb3test.Zip(t, map[string][]byte{"project.json": p.Manifest(t)})

	_, err := Ingest(bundle, Options{})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
	assert.ErrorIs(t, err, errs.ErrMissingAsset)
	assert.Equal(t, "malformed_archive", errs.Kind(err))
}

func TestIngestNotAContainer(t *testing.T) {
	_, err := Ingest([]byte("definitely not a zip"), Options{})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)

	_, err = Ingest(sb3test.Zip(t, map[string][]byte{"readme.txt": []byte("hi")}), Options{})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)

	_, err = Ingest(sb3test.Zip(t, map[string][]byte{"project.json": []byte("{oops")}), Options{})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
}

func TestIngestNestedFolder(t *testing.T) {
	p := sampleProject()
	files := map[string][]byte{"MyGame/project.json": p.Manifest(t)}
	for _, tg := range p.Targets {
		for _, c := range tg.Costumes {
			files["MyGame/"+c.File()] = c.Data
		}
	}

	tree, err := Ingest(sb3test.Zip(t, files), Options{})
	require.NoError(t, err)
	ix, err := tree.Index()
	require.NoError(t, err)
	for _, e := range ix.Assets {
		assert.False(t, strings.HasPrefix(e.Name, "MyGame/"))
	}
}

func TestIngestEntryTooLarge(t *testing.T) {
	_, err := Ingest(sampleProject().Bundle(t), Options{MaxEntrySize: 4})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
}

// bundleWithRawEntry zips the sample project but writes the sprite costume
// with a caller-chosen declared size.
func bundleWithRawEntry(t *testing.T, declared uint64) []byte {
	t.Helper()
	p := sampleProject()
	costume := p.Targets[1].Costumes[0]

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("project.json")
	require.NoError(t, err)
	_, err = w.Write(p.Manifest(t))
	require.NoError(t, err)
	backdrop := p.Targets[0].Costumes[0]
	w, err = zw.Create(backdrop.File())
	require.NoError(t, err)
	_, err = w.Write(backdrop.Data)
	require.NoError(t, err)

	raw, err := zw.CreateRaw(&zip.FileHeader{
		Name:               costume.File(),
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(costume.Data),
		CompressedSize64:   uint64(len(costume.Data)),
		UncompressedSize64: declared,
	})
	require.NoError(t, err)
	_, err = raw.Write(costume.Data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIngestRejectsOverflowingDeclaredSize(t *testing.T) {
	_, err := Ingest(bundleWithRawEntry(t, 1<<64-1), Options{MaxEntrySize: 1 << 20})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
}

func TestIngestRejectsUnderstatedSize(t *testing.T) {
	_, err := Ingest(bundleWithRawEntry(t, 1), Options{MaxEntrySize: 1 << 20})
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
}

func TestIngestUnsupportedKeptOpaque(t *testing.T) {
	p := sampleProject()
	p.Semver = "4.0.0"
	p.Targets[1].Costumes[0].Name = "kept.svg"
	bundle := p.Bundle(t)

	tree, err := Ingest(bundle, Options{})
	require.NoError(t, err)

	_, err = tree.Project()
	assert.ErrorIs(t, err, errs.ErrUnsupportedFormat)

	out, err := Export(tree)
	require.NoError(t, err)
	assert.Contains(t, unzip(t, out), "kept.svg")
}

func TestAssetDedup(t *testing.T) {
	same := []byte("\x89PNG same bytes")
	p := sampleProject()
	p.Targets[1].Costumes = []sb3test.Asset{
		{Label: "a", Ext: "png", Data: same, Name: "a.png"},
		{Label: "b", Ext: "png", Data: same, Name: "b.png"},
	}

	tree, err := Ingest(p.Bundle(t), Options{})
	require.NoError(t, err)

	ids, err := tree.Assets().List()
	require.NoError(t, err)
	assert.Len(t, ids, 2, "backdrop plus one shared payload")

	a, ok := mustIndex(t, tree).Lookup("a.png")
	require.True(t, ok)
	b, ok := mustIndex(t, tree).Lookup("b.png")
	require.True(t, ok)
	assert.Equal(t, a.ID, b.ID)

	out, err := Export(tree)
	require.NoError(t, err)
	files := unzip(t, out)
	assert.Equal(t, same, files["a.png"])
	assert.Equal(t, same, files["b.png"])
}

func TestExportRoundTrip(t *testing.T) {
	p := sampleProject()
	tree, err := Ingest(p.Bundle(t), Options{})
	require.NoError(t, err)

	out, err := Export(tree)
	require.NoError(t, err)
	files := unzip(t, out)
	assert.Contains(t, files, "project.json")
	assert.NotContains(t, string(files["project.json"]), "\n")

	again, err := Ingest(out, Options{})
	require.NoError(t, err)
	equal, err := tree.Equal(again)
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestExportDeterministic(t *testing.T) {
	tree, err := Ingest(sampleProject().Bundle(t), Options{Hash: "sha256"})
	require.NoError(t, err)

	a, err := Export(tree)
	require.NoError(t, err)
	b, err := Export(tree)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExportMissingAsset(t *testing.T) {
	tree, err := Ingest(sampleProject().Bundle(t), Options{})
	require.NoError(t, err)
	ix := mustIndex(t, tree)
	require.NoError(t, tree.Assets().Remove(ix.Assets[0].ID))

	_, err = Export(tree)
	assert.ErrorIs(t, err, errs.ErrMissingAsset)
}

func TestIngestExportFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "game.sb3")
	require.NoError(t, os.WriteFile(src, sampleProject().Bundle(t), 0o644))

	tree, err := IngestFile(src, Options{})
	require.NoError(t, err)

	dst := filepath.Join(dir, "out.sb3")
	require.NoError(t, ExportFile(tree, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	_, err = Ingest(data, Options{})
	assert.NoError(t, err)
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "a/b.png", SanitizePath("/a/./b.png"))
	assert.Equal(t, "b.png", SanitizePath("../../b.png"))
	assert.Equal(t, "x.svg", SanitizePath("C:/x.svg"))
	assert.Equal(t, "", SanitizePath(".."))
}

func TestEnsureUniqueName(t *testing.T) {
	used := map[string]struct{}{}
	assert.Equal(t, "a.png", ensureUniqueName("a.png", used))
	assert.Equal(t, "a-1.png", ensureUniqueName("a.png", used))
}
