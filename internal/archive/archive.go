// Package archive converts between packaged project bundles (.sb3 zip files)
// and canonical working trees.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/sb3"
	"github.com/keshon/sbvc/internal/util"
	"github.com/keshon/sbvc/internal/worktree"
)

// Options tune the codec.
type Options struct {
	// Hash names the content hash of new trees ("xxh3" or "sha256").
	Hash string
	// MaxEntrySize rejects entries larger than this many bytes. Zero means
	// config.DefaultMaxEntrySize.
	MaxEntrySize int64
}

func (o Options) maxEntry() int64 {
	if o.MaxEntrySize > 0 {
		return o.MaxEntrySize
	}
	return config.DefaultMaxEntrySize
}

func malformed(format string, args ...any) error {
	return errs.Wrapf(errs.ErrMalformedArchive, "ingest", format, args...)
}

// Ingest unpacks a bundle into a new in-memory working tree.
func Ingest(bundle []byte, opts Options) (*worktree.Tree, error) {
	return IngestReader(bytes.NewReader(bundle), int64(len(bundle)), opts)
}

// IngestFile ingests a bundle from the OS filesystem, memory-mapping it.
func IngestFile(p string, opts Options) (*worktree.Tree, error) {
	r, err := mmap.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()
	return IngestReader(r, int64(r.Len()), opts)
}

// IngestReader unpacks a bundle of the given size. It validates that every
// costume and sound the manifest references is present, canonicalizes the
// manifest and stores each entry by content id. Manifests of an unsupported
// schema are kept opaquely; Tree.Project reports them.
func IngestReader(r io.ReaderAt, size int64, opts Options) (*worktree.Tree, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, malformed("%v", err)
	}

	entries, manifestName, err := collectEntries(zr, opts.maxEntry())
	if err != nil {
		return nil, err
	}

	rawManifest, err := readEntry(entries[manifestName], opts.maxEntry())
	if err != nil {
		return nil, malformed("read %s: %v", manifestName, err)
	}
	doc, err := sb3.Decode(rawManifest)
	if err != nil {
		return nil, err
	}

	assets := make(map[string]*zip.File, len(entries))
	prefix := strings.TrimSuffix(manifestName, config.ManifestFile)
	for name, f := range entries {
		if name == manifestName {
			continue
		}
		assets[strings.TrimPrefix(name, prefix)] = f
	}

	if err := sb3.CheckFormat(doc); err == nil {
		p, err := sb3.FromDocument(doc)
		if err != nil {
			return nil, err
		}
		for _, ref := range p.AssetRefs() {
			name := ref.File()
			if name == "" {
				return nil, malformed("%q declares no asset", ref.Name)
			}
			if _, ok := assets[name]; !ok {
				return nil, errs.New(errs.ErrMalformedArchive, "ingest", "",
					fmt.Errorf("%w: %s referenced by %q", errs.ErrMissingAsset, name, ref.Name))
			}
		}
	}

	tree, err := worktree.NewMemory(opts.Hash)
	if err != nil {
		return nil, err
	}
	canon, err := util.CanonicalJSON(doc)
	if err != nil {
		return nil, err
	}
	if err := util.WriteAtomic(tree.FS, path.Join(tree.Root, config.ManifestFile), canon); err != nil {
		return nil, err
	}

	ix := worktree.Index{Hash: tree.Assets().Algo}
	for _, name := range util.SortedKeys(assets) {
		data, err := readEntry(assets[name], opts.maxEntry())
		if err != nil {
			return nil, malformed("read %s: %v", name, err)
		}
		id, err := tree.Assets().Put(data)
		if err != nil {
			return nil, err
		}
		ix.Assets = append(ix.Assets, worktree.Entry{Name: name, ID: id, Type: worktree.MediaType(name)})
	}
	if err := tree.SetIndex(ix); err != nil {
		return nil, err
	}
	return tree, nil
}

// collectEntries indexes the container's files by sanitized name and finds
// the manifest, either at the root or under a single top-level folder.
func collectEntries(zr *zip.Reader, maxEntry int64) (map[string]*zip.File, string, error) {
	entries := make(map[string]*zip.File, len(zr.File))
	var manifests []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := SanitizePath(f.Name)
		if name == "" || strings.HasPrefix(path.Base(name), "__MACOSX") || strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		if f.UncompressedSize64 > uint64(maxEntry) {
			return nil, "", malformed("entry %s exceeds %d bytes", name, maxEntry)
		}
		if prev, dup := entries[name]; dup && prev.CRC32 != f.CRC32 {
			return nil, "", malformed("conflicting entries named %s", name)
		}
		entries[name] = f
		if path.Base(name) == config.ManifestFile && strings.Count(name, "/") <= 1 {
			manifests = append(manifests, name)
		}
	}
	sort.Strings(manifests)
	switch {
	case len(manifests) == 0:
		return nil, "", malformed("no %s in bundle", config.ManifestFile)
	case manifests[0] == config.ManifestFile:
		return entries, config.ManifestFile, nil
	case len(manifests) > 1:
		return nil, "", malformed("several %s in bundle", config.ManifestFile)
	}
	return entries, manifests[0], nil
}

// readEntry reads f to EOF, so the zip reader always checks the declared
// size and CRC. Payloads over maxEntry are rejected whatever the header says.
func readEntry(f *zip.File, maxEntry int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntry+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxEntry {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntry)
	}
	if uint64(len(data)) != f.UncompressedSize64 {
		return nil, fmt.Errorf("entry holds %d bytes, header declares %d", len(data), f.UncompressedSize64)
	}
	return data, nil
}

// Export packages a working tree as a bundle: the manifest in the compact
// form the editor writes, followed by every indexed asset under its declared
// name. Entries are sorted and time-stamped identically, so exporting the
// same tree twice yields identical bytes.
func Export(tree *worktree.Tree) ([]byte, error) {
	manifest, err := tree.Manifest()
	if err != nil {
		return nil, fmt.Errorf("export: read manifest: %w", err)
	}
	compact, err := sb3.Compact(manifest)
	if err != nil {
		return nil, err
	}
	ix, err := tree.Index()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := map[string]struct{}{config.ManifestFile: {}}
	if err := writeEntry(zw, config.ManifestFile, compact); err != nil {
		return nil, err
	}
	for _, e := range ix.Assets {
		data, err := tree.Assets().Get(e.ID)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.Name, err)
		}
		name := SanitizePath(e.Name)
		if name == "" {
			name = e.ID
		}
		if err := writeEntry(zw, ensureUniqueName(name, used), data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFile writes the exported bundle to p atomically.
func ExportFile(tree *worktree.Tree, p string) error {
	data, err := Export(tree)
	if err != nil {
		return err
	}
	return util.WriteAtomic(fs.NewOSFS(), p, data)
}
