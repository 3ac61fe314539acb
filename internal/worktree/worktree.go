// Package worktree is the canonical on-disk decomposition of a project
// bundle:
//
//	project.json  manifest, key-ordered and indented
//	assets.json   declared asset names mapped to content ids
//	assets/<id>   one file per distinct asset payload
//
// A Tree can live on the OS filesystem (the live working tree) or in memory
// (trees read from history or freshly ingested).
package worktree

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/content"
	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/sb3"
	"github.com/keshon/sbvc/internal/util"
)

// Tree is a working tree rooted at Root on FS.
type Tree struct {
	FS   fs.FS
	Root string

	store *content.Store
}

// Index is the content of assets.json.
type Index struct {
	Hash   string  `json:"hash"`
	Assets []Entry `json:"assets"`
}

// Entry maps one declared asset name to its content id.
type Entry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Lookup returns the entry declared under name.
func (ix Index) Lookup(name string) (Entry, bool) {
	i := sort.Search(len(ix.Assets), func(i int) bool { return ix.Assets[i].Name >= name })
	if i < len(ix.Assets) && ix.Assets[i].Name == name {
		return ix.Assets[i], true
	}
	return Entry{}, false
}

// Create initializes an empty tree at root. An existing tree there is
// overwritten by later writes.
func Create(fsys fs.FS, root, algo string) (*Tree, error) {
	store, err := content.New(fsys, path.Join(root, config.AssetsDir), algo)
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tree %q: %w", root, err)
	}
	t := &Tree{FS: fsys, Root: root, store: store}
	if err := t.SetIndex(Index{Hash: store.Algo}); err != nil {
		return nil, err
	}
	return t, nil
}

// NewMemory creates an empty tree backed by a fresh MemoryFS.
func NewMemory(algo string) (*Tree, error) {
	return Create(fs.NewMemoryFS(), ".", algo)
}

// ErrNoTree is returned by Open when root holds no working tree.
var ErrNoTree = errors.New("no working tree")

// Open loads an existing tree.
func Open(fsys fs.FS, root string) (*Tree, error) {
	t := &Tree{FS: fsys, Root: root}
	if !fsys.Exists(t.path(config.ManifestFile)) {
		return nil, fmt.Errorf("open %q: %w", root, ErrNoTree)
	}
	ix, err := t.Index()
	if err != nil {
		return nil, err
	}
	t.store, err = content.New(fsys, t.path(config.AssetsDir), ix.Hash)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) path(rel string) string {
	return path.Join(t.Root, rel)
}

// Assets returns the tree's content store.
func (t *Tree) Assets() *content.Store {
	return t.store
}

// Manifest returns the canonical manifest bytes.
func (t *Tree) Manifest() ([]byte, error) {
	return t.FS.ReadFile(t.path(config.ManifestFile))
}

// SetManifest canonicalizes and stores a manifest document.
func (t *Tree) SetManifest(data []byte) error {
	canon, err := sb3.Canonical(data)
	if err != nil {
		return err
	}
	return util.WriteAtomic(t.FS, t.path(config.ManifestFile), canon)
}

// Project parses the manifest. It returns an error matching
// errs.ErrUnsupportedFormat for manifests kept opaquely.
func (t *Tree) Project() (*sb3.Project, error) {
	data, err := t.Manifest()
	if err != nil {
		return nil, err
	}
	return sb3.Parse(data)
}

// Index reads assets.json. A tree without one has an empty xxh3 index.
func (t *Tree) Index() (Index, error) {
	ix := Index{Hash: config.DefaultHash}
	if !t.FS.Exists(t.path(config.IndexFile)) {
		return ix, nil
	}
	if err := util.ReadJSON(t.FS, t.path(config.IndexFile), &ix); err != nil {
		return ix, fmt.Errorf("read asset index: %w", err)
	}
	return ix, nil
}

// SetIndex writes assets.json with entries sorted by name.
func (t *Tree) SetIndex(ix Index) error {
	if ix.Assets == nil {
		ix.Assets = []Entry{}
	}
	sort.Slice(ix.Assets, func(i, j int) bool { return ix.Assets[i].Name < ix.Assets[j].Name })
	return util.WriteJSON(t.FS, t.path(config.IndexFile), ix)
}

// AddAsset stores data and records it under the declared name.
func (t *Tree) AddAsset(name string, data []byte) (Entry, error) {
	id, err := t.store.Put(data)
	if err != nil {
		return Entry{}, err
	}
	ix, err := t.Index()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, ID: id, Type: MediaType(name)}
	replaced := false
	for i := range ix.Assets {
		if ix.Assets[i].Name == name {
			ix.Assets[i] = e
			replaced = true
		}
	}
	if !replaced {
		ix.Assets = append(ix.Assets, e)
	}
	return e, t.SetIndex(ix)
}

// Referenced maps each content id referenced by the manifest to the entries
// declaring it. Names the index does not know map to an empty id.
func (t *Tree) Referenced(p *sb3.Project) (map[string][]Entry, error) {
	ix, err := t.Index()
	if err != nil {
		return nil, err
	}
	out := map[string][]Entry{}
	seen := map[string]bool{}
	for _, ref := range p.AssetRefs() {
		name := ref.File()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		e, ok := ix.Lookup(name)
		if !ok {
			e = Entry{Name: name, Type: MediaType(name)}
		}
		out[e.ID] = append(out[e.ID], e)
	}
	return out, nil
}

// Files returns every file of the tree keyed by its slash path relative to
// Root. Temp files left by interrupted writes are skipped.
func (t *Tree) Files() (map[string][]byte, error) {
	paths, err := fs.Walk(t.FS, t.Root)
	if err != nil {
		return nil, fmt.Errorf("walk tree: %w", err)
	}
	out := make(map[string][]byte, len(paths))
	for _, p := range paths {
		if isTemp(p) {
			continue
		}
		data, err := t.FS.ReadFile(t.path(p))
		if err != nil {
			return nil, err
		}
		out[p] = data
	}
	return out, nil
}

func isTemp(p string) bool {
	base := path.Base(p)
	return strings.HasPrefix(base, ".tmp-") || strings.HasPrefix(base, "tmp-") || strings.HasSuffix(base, ".tmp")
}

// Equal reports whether two trees hold byte-identical files.
func (t *Tree) Equal(other *Tree) (bool, error) {
	a, err := t.Files()
	if err != nil {
		return false, err
	}
	b, err := other.Files()
	if err != nil {
		return false, err
	}
	if len(a) != len(b) {
		return false, nil
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false, nil
		}
	}
	return true, nil
}

// FromFiles builds an in-memory tree from a file snapshot.
func FromFiles(files map[string][]byte) (*Tree, error) {
	m := fs.NewMemoryFS()
	for _, p := range util.SortedKeys(files) {
		if err := m.MkdirAll(path.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := m.WriteFile(p, files[p], 0o644); err != nil {
			return nil, err
		}
	}
	if !m.Exists(config.ManifestFile) {
		return nil, fmt.Errorf("snapshot: %w", ErrNoTree)
	}
	return Open(m, ".")
}

// Clone copies the tree into memory.
func (t *Tree) Clone() (*Tree, error) {
	files, err := t.Files()
	if err != nil {
		return nil, err
	}
	return FromFiles(files)
}

// SaveTo writes a copy of the tree to root on fsys and opens it there.
func (t *Tree) SaveTo(fsys fs.FS, root string) (*Tree, error) {
	files, err := t.Files()
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(path.Join(root, config.AssetsDir), 0o755); err != nil {
		return nil, err
	}
	for _, p := range util.SortedKeys(files) {
		dst := path.Join(root, p)
		if err := fsys.MkdirAll(path.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := fsys.WriteFile(dst, files[p], 0o644); err != nil {
			return nil, fmt.Errorf("save %s: %w", p, err)
		}
	}
	return Open(fsys, root)
}

var mediaTypes = map[string]string{
	".svg": "image/svg+xml",
	".png": "image/png",
	".jpg": "image/jpeg",
	".gif": "image/gif",
	".bmp": "image/bmp",
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".ogg": "audio/ogg",
}

// MediaType guesses the media type of a declared asset name.
func MediaType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
