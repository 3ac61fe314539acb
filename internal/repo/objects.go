package repo

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/util"
	"github.com/keshon/sbvc/internal/worktree"
)

var mainRef = plumbing.NewBranchReferenceName(config.DefaultBranch)

// dirNode is one directory level while building git trees.
type dirNode struct {
	files map[string]plumbing.Hash
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]plumbing.Hash{}, dirs: map[string]*dirNode{}}
}

func (d *dirNode) insert(p string, h plumbing.Hash) {
	parts := strings.Split(p, "/")
	cur := d
	for _, dir := range parts[:len(parts)-1] {
		next, ok := cur.dirs[dir]
		if !ok {
			next = newDirNode()
			cur.dirs[dir] = next
		}
		cur = next
	}
	cur.files[parts[len(parts)-1]] = h
}

func writeBlob(r *git.Repository, data []byte) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.Storer.SetEncodedObject(obj)
}

func encode(r *git.Repository, o interface {
	Encode(plumbing.EncodedObject) error
}) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.Storer.SetEncodedObject(obj)
}

// writeDir stores d and its subdirectories bottom-up and returns the tree
// hash. Entries follow git's order, where a directory sorts as "name/".
func writeDir(r *git.Repository, d *dirNode) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	for name, h := range d.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: h})
	}
	for name, sub := range d.dirs {
		h, err := writeDir(r, sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}
	sortKey := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return sortKey(entries[i]) < sortKey(entries[j]) })
	return encode(r, &object.Tree{Entries: entries})
}

// writeTree stores every file of t and returns the root tree hash. Equal
// trees always produce equal hashes.
func writeTree(r *git.Repository, t *worktree.Tree) (plumbing.Hash, error) {
	files, err := t.Files()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	root := newDirNode()
	for _, p := range util.SortedKeys(files) {
		h, err := writeBlob(r, files[p])
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("store %s: %w", p, err)
		}
		root.insert(p, h)
	}
	return writeDir(r, root)
}

// materialize copies a commit's tree into a fresh in-memory working tree.
func materialize(c *object.Commit) (*worktree.Tree, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	files := map[string][]byte{}
	err = tree.Files().ForEach(func(f *object.File) error {
		rd, err := f.Reader()
		if err != nil {
			return err
		}
		defer rd.Close()
		data, err := io.ReadAll(rd)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		files[f.Name] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return worktree.FromFiles(files)
}

// publish points refs/heads/main at h. The ref file is replaced by rename so
// concurrent readers see either the old or the new head, never a torn one.
func publish(gitDir string, h plumbing.Hash) error {
	refPath := filepath.Join(gitDir, filepath.FromSlash(path.Join("refs", "heads", config.DefaultBranch)))
	osfs := fs.NewOSFS()
	if err := osfs.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return err
	}
	return util.WriteAtomic(osfs, refPath, []byte(h.String()+"\n"))
}
