package fs

import (
	"path"
	"sort"
)

// Walk returns the slash-separated paths of every file below root, relative
// to root and sorted.
func Walk(fsys FS, root string) ([]string, error) {
	var out []string
	var visit func(rel string) error
	visit = func(rel string) error {
		entries, err := fsys.ReadDir(path.Join(root, rel))
		if err != nil {
			return err
		}
		for _, e := range entries {
			child := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := visit(child); err != nil {
					return err
				}
				continue
			}
			out = append(out, child)
		}
		return nil
	}
	if err := visit(""); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// CopyTree copies every file below srcRoot in src to dstRoot in dst.
func CopyTree(src FS, srcRoot string, dst FS, dstRoot string) error {
	files, err := Walk(src, srcRoot)
	if err != nil {
		return err
	}
	if err := dst.MkdirAll(dstRoot, 0o755); err != nil {
		return err
	}
	for _, rel := range files {
		data, err := src.ReadFile(path.Join(srcRoot, rel))
		if err != nil {
			return err
		}
		target := path.Join(dstRoot, rel)
		if err := dst.MkdirAll(path.Dir(target), 0o755); err != nil {
			return err
		}
		if err := dst.WriteFile(target, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
