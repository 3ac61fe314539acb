package fs

import "os"

// OS entry points used by OSFS. Tests in this package swap them to inject
// failures into the write path.
var (
	open       = os.Open
	readFile   = os.ReadFile
	writeFile  = os.WriteFile
	stat       = os.Stat
	readDir    = os.ReadDir
	remove     = os.Remove
	removeAll  = os.RemoveAll
	rename     = os.Rename
	createTemp = os.CreateTemp
	mkdirAll   = os.MkdirAll
	isNotExist = os.IsNotExist
)

var exists = func(path string) bool {
	_, err := stat(path)
	return err == nil
}

var IsDir = func(path string) bool {
	fi, err := stat(path)
	return err == nil && fi.IsDir()
}

// Failing wraps an FS and fails the named operation for paths accepted by
// match. It exists so other packages can exercise error paths without
// touching the process-wide hooks.
type Failing struct {
	FS
	Op    string
	Match func(path string) bool
	Err   error
}

func (f *Failing) fails(op, path string) bool {
	return f.Op == op && (f.Match == nil || f.Match(path))
}

func (f *Failing) WriteFile(path string, data []byte, perm os.FileMode) error {
	if f.fails("write", path) {
		return f.Err
	}
	return f.FS.WriteFile(path, data, perm)
}

func (f *Failing) Rename(oldPath, newPath string) error {
	if f.fails("rename", newPath) {
		return f.Err
	}
	return f.FS.Rename(oldPath, newPath)
}

func (f *Failing) ReadFile(path string) ([]byte, error) {
	if f.fails("read", path) {
		return nil, f.Err
	}
	return f.FS.ReadFile(path)
}
