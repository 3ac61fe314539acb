package util

import (
	"bytes"
	"encoding/json"
	"path"
	"runtime"
	"sort"
	"sync"

	"github.com/keshon/sbvc/internal/fs"
)

// CanonicalJSON encodes v key-ordered and 2-space indented, without HTML
// escaping, with a trailing newline. Map keys are sorted by encoding/json.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompactJSON encodes v on one line without HTML escaping.
func CompactJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeJSON decodes data keeping numbers as json.Number so re-encoding
// never changes their text.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// WriteAtomic writes data to p through a temp file and a rename, so readers
// see either the old or the new content.
func WriteAtomic(fsys fs.FS, p string, data []byte) error {
	dir := path.Dir(p)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, tmpPath, err := fsys.CreateTempFile(dir, "tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	if err := fsys.Rename(tmpPath, p); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteJSON writes v as canonical JSON atomically.
func WriteJSON(fsys fs.FS, p string, v any) error {
	data, err := CanonicalJSON(v)
	if err != nil {
		return err
	}
	return WriteAtomic(fsys, p, data)
}

// ReadJSON reads a JSON file and unmarshals it into v.
func ReadJSON(fsys fs.FS, p string, v any) error {
	data, err := fsys.ReadFile(p)
	if err != nil {
		return err
	}
	return DecodeJSON(data, v)
}

// SortedKeys returns the keys of a map sorted alphabetically.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnionKeys returns the sorted union of the keys of a and b.
func UnionKeys[M ~map[string]V, V any](a, b M) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	return SortedKeys(seen)
}

// WorkerCount returns the number of workers for concurrent operations.
func WorkerCount() int {
	return runtime.NumCPU()
}

// Parallel runs fn concurrently for each item in inputs, limited by workerLimit.
// It returns the first error reported.
func Parallel[T any](inputs []T, workerLimit int, fn func(T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if workerLimit < 1 {
		workerLimit = 1
	}

	sem := make(chan struct{}, workerLimit)
	errCh := make(chan error, len(inputs))
	var wg sync.WaitGroup

	for _, in := range inputs {
		sem <- struct{}{}
		wg.Add(1)
		go func(x T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(x); err != nil {
				errCh <- err
			}
		}(in)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}
