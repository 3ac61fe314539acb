// Package content is the content-addressed asset store of a working tree.
// Assets live under one directory, one file per distinct payload, named by
// the hex digest of their bytes.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/fs"
)

// Status indicates the state of a stored asset.
type Status int

const (
	OK Status = iota
	Missing
	Damaged
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Missing:
		return "missing"
	}
	return "damaged"
}

// Hasher maps bytes to a content id.
type Hasher func(data []byte) string

// HashXXH3 is the default xxh3-128 hasher.
func HashXXH3(data []byte) string {
	h := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(h[:])
}

// HashSHA256 is the sha256 hasher.
func HashSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HasherFor returns the hasher registered for algo.
func HasherFor(algo string) (Hasher, error) {
	switch algo {
	case "", "xxh3":
		return HashXXH3, nil
	case "sha256":
		return HashSHA256, nil
	}
	return nil, fmt.Errorf("unsupported hash %q", algo)
}

// Store handles asset storage under Dir on FS.
type Store struct {
	Dir  string
	FS   fs.FS
	Algo string
	hash Hasher
}

// New creates a Store for dir using the named hash algorithm.
func New(fsys fs.FS, dir, algo string) (*Store, error) {
	h, err := HasherFor(algo)
	if err != nil {
		return nil, err
	}
	if algo == "" {
		algo = "xxh3"
	}
	return &Store{Dir: dir, FS: fsys, Algo: algo, hash: h}, nil
}

// Hash returns the content id of data without storing it.
func (s *Store) Hash(data []byte) string {
	return s.hash(data)
}

func (s *Store) path(id string) string {
	return path.Join(s.Dir, id)
}

// Put stores data and returns its id. Storing bytes that already exist is a
// no-op.
func (s *Store) Put(data []byte) (string, error) {
	id := s.hash(data)
	dst := s.path(id)
	if fi, err := s.FS.Stat(dst); err == nil && fi.Size() == int64(len(data)) {
		return id, nil
	}

	if err := s.FS.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create assets dir: %w", err)
	}
	tmp, tmpPath, err := s.FS.CreateTempFile(s.Dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file in %q: %w", s.Dir, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.FS.Remove(tmpPath)
		return "", fmt.Errorf("write asset %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		s.FS.Remove(tmpPath)
		return "", fmt.Errorf("close asset %s: %w", id, err)
	}
	if err := s.FS.Rename(tmpPath, dst); err != nil {
		s.FS.Remove(tmpPath)
		return "", fmt.Errorf("publish asset %s: %w", id, err)
	}
	return id, nil
}

// Get returns the bytes stored under id.
func (s *Store) Get(id string) ([]byte, error) {
	if !validID(id) {
		return nil, errs.Wrapf(errs.ErrMissingAsset, "get asset", "invalid id %q", id)
	}
	data, err := s.FS.ReadFile(s.path(id))
	if err != nil {
		if s.FS.IsNotExist(err) {
			return nil, errs.Wrapf(errs.ErrMissingAsset, "get asset", "%s", id)
		}
		return nil, fmt.Errorf("read asset %s: %w", id, err)
	}
	return data, nil
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	return validID(id) && s.FS.Exists(s.path(id))
}

// Remove deletes id. A missing id is not an error.
func (s *Store) Remove(id string) error {
	if !s.Has(id) {
		return nil
	}
	return s.FS.Remove(s.path(id))
}

// List returns all stored ids sorted.
func (s *Store) List() ([]string, error) {
	if !s.FS.Exists(s.Dir) {
		return nil, nil
	}
	entries, err := s.FS.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !validID(e.Name()) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Verify re-hashes a stored asset.
func (s *Store) Verify(id string) (Status, error) {
	data, err := s.FS.ReadFile(s.path(id))
	if err != nil {
		if s.FS.IsNotExist(err) {
			return Missing, nil
		}
		return Damaged, err
	}
	if s.hash(data) == id {
		return OK, nil
	}
	return Damaged, nil
}

func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
