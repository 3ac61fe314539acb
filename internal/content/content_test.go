package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/fs"
)

func newStore(t *testing.T, algo string) (*Store, *fs.MemoryFS) {
	t.Helper()
	m := fs.NewMemoryFS()
	s, err := New(m, "assets", algo)
	require.NoError(t, err)
	return s, m
}

func TestPutGet(t *testing.T) {
	s, _ := newStore(t, "xxh3")

	id, err := s.Put([]byte("meow"))
	require.NoError(t, err)
	assert.Len(t, id, 32)
	assert.Equal(t, s.Hash([]byte("meow")), id)

	data, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(data))
	assert.True(t, s.Has(id))
}

func TestPutIsIdempotent(t *testing.T) {
	s, m := newStore(t, "sha256")

	id1, err := s.Put([]byte("same"))
	require.NoError(t, err)
	id2, err := s.Put([]byte("same"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)

	files, err := fs.Walk(m, "assets")
	require.NoError(t, err)
	assert.Equal(t, []string{id1}, files)
}

func TestGetMissing(t *testing.T) {
	s, _ := newStore(t, "")

	_, err := s.Get("deadbeef")
	assert.ErrorIs(t, err, errs.ErrMissingAsset)

	_, err = s.Get("../project.json")
	assert.ErrorIs(t, err, errs.ErrMissingAsset)
}

func TestPutFailureLeavesNothing(t *testing.T) {
	m := fs.NewMemoryFS()
	boom := errors.New("disk full")
	s, err := New(&fs.Failing{FS: m, Op: "rename", Err: boom}, "assets", "xxh3")
	require.NoError(t, err)

	_, err = s.Put([]byte("x"))
	assert.ErrorIs(t, err, boom)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
	files, err := fs.Walk(m, "assets")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListAndVerify(t *testing.T) {
	s, m := newStore(t, "xxh3")
	a, _ := s.Put([]byte("a"))
	b, _ := s.Put([]byte("b"))

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, ids)

	st, err := s.Verify(a)
	require.NoError(t, err)
	assert.Equal(t, OK, st)

	require.NoError(t, m.WriteFile("assets/"+b, []byte("tampered"), 0o644))
	st, _ = s.Verify(b)
	assert.Equal(t, Damaged, st)

	require.NoError(t, s.Remove(a))
	st, _ = s.Verify(a)
	assert.Equal(t, Missing, st)
	assert.Equal(t, "missing", st.String())
}

func TestHasherFor(t *testing.T) {
	_, err := HasherFor("md5")
	assert.Error(t, err)
	assert.NotEqual(t, HashXXH3([]byte("x")), HashSHA256([]byte("x")))
}
