package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/file"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/archive"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/sb3/sb3test"
	"github.com/keshon/sbvc/internal/worktree"
)

func TestMain(m *testing.M) {
	// Serve file:// remotes in process instead of spawning git binaries.
	client.InstallProtocol("file", server.DefaultServer)
	os.Exit(m.Run())
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	m, err := NewManager(t.TempDir(), Options{
		Logger: zerolog.Nop(),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	require.NoError(t, err)
	return m
}

func projectTree(t *testing.T, steps string, extra ...sb3test.Asset) *worktree.Tree {
	t.Helper()
	sprite := sb3test.Sprite("Sprite1", map[string]any{
		"b1": sb3test.Block("motion_movesteps", map[string]any{"STEPS": sb3test.Field(steps)}),
	})
	sprite.Costumes = append(sprite.Costumes, extra...)
	p := sb3test.Project{Targets: []sb3test.Target{sb3test.Stage(), sprite}}
	tree, err := archive.Ingest(p.Bundle(t), archive.Options{})
	require.NoError(t, err)
	return tree
}

func bareRemote(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func TestValidProjectID(t *testing.T) {
	for _, id := range []string{"game", "My Game 2", "a.b_c-d"} {
		assert.True(t, ValidProjectID(id), id)
	}
	for _, id := range []string{"", "../x", "a/b", ".hidden", "x..y", `a\b`} {
		assert.False(t, ValidProjectID(id), id)
	}
}

func TestOpenOrInitIdempotent(t *testing.T) {
	m := newManager(t)
	assert.False(t, m.Exists("game"))
	require.NoError(t, m.OpenOrInit("game"))
	require.NoError(t, m.OpenOrInit("game"))
	assert.True(t, m.Exists("game"))

	head, err := m.Head("game")
	require.NoError(t, err)
	assert.Empty(t, head)

	revs, err := m.Log("game")
	require.NoError(t, err)
	assert.Empty(t, revs)

	projects, err := m.Projects()
	require.NoError(t, err)
	assert.Equal(t, []string{"game"}, projects)

	err = m.OpenOrInit("../escape")
	assert.ErrorIs(t, err, errs.ErrInvalidProject)
}

func TestCommitIdempotent(t *testing.T) {
	m := newManager(t)
	tree := projectTree(t, "10")

	rev, err := m.Commit("game", tree, "first", "Ada <ada@example.com>")
	require.NoError(t, err)
	assert.Len(t, rev.ID, 40)
	assert.Equal(t, "Ada", rev.Author)
	assert.Equal(t, "ada@example.com", rev.Email)

	_, err = m.Commit("game", projectTree(t, "10"), "again", "Ada")
	assert.ErrorIs(t, err, errs.ErrNothingToCommit)

	revs, err := m.Log("game")
	require.NoError(t, err)
	assert.Equal(t, []string{rev.ID}, IDs(revs))
}

func TestCommitReadRoundTrip(t *testing.T) {
	m := newManager(t)
	tree := projectTree(t, "10")
	rev, err := m.Commit("game", tree, "first", "")
	require.NoError(t, err)

	got, err := m.Read("game", rev.ID)
	require.NoError(t, err)
	eq, err := got.Equal(tree)
	require.NoError(t, err)
	assert.True(t, eq)

	again, err := m.Read("game", rev.ID)
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestLogNewestFirst(t *testing.T) {
	m := newManager(t)
	first, err := m.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)
	x := sb3test.Asset{Label: "X", Ext: "png", Data: []byte("png-bytes")}
	second, err := m.Commit("game", projectTree(t, "10", x), "add X", "")
	require.NoError(t, err)

	revs, err := m.Log("game")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, second.ID, revs[0].ID)
	assert.Equal(t, first.ID, revs[1].ID)
	assert.Equal(t, []string{first.ID}, revs[0].Parents)
	assert.True(t, revs[0].Time().After(revs[1].Time()))

	head, err := m.Head("game")
	require.NoError(t, err)
	assert.Equal(t, second.ID, head)
}

func TestReadUnknownRevision(t *testing.T) {
	m := newManager(t)
	_, err := m.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)

	for _, rev := range []string{"nothex", "0123456789012345678901234567890123456789", ""} {
		_, err := m.Read("game", rev)
		assert.ErrorIs(t, err, errs.ErrUnknownRevision, rev)
	}

	_, err = m.Read("missing", "0123456789012345678901234567890123456789")
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)
}

func TestReadRejectsUnreachableCommit(t *testing.T) {
	m := newManager(t)
	first, err := m.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)

	// A commit from another project's history is not reachable here.
	other, err := m.Commit("other", projectTree(t, "99"), "other", "")
	require.NoError(t, err)
	_, err = m.Read("game", other.ID)
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)

	_, err = m.Read("game", first.ID)
	assert.NoError(t, err)
}

func TestResolve(t *testing.T) {
	m := newManager(t)
	rev, err := m.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)

	got, err := m.Resolve("game", "head")
	require.NoError(t, err)
	assert.Equal(t, rev.ID, got)

	got, err = m.Resolve("game", rev.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, rev.ID, got)

	_, err = m.Resolve("game", "zz")
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)

	_, err = m.Resolve("empty", "head")
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)
}

func TestLockSerializesCommits(t *testing.T) {
	m := newManager(t)
	var wg sync.WaitGroup
	results := make([]error, 8)
	trees := make([]*worktree.Tree, len(results))
	for i := range trees {
		trees[i] = projectTree(t, "10")
	}
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.Commit("game", trees[i], "same", "")
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range results {
		if err == nil {
			committed++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrNothingToCommit)
	}
	assert.Equal(t, 1, committed)

	revs, err := m.Log("game")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestLockTimeout(t *testing.T) {
	m, err := NewManager(t.TempDir(), Options{Logger: zerolog.Nop(), LockTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	release, err := m.Lock("test", "game")
	require.NoError(t, err)

	_, err = m.Commit("game", projectTree(t, "10"), "blocked", "")
	assert.ErrorIs(t, err, errs.ErrLockTimeout)

	release()
	_, err = m.Commit("game", projectTree(t, "10"), "free", "")
	assert.NoError(t, err)
}

func TestPushPullFastForward(t *testing.T) {
	ctx := context.Background()
	remote := bareRemote(t)

	a := newManager(t)
	first, err := a.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", remote, ""))
	// Pushing again is a no-op.
	require.NoError(t, a.Push(ctx, "game", remote, ""))

	b := newManager(t)
	require.NoError(t, b.OpenOrInit("game"))
	res, err := b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, first.ID, res.Head)

	second, err := a.Commit("game", projectTree(t, "20"), "second", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", remote, ""))

	res, err = b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	revs, err := b.Log("game")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, IDs(revs))

	// Local ahead of remote: nothing to do.
	third, err := b.Commit("game", projectTree(t, "30"), "third", "")
	require.NoError(t, err)
	res, err = b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, third.ID, res.Head)
}

// useSystemGit serves file:// remotes through the git binaries for the rest
// of the test. The in-process server cannot negotiate with a client that
// advertises commits it has never seen, which is exactly the diverged case.
func useSystemGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git is not installed")
		}
	}
	client.InstallProtocol("file", file.DefaultClient)
	t.Cleanup(func() { client.InstallProtocol("file", server.DefaultServer) })
}

// divergedRemote leaves a with a local commit "ours" and the remote with a
// commit "theirs", both on top of a shared "first".
func divergedRemote(t *testing.T) (a *Manager, remote string) {
	t.Helper()
	ctx := context.Background()
	remote = bareRemote(t)

	a = newManager(t)
	_, err := a.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", remote, ""))

	b := newManager(t)
	_, err = b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)
	_, err = b.Commit("game", projectTree(t, "30"), "theirs", "")
	require.NoError(t, err)
	require.NoError(t, b.Push(ctx, "game", remote, ""))

	_, err = a.Commit("game", projectTree(t, "20"), "ours", "")
	require.NoError(t, err)
	return a, remote
}

func TestPushDivergedRejected(t *testing.T) {
	a, remote := divergedRemote(t)
	before, err := a.Log("game")
	require.NoError(t, err)

	err = a.Push(context.Background(), "game", remote, "")
	assert.ErrorIs(t, err, errs.ErrRemoteRejected)

	after, err := a.Log("game")
	require.NoError(t, err)
	assert.Equal(t, IDs(before), IDs(after))
}

func TestPullDivergedRejected(t *testing.T) {
	useSystemGit(t)
	a, remote := divergedRemote(t)
	before, err := a.Log("game")
	require.NoError(t, err)

	_, err = a.Pull(context.Background(), "game", remote, "")
	assert.ErrorIs(t, err, errs.ErrRemoteRejected)

	after, err := a.Log("game")
	require.NoError(t, err)
	assert.Equal(t, IDs(before), IDs(after))
}

func TestPushEmptyHistory(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.OpenOrInit("game"))
	err := m.Push(context.Background(), "game", bareRemote(t), "")
	assert.ErrorIs(t, err, errs.ErrNothingToCommit)
}

func TestPushUnreachableRemote(t *testing.T) {
	m := newManager(t)
	_, err := m.Commit("game", projectTree(t, "10"), "first", "")
	require.NoError(t, err)
	err = m.Push(context.Background(), "game", "http://127.0.0.1:1/none.git", "secret-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNetwork)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestPullEmptyRemote(t *testing.T) {
	m := newManager(t)
	res, err := m.Pull(context.Background(), "game", bareRemote(t), "")
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Empty(t, res.Head)
}

func TestSignature(t *testing.T) {
	now := time.Unix(0, 0)
	sig := signature("Ada Lovelace <ada@example.com>", "sbvc", "sbvc@localhost", now)
	assert.Equal(t, "Ada Lovelace", sig.Name)
	assert.Equal(t, "ada@example.com", sig.Email)

	sig = signature("Ada", "sbvc", "sbvc@localhost", now)
	assert.Equal(t, "Ada", sig.Name)
	assert.Equal(t, "sbvc@localhost", sig.Email)

	sig = signature("", "sbvc", "sbvc@localhost", now)
	assert.Equal(t, "sbvc", sig.Name)
}
