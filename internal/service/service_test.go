package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/archive"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/metrics"
	"github.com/keshon/sbvc/internal/sb3/sb3test"
)

func TestMain(m *testing.M) {
	client.InstallProtocol("file", server.DefaultServer)
	os.Exit(m.Run())
}

func newService(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectsRoot = t.TempDir()
	m := metrics.New()
	svc, err := New(cfg, zerolog.Nop(), m)
	require.NoError(t, err)
	return svc, m
}

func bundle(t *testing.T, steps string, extra ...sb3test.Asset) []byte {
	t.Helper()
	sprite := sb3test.Sprite("Sprite1", map[string]any{
		"b1": sb3test.Block("motion_movesteps", map[string]any{"STEPS": sb3test.Field(steps)}),
	})
	sprite.Costumes = append(sprite.Costumes, extra...)
	p := sb3test.Project{Targets: []sb3test.Target{sb3test.Stage(), sprite}}
	return p.Bundle(t)
}

func TestIngestCommitStatus(t *testing.T) {
	svc, m := newService(t)

	st, err := svc.Status("game")
	require.NoError(t, err)
	assert.False(t, st.HasWorking)
	assert.True(t, st.Clean)

	_, err = svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	assert.True(t, svc.Exists("game"))

	st, err = svc.Status("game")
	require.NoError(t, err)
	assert.True(t, st.HasWorking)
	assert.False(t, st.Clean)
	assert.Empty(t, st.Head)

	rev, err := svc.CommitWorking("game", "first", "Ada <ada@example.com>")
	require.NoError(t, err)

	st, err = svc.Status("game")
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Equal(t, rev.ID, st.Head)

	_, err = svc.CommitWorking("game", "again", "")
	assert.ErrorIs(t, err, errs.ErrNothingToCommit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("commit", "nothing_to_commit")))

	_, err = svc.Ingest("game", bundle(t, "20"))
	require.NoError(t, err)
	st, err = svc.Status("game")
	require.NoError(t, err)
	assert.False(t, st.Clean)
	assert.Equal(t, []string{"Sprite1"}, st.Targets)

	r, err := svc.Diff("game", "", "")
	require.NoError(t, err)
	require.Len(t, r.Targets.Modified, 1)
	assert.Equal(t, "b1", r.Targets.Modified[0].Blocks.Modified[0].ID)
	// Status diffs too.
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiffChanges.WithLabelValues("blocks")))
}

func TestTwoCommitsAssetAdded(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	first, err := svc.CommitWorking("game", "first", "")
	require.NoError(t, err)

	x := sb3test.Asset{Label: "X", Ext: "png", Data: []byte("png X")}
	_, err = svc.Ingest("game", bundle(t, "10", x))
	require.NoError(t, err)
	second, err := svc.CommitWorking("game", "add X", "")
	require.NoError(t, err)

	revs, err := svc.Log("game")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, second.ID, revs[0].ID)
	assert.Equal(t, first.ID, revs[1].ID)

	r, err := svc.Diff("game", first.ID, second.ID)
	require.NoError(t, err)
	assert.Empty(t, r.Targets.Added)
	assert.Empty(t, r.Targets.Removed)
	assert.Empty(t, r.Targets.Modified)
	assert.Empty(t, r.Assets.Removed)
	assert.Empty(t, r.Text)
	require.Len(t, r.Assets.Added, 1)
	assert.Equal(t, []string{x.File()}, r.Assets.Added[0].Files)
}

func TestExportRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	original, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)

	data, err := svc.ExportProject("game")
	require.NoError(t, err)
	again, err := archive.Ingest(data, archive.Options{})
	require.NoError(t, err)

	eq, err := again.Equal(original)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestCheckoutAndTargets(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	first, err := svc.CommitWorking("game", "first", "")
	require.NoError(t, err)
	_, err = svc.Ingest("game", bundle(t, "20"))
	require.NoError(t, err)
	_, err = svc.CommitWorking("game", "second", "")
	require.NoError(t, err)

	_, err = svc.Checkout("game", first.ID[:10])
	require.NoError(t, err)
	r, err := svc.Diff("game", first.ID, "working")
	require.NoError(t, err)
	assert.True(t, r.Empty())

	names, err := svc.Targets("game")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stage", "Sprite1"}, names)

	tree, err := svc.Read("game", "head")
	require.NoError(t, err)
	p, err := tree.Project()
	require.NoError(t, err)
	assert.Len(t, p.Targets, 2)
}

func TestUnknownRevisionAndInvalidProject(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)

	_, err = svc.Diff("game", "0123456789012345678901234567890123456789", "working")
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)
	_, err = svc.Diff("game", "head", "working")
	assert.ErrorIs(t, err, errs.ErrUnknownRevision)

	_, err = svc.Ingest("../x", bundle(t, "10"))
	assert.ErrorIs(t, err, errs.ErrInvalidProject)
	_, err = svc.Ingest("game", []byte("not a zip"))
	assert.ErrorIs(t, err, errs.ErrMalformedArchive)
}

func TestAuthorFromSettings(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	require.NoError(t, svc.SaveSettings("game", config.Settings{Author: "Grace", Email: "grace@example.com"}))

	rev, err := svc.CommitWorking("game", "first", "")
	require.NoError(t, err)
	assert.Equal(t, "Grace", rev.Author)
	assert.Equal(t, "grace@example.com", rev.Email)
}

func TestVerify(t *testing.T) {
	svc, _ := newService(t)
	tree, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)

	statuses, err := svc.Verify("game")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Empty(t, Damaged(statuses))

	ix, err := tree.Index()
	require.NoError(t, err)
	victim := filepath.Join(tree.Root, config.AssetsDir, ix.Assets[0].ID)
	require.NoError(t, os.WriteFile(victim, []byte("corrupt"), 0o644))

	statuses, err = svc.Verify("game")
	require.NoError(t, err)
	bad := Damaged(statuses)
	require.Len(t, bad, 1)
	assert.Equal(t, "damaged", bad[0].Status)
}

func TestPushPullRemembersRemote(t *testing.T) {
	ctx := context.Background()
	remote := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	a, _ := newService(t)
	_, err = a.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	_, err = a.CommitWorking("game", "first", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", remote, ""))

	st, err := a.Settings("game")
	require.NoError(t, err)
	assert.Equal(t, remote, st.Remote)

	b, _ := newService(t)
	res, err := b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	names, err := b.Targets("game")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stage", "Sprite1"}, names)

	_, err = a.Ingest("game", bundle(t, "20"))
	require.NoError(t, err)
	second, err := a.CommitWorking("game", "second", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", "", ""))

	res, err = b.Pull(ctx, "game", "", "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, res.Head)
	st2, err := b.Status("game")
	require.NoError(t, err)
	assert.True(t, st2.Clean)

	err = a.Push(ctx, "other", "", "")
	assert.Error(t, err)
}

func TestVerifyFuncReportsEveryAsset(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]string{}
	statuses, err := svc.VerifyFunc("game", func(st AssetStatus) {
		mu.Lock()
		seen[st.ID] = st.Status
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.Len(t, seen, len(statuses))
	for _, st := range statuses {
		assert.Equal(t, "ok", seen[st.ID])
	}
}

func TestRemoteTokenFallback(t *testing.T) {
	svc, _ := newService(t)
	assert.Equal(t, "", svc.token(""))
	svc.cfg.RemoteToken = "from-env"
	assert.Equal(t, "from-env", svc.token(""))
	assert.Equal(t, "explicit", svc.token("explicit"))
}

func TestPullHoldsLockUntilWorkingTreeFollows(t *testing.T) {
	ctx := context.Background()
	remote := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	a, _ := newService(t)
	_, err = a.Ingest("game", bundle(t, "10"))
	require.NoError(t, err)
	_, err = a.CommitWorking("game", "first", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", remote, ""))

	cfg := config.Default()
	cfg.ProjectsRoot = t.TempDir()
	cfg.LockTimeout = 20 * time.Millisecond
	b, err := New(cfg, zerolog.Nop(), metrics.New())
	require.NoError(t, err)
	_, err = b.Pull(ctx, "game", remote, "")
	require.NoError(t, err)

	_, err = a.Ingest("game", bundle(t, "20"))
	require.NoError(t, err)
	second, err := a.CommitWorking("game", "second", "")
	require.NoError(t, err)
	require.NoError(t, a.Push(ctx, "game", "", ""))

	concurrent := bundle(t, "99")
	var ingestErr error
	pullUpdated = func(project string) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, ingestErr = b.Ingest(project, concurrent)
		}()
		<-done
	}
	t.Cleanup(func() { pullUpdated = func(string) {} })

	res, err := b.Pull(ctx, "game", "", "")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.ErrorIs(t, ingestErr, errs.ErrLockTimeout)

	st, err := b.Status("game")
	require.NoError(t, err)
	assert.Equal(t, second.ID, st.Head)
	assert.True(t, st.Clean)
}
