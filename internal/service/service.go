// Package service is the boundary between the transports (relay, HTTP, CLI)
// and the core: it owns the projects root, the history manager and the
// working trees kept beside each history.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/sbvc/internal/archive"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/diff"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/metrics"
	"github.com/keshon/sbvc/internal/repo"
	"github.com/keshon/sbvc/internal/worktree"
)

// Service implements the project operations.
type Service struct {
	cfg     *config.Config
	fs      fs.FS
	repo    *repo.Manager
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds a service over cfg.ProjectsRoot. m may be nil.
func New(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Service, error) {
	osfs := fs.NewOSFS()
	if err := osfs.MkdirAll(cfg.ProjectsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create projects root: %w", err)
	}
	mgr, err := repo.NewManager(cfg.ProjectsRoot, repo.Options{
		LockTimeout:    cfg.LockTimeout,
		CacheSize:      cfg.RevisionCacheSize,
		CommitterName:  cfg.CommitterName,
		CommitterEmail: cfg.CommitterEmail,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		fs:      osfs,
		repo:    mgr,
		metrics: m,
		log:     logger.With().Str("component", "service").Logger(),
	}, nil
}

// Repo exposes the history manager.
func (s *Service) Repo() *repo.Manager { return s.repo }

// track logs and measures one operation. Use as
// defer s.track("op", project)(&err).
func (s *Service) track(op, project string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		elapsed := time.Since(start)
		result := "ok"
		if errp != nil && *errp != nil {
			result = errs.Kind(*errp)
		}
		s.metrics.RecordOperation(op, result, elapsed)

		var ev *zerolog.Event
		switch result {
		case "ok":
			ev = s.log.Debug()
		case "nothing_to_commit":
			ev = s.log.Info()
		default:
			ev = s.log.Warn().Err(*errp)
		}
		ev.Str("op", op).Str("project", project).Str("result", result).Dur("elapsed", elapsed).Msg("operation")
	}
}

func (s *Service) projectDir(project string) string {
	return s.repo.ProjectDir(project)
}

func (s *Service) workingDir(project string) string {
	return filepath.Join(s.projectDir(project), config.WorkingDir)
}

func (s *Service) archiveOptions() archive.Options {
	return archive.Options{Hash: s.cfg.HashAlgo, MaxEntrySize: s.cfg.MaxEntrySize}
}

func checkProject(op, project string) error {
	if !repo.ValidProjectID(project) {
		return errs.New(errs.ErrInvalidProject, op, project, nil)
	}
	return nil
}

// Exists reports whether the project has a history.
func (s *Service) Exists(project string) bool {
	return s.repo.Exists(project)
}

// Projects lists initialized projects.
func (s *Service) Projects() ([]string, error) {
	return s.repo.Projects()
}

// Init creates the project's history if needed.
func (s *Service) Init(project string) (err error) {
	defer s.track("init", project)(&err)
	return s.repo.OpenOrInit(project)
}

// IngestDetached unpacks a bundle without touching any project.
func (s *Service) IngestDetached(bundle []byte) (*worktree.Tree, error) {
	return archive.Ingest(bundle, s.archiveOptions())
}

// Ingest unpacks bundle and makes it the project's working tree.
func (s *Service) Ingest(project string, bundle []byte) (t *worktree.Tree, err error) {
	defer s.track("ingest", project)(&err)
	if err := checkProject("ingest", project); err != nil {
		return nil, err
	}
	tree, err := archive.Ingest(bundle, s.archiveOptions())
	if err != nil {
		return nil, err
	}
	return s.install(project, tree)
}

// IngestFile ingests a bundle from the OS filesystem.
func (s *Service) IngestFile(project, p string) (t *worktree.Tree, err error) {
	defer s.track("ingest", project)(&err)
	if err := checkProject("ingest", project); err != nil {
		return nil, err
	}
	tree, err := archive.IngestFile(p, s.archiveOptions())
	if err != nil {
		return nil, err
	}
	return s.install(project, tree)
}

// install makes tree the working tree of a possibly new project.
func (s *Service) install(project string, tree *worktree.Tree) (*worktree.Tree, error) {
	release, err := s.repo.Lock("ingest", project)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := s.repo.InitLocked(project); err != nil {
		return nil, err
	}
	return s.replaceWorking(project, tree)
}

// replaceWorking swaps in a copy of t as the working tree. The copy is
// written to a sibling directory first and renamed into place. The project
// lock must be held.
func (s *Service) replaceWorking(project string, t *worktree.Tree) (*worktree.Tree, error) {
	dir := s.workingDir(project)
	tmp := dir + ".tmp-" + uuid.NewString()
	if _, err := t.SaveTo(s.fs, tmp); err != nil {
		s.fs.RemoveAll(tmp)
		return nil, fmt.Errorf("write working tree: %w", err)
	}

	old := ""
	if s.fs.Exists(dir) {
		old = dir + ".old-" + uuid.NewString()
		if err := s.fs.Rename(dir, old); err != nil {
			s.fs.RemoveAll(tmp)
			return nil, fmt.Errorf("replace working tree: %w", err)
		}
	}
	if err := s.fs.Rename(tmp, dir); err != nil {
		if old != "" {
			s.fs.Rename(old, dir)
		}
		s.fs.RemoveAll(tmp)
		return nil, fmt.Errorf("replace working tree: %w", err)
	}
	if old != "" {
		if err := s.fs.RemoveAll(old); err != nil {
			s.log.Warn().Err(err).Str("project", project).Msg("stale working tree left behind")
		}
	}
	return worktree.Open(s.fs, dir)
}

// Working opens the project's live working tree.
func (s *Service) Working(project string) (*worktree.Tree, error) {
	if err := checkProject("working", project); err != nil {
		return nil, err
	}
	t, err := worktree.Open(s.fs, s.workingDir(project))
	if errors.Is(err, worktree.ErrNoTree) {
		return nil, errs.New(errs.ErrUnknownRevision, "working", project, errors.New("no working tree; ingest the project first"))
	}
	return t, err
}

// Export packages any tree as a bundle.
func (s *Service) Export(t *worktree.Tree) ([]byte, error) {
	return archive.Export(t)
}

// ExportProject packages the project's working tree.
func (s *Service) ExportProject(project string) (data []byte, err error) {
	defer s.track("export", project)(&err)
	t, err := s.Working(project)
	if err != nil {
		return nil, err
	}
	return archive.Export(t)
}

// Settings returns the project's stored preferences.
func (s *Service) Settings(project string) (config.Settings, error) {
	if err := checkProject("settings", project); err != nil {
		return config.Settings{}, err
	}
	return config.LoadSettings(s.fs, s.projectDir(project))
}

// SaveSettings stores the project's preferences.
func (s *Service) SaveSettings(project string, st config.Settings) error {
	if err := checkProject("settings", project); err != nil {
		return err
	}
	return config.SaveSettings(s.fs, s.projectDir(project), st)
}

// author falls back to the project's default author.
func (s *Service) author(project, author string) string {
	if strings.TrimSpace(author) != "" {
		return author
	}
	st, err := s.Settings(project)
	if err != nil || st.Author == "" {
		return ""
	}
	if st.Email != "" {
		return fmt.Sprintf("%s <%s>", st.Author, st.Email)
	}
	return st.Author
}

// Commit records tree as the project's new head.
func (s *Service) Commit(project string, t *worktree.Tree, message, author string) (rev repo.Revision, err error) {
	defer s.track("commit", project)(&err)
	return s.repo.Commit(project, t, message, s.author(project, author))
}

// CommitWorking records the project's working tree.
func (s *Service) CommitWorking(project, message, author string) (rev repo.Revision, err error) {
	defer s.track("commit", project)(&err)
	release, err := s.repo.Lock("commit", project)
	if err != nil {
		return repo.Revision{}, err
	}
	defer release()
	t, err := s.Working(project)
	if err != nil {
		return repo.Revision{}, err
	}
	return s.repo.CommitLocked(project, t, message, s.author(project, author))
}

// Log lists revisions newest first.
func (s *Service) Log(project string) (revs []repo.Revision, err error) {
	defer s.track("log", project)(&err)
	return s.repo.Log(project)
}

// Head returns the head revision id, "" for an empty history.
func (s *Service) Head(project string) (string, error) {
	return s.repo.Head(project)
}

// Read materializes a revision: "head", a full id or an id prefix. The
// result is a private copy.
func (s *Service) Read(project, rev string) (t *worktree.Tree, err error) {
	defer s.track("read", project)(&err)
	t, err = s.read(project, rev)
	if err != nil {
		return nil, err
	}
	return t.Clone()
}

// read returns a possibly shared tree; callers must not modify it.
func (s *Service) read(project, rev string) (*worktree.Tree, error) {
	if strings.EqualFold(rev, config.WorkingRef) {
		return s.Working(project)
	}
	id, err := s.repo.Resolve(project, rev)
	if err != nil {
		return nil, err
	}
	return s.repo.Read(project, id)
}

// Diff compares two sides of a project. Each side is "working", "head" or
// a revision id.
func (s *Service) Diff(project, a, b string) (r *diff.Report, err error) {
	defer s.track("diff", project)(&err)
	if a == "" {
		a = config.HeadRef
	}
	if b == "" {
		b = config.WorkingRef
	}
	ta, err := s.read(project, a)
	if err != nil {
		return nil, err
	}
	tb, err := s.read(project, b)
	if err != nil {
		return nil, err
	}
	r, err = diff.Diff(ta, tb)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDiff(r.Counts())
	return r, nil
}

// DiffTrees compares two detached trees.
func (s *Service) DiffTrees(a, b *worktree.Tree) (*diff.Report, error) {
	r, err := diff.Diff(a, b)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDiff(r.Counts())
	return r, nil
}

// remote resolves the remote url, remembering an explicit one.
func (s *Service) remote(project, url string) (string, error) {
	st, err := s.Settings(project)
	if err != nil {
		return "", err
	}
	if url == "" {
		if st.Remote == "" {
			return "", fmt.Errorf("no remote configured for %s", project)
		}
		return st.Remote, nil
	}
	if st.Remote != url {
		st.Remote = url
		if err := s.SaveSettings(project, st); err != nil {
			return "", err
		}
	}
	return url, nil
}

// token falls back to the configured remote token.
func (s *Service) token(token string) string {
	if token == "" {
		return s.cfg.RemoteToken
	}
	return token
}

// Push publishes the project's history to url, or to the remembered remote
// when url is empty.
func (s *Service) Push(ctx context.Context, project, url, token string) (err error) {
	defer s.track("push", project)(&err)
	if err := checkProject("push", project); err != nil {
		return err
	}
	url, err = s.remote(project, url)
	if err != nil {
		return err
	}
	return s.repo.Push(ctx, project, url, s.token(token))
}

// pullUpdated runs after a pull moved head, before the working tree
// follows. Tests swap it to interleave other operations.
var pullUpdated = func(project string) {}

// Pull fast-forwards the project's history from url. A working tree that
// matched the old head follows the new head. The project lock is held from
// the status check until the working tree is replaced.
func (s *Service) Pull(ctx context.Context, project, url, token string) (res repo.PullResult, err error) {
	defer s.track("pull", project)(&err)
	if err := checkProject("pull", project); err != nil {
		return res, err
	}
	url, err = s.remote(project, url)
	if err != nil {
		return res, err
	}

	release, err := s.repo.Lock("pull", project)
	if err != nil {
		return res, err
	}
	defer release()

	before, err := s.Status(project)
	if err != nil {
		return res, err
	}
	res, err = s.repo.PullLocked(ctx, project, url, s.token(token))
	if err != nil || !res.Updated {
		return res, err
	}
	pullUpdated(project)

	if !before.Clean && before.HasWorking {
		s.log.Info().Str("project", project).Msg("working tree has local changes; left as is after pull")
		return res, nil
	}
	src, err := s.repo.Read(project, res.Head)
	if err != nil {
		return res, err
	}
	if _, err := s.replaceWorking(project, src); err != nil {
		return res, err
	}
	return res, nil
}

// Checkout replaces the working tree with a revision.
func (s *Service) Checkout(project, rev string) (t *worktree.Tree, err error) {
	defer s.track("checkout", project)(&err)
	if err := checkProject("checkout", project); err != nil {
		return nil, err
	}
	id, err := s.repo.Resolve(project, rev)
	if err != nil {
		return nil, err
	}
	src, err := s.repo.Read(project, id)
	if err != nil {
		return nil, err
	}
	release, err := s.repo.Lock("checkout", project)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.replaceWorking(project, src)
}

// Targets lists the target names of the working tree in manifest order.
func (s *Service) Targets(project string) ([]string, error) {
	t, err := s.Working(project)
	if err != nil {
		return nil, err
	}
	p, err := t.Project()
	if err != nil {
		return nil, err
	}
	return p.TargetNames(), nil
}
