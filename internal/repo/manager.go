// Package repo keeps the version history of each project in a bare git
// repository under <root>/<project>/history.git.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/worktree"
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._ -]{0,127}$`)

// ValidProjectID reports whether id can name a project directory without
// escaping the projects root.
func ValidProjectID(id string) bool {
	return projectIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

func checkProject(op, id string) error {
	if !ValidProjectID(id) {
		return errs.New(errs.ErrInvalidProject, op, id, nil)
	}
	return nil
}

// Options tunes a Manager.
type Options struct {
	LockTimeout    time.Duration
	CacheSize      int
	CommitterName  string
	CommitterEmail string
	Logger         zerolog.Logger

	// Now stamps commits. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the histories of every project under Root.
type Manager struct {
	Root string

	opts  Options
	log   zerolog.Logger
	locks *lockRegistry
	cache *lru.Cache[string, *worktree.Tree]

	mu      sync.Mutex
	handles map[string]*git.Repository
}

// NewManager returns a manager for the projects under root.
func NewManager(root string, opts Options) (*Manager, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = config.DefaultRevisionCacheSize
	}
	if opts.CommitterName == "" {
		opts.CommitterName = "sbvc"
	}
	if opts.CommitterEmail == "" {
		opts.CommitterEmail = "sbvc@localhost"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[string, *worktree.Tree](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Root:    root,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "repo").Logger(),
		locks:   newLockRegistry(),
		cache:   cache,
		handles: make(map[string]*git.Repository),
	}, nil
}

// ProjectDir is the directory holding the project's working tree and history.
func (m *Manager) ProjectDir(project string) string {
	return filepath.Join(m.Root, project)
}

func (m *Manager) gitDir(project string) string {
	return filepath.Join(m.ProjectDir(project), config.HistoryDir)
}

// Exists reports whether the project has been initialized.
func (m *Manager) Exists(project string) bool {
	if !ValidProjectID(project) {
		return false
	}
	_, err := os.Stat(filepath.Join(m.gitDir(project), "HEAD"))
	return err == nil
}

// Projects lists initialized projects in name order.
func (m *Manager) Projects() ([]string, error) {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && m.Exists(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Lock takes the project's mutation lock. Callers that change the working
// tree alongside history hold it across both.
func (m *Manager) Lock(op, project string) (release func(), err error) {
	if err := checkProject(op, project); err != nil {
		return nil, err
	}
	return m.locks.acquire(op, project, m.opts.LockTimeout)
}

// OpenOrInit creates the project's history if it does not exist yet. It is
// idempotent.
func (m *Manager) OpenOrInit(project string) error {
	release, err := m.Lock("init", project)
	if err != nil {
		return err
	}
	defer release()
	return m.InitLocked(project)
}

// InitLocked is OpenOrInit for callers already holding the project lock.
func (m *Manager) InitLocked(project string) error {
	_, err := m.handle(project)
	return err
}

// handle returns the cached write handle, initializing the repository on
// first use. The project lock must be held.
func (m *Manager) handle(project string) (*git.Repository, error) {
	m.mu.Lock()
	r, ok := m.handles[project]
	m.mu.Unlock()
	if ok {
		return r, nil
	}

	dir := m.gitDir(project)
	r, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		r, err = git.PlainInit(dir, true)
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", project, err)
		}
		head := plumbing.NewSymbolicReference(plumbing.HEAD, mainRef)
		if err := r.Storer.SetReference(head); err != nil {
			return nil, err
		}
		m.log.Info().Str("project", project).Msg("initialized history")
	} else if err != nil {
		return nil, fmt.Errorf("open %s: %w", project, err)
	}

	m.mu.Lock()
	m.handles[project] = r
	m.mu.Unlock()
	return r, nil
}

// readHandle opens a fresh handle so readers never share state with writers.
// A missing repository yields nil without error.
func (m *Manager) readHandle(project string) (*git.Repository, error) {
	r, err := git.PlainOpen(m.gitDir(project))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	return r, err
}

func headCommit(r *git.Repository) (*object.Commit, error) {
	ref, err := r.Reference(mainRef, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.CommitObject(ref.Hash())
}

// Commit records tree as the new head. A tree equal to head's gives
// ErrNothingToCommit and leaves history untouched.
func (m *Manager) Commit(project string, tree *worktree.Tree, message, author string) (Revision, error) {
	release, err := m.Lock("commit", project)
	if err != nil {
		return Revision{}, err
	}
	defer release()
	return m.CommitLocked(project, tree, message, author)
}

// CommitLocked is Commit for callers already holding the project lock.
func (m *Manager) CommitLocked(project string, tree *worktree.Tree, message, author string) (Revision, error) {
	r, err := m.handle(project)
	if err != nil {
		return Revision{}, err
	}
	head, err := headCommit(r)
	if err != nil {
		return Revision{}, fmt.Errorf("commit: %w", err)
	}

	treeHash, err := writeTree(r, tree)
	if err != nil {
		return Revision{}, fmt.Errorf("commit: %w", err)
	}
	var parents []plumbing.Hash
	if head != nil {
		if head.TreeHash == treeHash {
			return Revision{}, errs.New(errs.ErrNothingToCommit, "commit", project, nil)
		}
		parents = []plumbing.Hash{head.Hash}
	}

	if strings.TrimSpace(message) == "" {
		message = "Update project"
	}
	now := m.opts.Now().UTC().Truncate(time.Second)
	c := &object.Commit{
		Author:       signature(author, m.opts.CommitterName, m.opts.CommitterEmail, now),
		Committer:    object.Signature{Name: m.opts.CommitterName, Email: m.opts.CommitterEmail, When: now},
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	h, err := encode(r, c)
	if err != nil {
		return Revision{}, fmt.Errorf("commit: %w", err)
	}
	if err := publish(m.gitDir(project), h); err != nil {
		return Revision{}, fmt.Errorf("commit: publish: %w", err)
	}

	stored, err := r.CommitObject(h)
	if err != nil {
		return Revision{}, err
	}
	rev := revisionOf(stored)
	m.log.Info().Str("project", project).Str("revision", rev.ID).Msg("committed")
	return rev, nil
}

// Head returns the current head revision id, or "" for an empty history.
func (m *Manager) Head(project string) (string, error) {
	if err := checkProject("head", project); err != nil {
		return "", err
	}
	r, err := m.readHandle(project)
	if err != nil || r == nil {
		return "", err
	}
	c, err := headCommit(r)
	if err != nil || c == nil {
		return "", err
	}
	return c.Hash.String(), nil
}

// Log lists the revisions reachable from head along first parents, newest
// first.
func (m *Manager) Log(project string) ([]Revision, error) {
	if err := checkProject("log", project); err != nil {
		return nil, err
	}
	r, err := m.readHandle(project)
	if err != nil || r == nil {
		return nil, err
	}
	c, err := headCommit(r)
	if err != nil {
		return nil, err
	}

	var out []Revision
	seen := map[plumbing.Hash]bool{}
	for c != nil && !seen[c.Hash] {
		seen[c.Hash] = true
		out = append(out, revisionOf(c))
		if len(c.ParentHashes) == 0 {
			break
		}
		c, err = r.CommitObject(c.ParentHashes[0])
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
	}
	return out, nil
}

// Resolve turns "head", a full id or an unambiguous id prefix of at least
// four characters into a full revision id.
func (m *Manager) Resolve(project, rev string) (string, error) {
	rev = strings.ToLower(strings.TrimSpace(rev))
	if rev == config.HeadRef {
		head, err := m.Head(project)
		if err != nil {
			return "", err
		}
		if head == "" {
			return "", errs.Wrapf(errs.ErrUnknownRevision, "resolve", "history of %s is empty", project)
		}
		return head, nil
	}
	if isFullID(rev) {
		return rev, nil
	}
	if len(rev) < 4 || !isHex(rev) {
		return "", errs.Wrapf(errs.ErrUnknownRevision, "resolve", "%q", rev)
	}
	revs, err := m.Log(project)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range revs {
		if strings.HasPrefix(r.ID, rev) {
			if match != "" {
				return "", errs.Wrapf(errs.ErrUnknownRevision, "resolve", "%q is ambiguous", rev)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", errs.Wrapf(errs.ErrUnknownRevision, "resolve", "%q", rev)
	}
	return match, nil
}

// Read materializes a revision reachable from head. Returned trees may be
// shared through the cache and must not be modified; Clone them first.
func (m *Manager) Read(project, rev string) (*worktree.Tree, error) {
	if err := checkProject("read", project); err != nil {
		return nil, err
	}
	rev = strings.ToLower(rev)
	if !isFullID(rev) {
		return nil, errs.Wrapf(errs.ErrUnknownRevision, "read", "%q is not a revision id", rev)
	}
	key := project + "@" + rev
	if t, ok := m.cache.Get(key); ok {
		return t, nil
	}

	r, err := m.readHandle(project)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.New(errs.ErrUnknownRevision, "read", project, fmt.Errorf("%s", rev))
	}
	c, err := r.CommitObject(plumbing.NewHash(rev))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, errs.New(errs.ErrUnknownRevision, "read", project, fmt.Errorf("%s", rev))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rev, err)
	}
	if ok, err := reachable(r, c); err != nil {
		return nil, err
	} else if !ok {
		return nil, errs.New(errs.ErrUnknownRevision, "read", project, fmt.Errorf("%s is not in history", rev))
	}

	t, err := materialize(c)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rev, err)
	}
	m.cache.Add(key, t)
	return t, nil
}

func reachable(r *git.Repository, c *object.Commit) (bool, error) {
	head, err := headCommit(r)
	if err != nil || head == nil {
		return false, err
	}
	if head.Hash == c.Hash {
		return true, nil
	}
	return c.IsAncestor(head)
}

func isFullID(s string) bool {
	return len(s) == 40 && isHex(s)
}

func isHex(s string) bool {
	for _, ch := range s {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return false
		}
	}
	return true
}
