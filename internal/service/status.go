package service

import (
	"errors"
	"sort"

	"github.com/keshon/sbvc/internal/content"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/util"
	"github.com/keshon/sbvc/internal/worktree"
)

// Status describes the working tree against head.
type Status struct {
	Project    string   `json:"project"`
	Head       string   `json:"head,omitempty"`
	HasWorking bool     `json:"hasWorking"`
	Clean      bool     `json:"clean"`
	Targets    []string `json:"targets,omitempty"`
	Assets     int      `json:"assets"`
	Text       int      `json:"text"`
}

// Status compares the working tree with head.
func (s *Service) Status(project string) (st Status, err error) {
	defer s.track("status", project)(&err)
	st.Project = project
	if st.Head, err = s.repo.Head(project); err != nil {
		return st, err
	}

	working, err := s.Working(project)
	if errors.Is(err, errs.ErrUnknownRevision) {
		st.Clean = st.Head == ""
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.HasWorking = true
	if st.Head == "" {
		return st, nil
	}

	head, err := s.repo.Read(project, st.Head)
	if err != nil {
		return st, err
	}
	r, err := s.DiffTrees(head, working)
	if err != nil {
		return st, err
	}
	st.Clean = r.Empty()
	st.Targets = append(st.Targets, r.Targets.Added...)
	st.Targets = append(st.Targets, r.Targets.Removed...)
	for _, t := range r.Targets.Modified {
		st.Targets = append(st.Targets, t.Name)
	}
	sort.Strings(st.Targets)
	st.Assets = len(r.Assets.Added) + len(r.Assets.Removed)
	st.Text = len(r.Text)
	return st, nil
}

// AssetStatus is the integrity of one indexed asset.
type AssetStatus struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Verify re-hashes every asset of the working tree.
func (s *Service) Verify(project string) ([]AssetStatus, error) {
	return s.VerifyFunc(project, nil)
}

// VerifyFunc is Verify with a callback run as each asset is checked. done
// may be called from several goroutines at once.
func (s *Service) VerifyFunc(project string, done func(AssetStatus)) (out []AssetStatus, err error) {
	defer s.track("verify", project)(&err)
	t, err := s.Working(project)
	if err != nil {
		return nil, err
	}
	return VerifyTreeFunc(t, done)
}

// VerifyTree re-hashes every asset of t, in index order.
func VerifyTree(t *worktree.Tree) ([]AssetStatus, error) {
	return VerifyTreeFunc(t, nil)
}

// VerifyTreeFunc is VerifyTree with a per-asset callback.
func VerifyTreeFunc(t *worktree.Tree, done func(AssetStatus)) ([]AssetStatus, error) {
	ix, err := t.Index()
	if err != nil {
		return nil, err
	}
	out := make([]AssetStatus, len(ix.Assets))
	idx := make([]int, len(ix.Assets))
	for i := range idx {
		idx[i] = i
	}
	err = util.Parallel(idx, util.WorkerCount(), func(i int) error {
		e := ix.Assets[i]
		// A read error already reports Damaged.
		st, _ := t.Assets().Verify(e.ID)
		out[i] = AssetStatus{Name: e.Name, ID: e.ID, Status: st.String()}
		if done != nil {
			done(out[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Damaged filters statuses that are not OK.
func Damaged(statuses []AssetStatus) []AssetStatus {
	var out []AssetStatus
	for _, st := range statuses {
		if st.Status != content.OK.String() {
			out = append(out, st)
		}
	}
	return out
}
