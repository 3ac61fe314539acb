package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/errs"
)

var trackingRef = plumbing.NewRemoteReferenceName(config.DefaultRemote, config.DefaultBranch)

// PullResult describes what a pull did to the local head.
type PullResult struct {
	Updated bool   `json:"updated"`
	Head    string `json:"head"`
}

func auth(url, token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

// setOrigin points the origin remote at url, replacing a stale one.
func setOrigin(r *git.Repository, url string) error {
	rem, err := r.Remote(config.DefaultRemote)
	if err == nil {
		urls := rem.Config().URLs
		if len(urls) == 1 && urls[0] == url {
			return nil
		}
		if err := r.DeleteRemote(config.DefaultRemote); err != nil {
			return err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}
	_, err = r.CreateRemote(&gitconfig.RemoteConfig{Name: config.DefaultRemote, URLs: []string{url}})
	return err
}

// classify maps transport failures onto the error taxonomy. The token never
// appears in the result since go-git does not echo credentials.
func classify(op, project string, err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, git.ErrForceNeeded),
		strings.Contains(err.Error(), "non-fast-forward"):
		return errs.New(errs.ErrRemoteRejected, op, project, err)
	}
	return errs.New(errs.ErrNetwork, op, project, err)
}

// Push sends the local main branch to url. The remote must fast-forward.
func (m *Manager) Push(ctx context.Context, project, url, token string) error {
	release, err := m.Lock("push", project)
	if err != nil {
		return err
	}
	defer release()

	r, err := m.handle(project)
	if err != nil {
		return err
	}
	head, err := headCommit(r)
	if err != nil {
		return err
	}
	if head == nil {
		return errs.Wrapf(errs.ErrNothingToCommit, "push", "history of %s is empty", project)
	}
	if err := setOrigin(r, url); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	spec := gitconfig.RefSpec(mainRef.String() + ":" + mainRef.String())
	err = r.PushContext(ctx, &git.PushOptions{
		RemoteName: config.DefaultRemote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth(url, token),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		m.log.Warn().Str("project", project).Err(err).Msg("push failed")
		return classify("push", project, err)
	}
	m.log.Info().Str("project", project).Str("revision", head.Hash.String()).Msg("pushed")
	return nil
}

// Pull fetches the remote main branch and fast-forwards the local head to
// it. A diverged history gives ErrRemoteRejected and leaves head in place.
func (m *Manager) Pull(ctx context.Context, project, url, token string) (PullResult, error) {
	release, err := m.Lock("pull", project)
	if err != nil {
		return PullResult{}, err
	}
	defer release()
	return m.PullLocked(ctx, project, url, token)
}

// PullLocked is Pull for callers already holding the project lock.
func (m *Manager) PullLocked(ctx context.Context, project, url, token string) (PullResult, error) {
	r, err := m.handle(project)
	if err != nil {
		return PullResult{}, err
	}
	if err := setOrigin(r, url); err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}

	local, err := headCommit(r)
	if err != nil {
		return PullResult{}, err
	}
	res := PullResult{}
	if local != nil {
		res.Head = local.Hash.String()
	}

	spec := gitconfig.RefSpec("+" + mainRef.String() + ":" + trackingRef.String())
	err = r.FetchContext(ctx, &git.FetchOptions{
		RemoteName: config.DefaultRemote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth(url, token),
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository), errors.Is(err, git.NoMatchingRefSpecError{}):
		return res, nil
	default:
		m.log.Warn().Str("project", project).Err(err).Msg("fetch failed")
		return res, classify("pull", project, err)
	}

	ref, err := r.Reference(trackingRef, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	remote, err := r.CommitObject(ref.Hash())
	if err != nil {
		return res, fmt.Errorf("pull: %w", err)
	}

	switch {
	case local == nil:
	case local.Hash == remote.Hash:
		return res, nil
	default:
		behind, err := local.IsAncestor(remote)
		if err != nil {
			return res, err
		}
		if !behind {
			ahead, err := remote.IsAncestor(local)
			if err != nil {
				return res, err
			}
			if ahead {
				return res, nil
			}
			return res, errs.Wrapf(errs.ErrRemoteRejected, "pull", "history of %s has diverged from %s", project, url)
		}
	}

	if err := publish(m.gitDir(project), remote.Hash); err != nil {
		return res, fmt.Errorf("pull: publish: %w", err)
	}
	m.log.Info().Str("project", project).Str("revision", remote.Hash.String()).Msg("fast-forwarded")
	return PullResult{Updated: true, Head: remote.Hash.String()}, nil
}
