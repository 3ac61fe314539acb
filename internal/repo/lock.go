package repo

import (
	"sync"
	"time"

	"github.com/keshon/sbvc/internal/errs"
)

// lockRegistry hands out one exclusive lock per project. Locks are created
// on first use and never torn down.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]chan struct{})}
}

func (l *lockRegistry) get(project string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[project]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[project] = ch
	}
	return ch
}

// acquire blocks until the project lock is held. A positive timeout bounds
// the wait and yields ErrLockTimeout when it elapses.
func (l *lockRegistry) acquire(op, project string, timeout time.Duration) (release func(), err error) {
	ch := l.get(project)
	release = func() { <-ch }
	if timeout <= 0 {
		ch <- struct{}{}
		return release, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		return nil, errs.New(errs.ErrLockTimeout, op, project, nil)
	}
}
