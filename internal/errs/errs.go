// Package errs defines the error taxonomy shared by every sbvc component.
// All conditions are local and recoverable; nothing in the core exits the
// process or retries on its own.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure kind.
var (
	ErrMalformedArchive  = errors.New("malformed archive")
	ErrUnsupportedFormat = errors.New("unsupported project format")
	ErrMissingAsset      = errors.New("missing asset")
	ErrNothingToCommit   = errors.New("nothing to commit")
	ErrUnknownRevision   = errors.New("unknown revision")
	ErrRemoteRejected    = errors.New("remote rejected")
	ErrNetwork           = errors.New("network error")
	ErrLockTimeout       = errors.New("lock timeout")
	ErrInvalidProject    = errors.New("invalid project id")
)

// Error carries the operation and project a failure belongs to.
type Error struct {
	Op      string
	Project string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Project != "" {
		msg = fmt.Sprintf("%s (project %s)", msg, e.Project)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind sentinel.
func (e *Error) Is(target error) bool { return target == e.Kind }

// New builds an *Error of the given kind.
func New(kind error, op, project string, err error) *Error {
	return &Error{Op: op, Project: project, Kind: kind, Err: err}
}

// Wrapf builds an *Error of the given kind with a formatted cause.
func Wrapf(kind error, op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

var kinds = []struct {
	err     error
	code    string
	message string
}{
	{ErrMalformedArchive, "malformed_archive", "The project file is damaged or is not a valid project archive. Re-save it from the editor and try again."},
	{ErrUnsupportedFormat, "unsupported_format", "This project was saved by a newer editor. It is stored as-is, but changes can only be shown as text."},
	{ErrMissingAsset, "missing_asset", "A costume or sound referenced by the project is missing. Restore the asset or re-save the project."},
	{ErrNothingToCommit, "nothing_to_commit", "There are no changes since the last commit."},
	{ErrUnknownRevision, "unknown_revision", "That revision does not exist in this project's history."},
	{ErrRemoteRejected, "remote_rejected", "The remote rejected the update. Pull the latest history first, or check that your token has access."},
	{ErrNetwork, "network_error", "The remote could not be reached. Check your connection and try again."},
	{ErrLockTimeout, "lock_timeout", "Another operation on this project is still running. Check the history before retrying."},
	{ErrInvalidProject, "invalid_project", "The project name is not valid."},
}

// Kind returns a stable machine-readable code for err, or "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}

// Message returns an actionable user-facing message for err.
func Message(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.message
		}
	}
	return "Unexpected error: " + err.Error()
}
