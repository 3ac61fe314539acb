package middleware

import (
	"errors"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/service"
)

// WithAssetIntegrityCheck refuses to run the command when the project's
// working tree holds missing or damaged assets.
func WithAssetIntegrityCheck() command.Middleware {
	return func(cmd command.Command) command.Command {
		return command.Wrap(cmd, func(ctx *command.Context, next func(*command.Context) error) error {
			project, err := ctx.Project()
			if err != nil {
				return err
			}
			svc, err := ctx.Env.Service()
			if err != nil {
				return err
			}
			statuses, err := svc.Verify(project)
			if errors.Is(err, errs.ErrUnknownRevision) {
				// no working tree yet, the command reports that itself
				return next(ctx)
			}
			if err != nil {
				return err
			}
			if bad := service.Damaged(statuses); len(bad) > 0 {
				return fmt.Errorf(
					"working tree of %q has %d damaged asset(s), starting with %s (%s)\nPlease run `sbvc verify %s` before continuing",
					project, len(bad), bad[0].Name, bad[0].Status, project,
				)
			}
			return next(ctx)
		})
	}
}
