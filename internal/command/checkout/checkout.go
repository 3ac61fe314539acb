package checkout

import (
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	force bool
}

func (c *Command) Name() string      { return "checkout" }
func (c *Command) Short() string     { return "co" }
func (c *Command) Aliases() []string { return []string{"restore"} }
func (c *Command) Usage() string     { return "checkout [--force] <project> [<revision>]" }
func (c *Command) Brief() string     { return "Replace the working tree with a revision" }
func (c *Command) Help() string {
	return `Replace the project's working tree with a revision (default head).

A working tree with uncommitted changes is kept unless --force is given.

Options:
  -f, --force   Discard uncommitted changes.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "discard uncommitted changes")
	fs.BoolVar(&c.force, "f", false, "alias for --force")
}

func (c *Command) Run(ctx *command.Context) error {
	project, err := ctx.Project()
	if err != nil {
		return err
	}
	rev := config.HeadRef
	if len(ctx.Args) > 1 {
		rev = ctx.Args[1]
	}

	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}
	if !c.force {
		st, err := svc.Status(project)
		if err != nil {
			return err
		}
		if st.HasWorking && !st.Clean {
			return fmt.Errorf("working tree of %s has uncommitted changes; commit them or use --force", project)
		}
	}

	if _, err := svc.Checkout(project, rev); err != nil {
		return err
	}
	id, err := svc.Repo().Resolve(project, rev)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Working tree of %s is now at %s\n", project, id[:7])
	return nil
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithDebugArgsPrint(),
		),
	)
}
