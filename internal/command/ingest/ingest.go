package ingest

import (
	"errors"
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	commit  bool
	message string
	author  string
}

func (c *Command) Name() string      { return "ingest" }
func (c *Command) Short() string     { return "I" }
func (c *Command) Aliases() []string { return []string{"import", "add"} }
func (c *Command) Usage() string     { return "ingest [--commit [-m <message>]] <project> <file.sb3>" }
func (c *Command) Brief() string     { return "Unpack a project bundle into the working tree" }
func (c *Command) Help() string {
	return `Unpack an .sb3 bundle and make it the project's working tree. The project
is initialized when it does not exist yet.

Options:
      --commit          Commit the ingested tree right away.
  -m, --message=<msg>   Message for --commit.
      --author=<who>    Author for --commit.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.commit, "commit", false, "commit after ingesting")
	fs.StringVar(&c.message, "m", "", "commit message")
	fs.StringVar(&c.message, "message", "", "alias for -m")
	fs.StringVar(&c.author, "author", "", "commit author")
}

func (c *Command) Run(ctx *command.Context) error {
	if len(ctx.Args) < 2 {
		return fmt.Errorf("usage: sbvc %s", c.Usage())
	}
	project, bundle := ctx.Args[0], ctx.Args[1]

	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}
	t, err := svc.IngestFile(project, bundle)
	if err != nil {
		return err
	}
	ix, err := t.Index()
	if err != nil {
		return err
	}
	switch p, err := t.Project(); {
	case errors.Is(err, errs.ErrUnsupportedFormat):
		fmt.Fprintf(ctx.Out, "Ingested %s into %s: unsupported manifest kept as is, %d asset(s)\n",
			bundle, project, len(ix.Assets))
	case err != nil:
		return err
	default:
		fmt.Fprintf(ctx.Out, "Ingested %s into %s: %d target(s), %d asset(s)\n",
			bundle, project, len(p.TargetNames()), len(ix.Assets))
	}

	if !c.commit {
		return nil
	}
	rev, err := svc.CommitWorking(project, c.message, c.author)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Committed %s\n", rev.ID)
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
