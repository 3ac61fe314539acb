package diff

import (
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/diff"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	asJSON bool
	stat   bool
}

func (c *Command) Name() string      { return "diff" }
func (c *Command) Short() string     { return "D" }
func (c *Command) Aliases() []string { return []string{"changes"} }
func (c *Command) Usage() string     { return "diff [--json|--stat] <project> [<from> [<to>]]" }
func (c *Command) Brief() string     { return "Show semantic changes between two trees" }
func (c *Command) Help() string {
	return `Compare two sides of a project at the level of targets, blocks, scripts,
variables, monitors and assets. Each side is "working", "head" or a
revision id (or unique prefix). Defaults compare head with the working tree.

Options:
      --json    Print the full change report as JSON.
      --stat    Print change counts per section only.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.asJSON, "json", false, "print JSON report")
	fs.BoolVar(&c.stat, "stat", false, "print counts per section")
}

func (c *Command) Run(ctx *command.Context) error {
	project, err := ctx.Project()
	if err != nil {
		return err
	}
	from, to := config.HeadRef, config.WorkingRef
	if len(ctx.Args) > 1 {
		from = ctx.Args[1]
	}
	if len(ctx.Args) > 2 {
		to = ctx.Args[2]
	}

	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}
	r, err := svc.Diff(project, from, to)
	if err != nil {
		return err
	}

	switch {
	case c.asJSON:
		data, err := r.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.Out, string(data))
	case c.stat:
		counts := r.Counts()
		for _, section := range diff.Sections {
			if n := counts[section]; n > 0 {
				fmt.Fprintf(ctx.Out, "%-12s %d\n", section, n)
			}
		}
	default:
		fmt.Fprint(ctx.Out, diff.Render(r))
	}
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
