package projects

import (
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	long bool
}

func (c *Command) Name() string      { return "projects" }
func (c *Command) Short() string     { return "" }
func (c *Command) Aliases() []string { return []string{"ls", "list"} }
func (c *Command) Usage() string     { return "projects [-l]" }
func (c *Command) Brief() string     { return "List projects under the projects root" }
func (c *Command) Help() string {
	return `List every initialized project under the projects root.

Options:
  -l   Also show each project's head revision.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.long, "l", false, "show head revisions")
}

func (c *Command) Run(ctx *command.Context) error {
	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}
	list, err := svc.Projects()
	if err != nil {
		return err
	}
	for _, project := range list {
		if !c.long {
			fmt.Fprintln(ctx.Out, project)
			continue
		}
		head, err := svc.Head(project)
		if err != nil {
			return err
		}
		if head == "" {
			head = "-------"
		}
		fmt.Fprintf(ctx.Out, "%s %s\n", head[:7], project)
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
