package export

import (
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/fs"
	"github.com/keshon/sbvc/internal/middleware"
	"github.com/keshon/sbvc/internal/util"
)

type Command struct {
	output   string
	revision string
}

func (c *Command) Name() string      { return "export" }
func (c *Command) Short() string     { return "E" }
func (c *Command) Aliases() []string { return []string{"pack"} }
func (c *Command) Usage() string     { return "export [-o <file.sb3>] [--rev <revision>] <project>" }
func (c *Command) Brief() string     { return "Package a tree back into an .sb3 bundle" }
func (c *Command) Help() string {
	return `Package the working tree, or any revision, as an .sb3 bundle.

Options:
  -o, --output=<file>   Destination (default <project>.sb3).
      --rev=<revision>  "working" (default), "head" or a revision id.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.output, "o", "", "output file")
	fs.StringVar(&c.output, "output", "", "alias for -o")
	fs.StringVar(&c.revision, "rev", config.WorkingRef, "revision to export")
}

func (c *Command) Run(ctx *command.Context) error {
	project, err := ctx.Project()
	if err != nil {
		return err
	}
	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}

	var data []byte
	if c.revision == "" || c.revision == config.WorkingRef {
		data, err = svc.ExportProject(project)
	} else {
		t, rerr := svc.Read(project, c.revision)
		if rerr != nil {
			return rerr
		}
		data, err = svc.Export(t)
	}
	if err != nil {
		return err
	}

	out := c.output
	if out == "" {
		out = project + ".sb3"
	}
	if err := util.WriteAtomic(fs.NewOSFS(), out, data); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(ctx.Out, "Exported %s (%s) to %s, %d bytes\n", project, c.revision, out, len(data))
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
