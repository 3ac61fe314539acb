package status

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	short     bool
	porcelain bool
	quiet     bool
}

func (c *Command) Name() string      { return "status" }
func (c *Command) Short() string     { return "S" }
func (c *Command) Aliases() []string { return []string{"st"} }
func (c *Command) Usage() string     { return "status [options] <project>" }
func (c *Command) Brief() string     { return "Show working tree status against head" }

func (c *Command) Help() string {
	return `Show whether the working tree differs from head, and where.

Options:
  -s, --short       Show a one-line summary.
      --porcelain   Machine-readable JSON output.
  -q, --quiet       Suppress output; the exit status still reports errors.
`
}

func (c *Command) Subcommands() []command.Command { return nil }

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.short, "short", false, "show short summary")
	fs.BoolVar(&c.short, "s", false, "alias for --short")
	fs.BoolVar(&c.porcelain, "porcelain", false, "machine-readable output")
	fs.BoolVar(&c.quiet, "quiet", false, "suppress output")
	fs.BoolVar(&c.quiet, "q", false, "alias for --quiet")
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
	st, err := svc.Status(project)
	if err != nil {
		return err
	}

	switch {
	case c.quiet:
		return nil
	case c.porcelain:
		return json.NewEncoder(ctx.Out).Encode(st)
	case c.short:
		fmt.Fprintf(ctx.Out, "%s %s\n", shortState(st.HasWorking, st.Clean), project)
		return nil
	}

	head := st.Head
	if head == "" {
		fmt.Fprintln(ctx.Out, "No revisions yet")
	} else {
		fmt.Fprintf(ctx.Out, "On revision %s\n", head[:7])
	}
	if !st.HasWorking {
		fmt.Fprintln(ctx.Out, "No working tree (ingest or checkout first)")
		return nil
	}
	if st.Clean {
		fmt.Fprintln(ctx.Out, "nothing to commit, working tree clean")
		return nil
	}

	fmt.Fprintln(ctx.Out, "Changes not committed:")
	for _, name := range st.Targets {
		fmt.Fprintf(ctx.Out, "  \033[31mmodified target:\033[0m %s\n", name)
	}
	if st.Assets > 0 {
		fmt.Fprintf(ctx.Out, "  \033[31massets:\033[0m %d added or removed\n", st.Assets)
	}
	if st.Text > 0 {
		fmt.Fprintf(ctx.Out, "  \033[31mother:\033[0m %d text section(s) changed\n", st.Text)
	}
	fmt.Fprintf(ctx.Out, "\n(use \"sbvc diff %s\" to see the changes)\n", project)
	return nil
}

// shortState renders the two-letter state used by --short.
func shortState(hasWorking, clean bool) string {
	switch {
	case !hasWorking:
		return "--"
	case clean:
		return "  "
	}
	return " M"
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithDebugArgsPrint(),
		),
	)
}
