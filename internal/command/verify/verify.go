package verify

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/content"
	"github.com/keshon/sbvc/internal/middleware"
	"github.com/keshon/sbvc/internal/progress"
	"github.com/keshon/sbvc/internal/service"
)

type Command struct {
	asJSON bool
	quiet  bool
}

func (c *Command) Name() string      { return "verify" }
func (c *Command) Short() string     { return "V" }
func (c *Command) Aliases() []string { return []string{"scan", "check"} }
func (c *Command) Usage() string     { return "verify [--json] [-q] <project>" }
func (c *Command) Brief() string     { return "Verify working tree asset integrity" }
func (c *Command) Help() string {
	return `Re-hash every asset of the project's working tree and report missing or
damaged ones. Fails when any asset is not intact.

Options:
      --json    Print every asset status as JSON.
  -q, --quiet   Only report problems.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.asJSON, "json", false, "print JSON")
	fs.BoolVar(&c.quiet, "quiet", false, "only report problems")
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

	var statuses []service.AssetStatus
	if c.asJSON || c.quiet {
		statuses, err = svc.Verify(project)
	} else {
		statuses, err = c.verifyWithProgress(ctx, svc, project)
	}
	if err != nil {
		return err
	}

	bad := service.Damaged(statuses)
	if c.asJSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statuses); err != nil {
			return err
		}
	} else {
		for _, st := range bad {
			color := "\033[31m"
			if st.Status == content.Damaged.String() {
				color = "\033[33m"
			}
			fmt.Fprintf(ctx.Out, "%s%-8s\033[0m %s (%s)\n", color, st.Status, st.Name, st.ID)
		}
		if !c.quiet {
			fmt.Fprintf(ctx.Out, "%d asset(s), %d ok, %d missing or damaged\n",
				len(statuses), len(statuses)-len(bad), len(bad))
		}
	}

	if len(bad) > 0 {
		return fmt.Errorf("%d asset(s) of %s failed verification", len(bad), project)
	}
	return nil
}

func (c *Command) verifyWithProgress(ctx *command.Context, svc *service.Service, project string) ([]service.AssetStatus, error) {
	t, err := svc.Working(project)
	if err != nil {
		return nil, err
	}
	ix, err := t.Index()
	if err != nil {
		return nil, err
	}
	p := progress.New(ctx.Out, len(ix.Assets), "Verifying assets", "assets")
	statuses, err := svc.VerifyFunc(project, func(service.AssetStatus) { p.Increment() })
	p.Finish()
	return statuses, err
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithDebugArgsPrint(),
		),
	)
}
