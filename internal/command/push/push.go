package push

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	remote  string
	token   string
	timeout time.Duration
}

func (c *Command) Name() string      { return "push" }
func (c *Command) Short() string     { return "P" }
func (c *Command) Aliases() []string { return []string{"publish"} }
func (c *Command) Usage() string     { return "push [--remote <url>] [--token <token>] <project>" }
func (c *Command) Brief() string     { return "Publish history to a remote git repository" }
func (c *Command) Help() string {
	return `Push the project's history to a git remote. An explicit --remote is
remembered for later pushes and pulls. The token defaults to
SBVC_REMOTE_TOKEN and is never stored.

Options:
      --remote=<url>      Remote repository url.
      --token=<token>     Access token for http(s) remotes.
      --timeout=<dur>     Give up after this long (default 2m).`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.remote, "remote", "", "remote url")
	fs.StringVar(&c.token, "token", "", "access token")
	fs.DurationVar(&c.timeout, "timeout", 2*time.Minute, "network timeout")
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

	std, cancel := context.WithTimeout(ctx.Std, c.timeout)
	defer cancel()
	if err := svc.Push(std, project, c.remote, c.token); err != nil {
		return err
	}
	head, err := svc.Head(project)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Pushed %s at %s\n", project, head[:7])
	return nil
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithDebugArgsPrint(),
			middleware.WithAssetIntegrityCheck(),
		),
	)
}
