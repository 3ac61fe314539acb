package pull

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

func (c *Command) Name() string      { return "pull" }
func (c *Command) Short() string     { return "F" }
func (c *Command) Aliases() []string { return []string{"fetch"} }
func (c *Command) Usage() string     { return "pull [--remote <url>] [--token <token>] <project>" }
func (c *Command) Brief() string     { return "Fast-forward history from a remote git repository" }
func (c *Command) Help() string {
	return `Fetch the remote history and fast-forward the project to it. Diverged
histories are rejected. A working tree without local changes follows the
new head; one with local changes is left untouched.

Options:
      --remote=<url>      Remote repository url (remembered).
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
	res, err := svc.Pull(std, project, c.remote, c.token)
	if err != nil {
		return err
	}
	if !res.Updated {
		fmt.Fprintln(ctx.Out, "Already up to date.")
		return nil
	}
	fmt.Fprintf(ctx.Out, "Fast-forwarded %s to %s\n", project, res.Head[:7])
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
