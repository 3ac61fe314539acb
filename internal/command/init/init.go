package init

import (
	"flag"
	"fmt"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	quiet  bool
	remote string
	author string
	email  string
}

func (c *Command) Name() string      { return "init" }
func (c *Command) Short() string     { return "i" }
func (c *Command) Aliases() []string { return []string{"initialize"} }
func (c *Command) Usage() string     { return "init [options] <project>" }
func (c *Command) Brief() string     { return "Initialize project history" }
func (c *Command) Help() string {
	return `Create the history of a project under the projects root. Running it
again on an existing project changes nothing.

Options:
  -q, --quiet           Suppress normal output.
      --remote=<url>    Remember a default remote for push and pull.
      --author=<name>   Remember a default author name.
      --email=<email>   Remember a default author email.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.quiet, "quiet", false, "suppress output")
	fs.BoolVar(&c.quiet, "q", false, "alias for --quiet")
	fs.StringVar(&c.remote, "remote", "", "default remote url")
	fs.StringVar(&c.author, "author", "", "default author name")
	fs.StringVar(&c.email, "email", "", "default author email")
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

	existed := svc.Exists(project)
	if err := svc.Init(project); err != nil {
		return err
	}

	if c.remote != "" || c.author != "" || c.email != "" {
		st, err := svc.Settings(project)
		if err != nil {
			return err
		}
		if c.remote != "" {
			st.Remote = c.remote
		}
		if c.author != "" {
			st.Author = c.author
		}
		if c.email != "" {
			st.Email = c.email
		}
		if err := svc.SaveSettings(project, st); err != nil {
			return err
		}
	}

	if c.quiet {
		return nil
	}
	if existed {
		fmt.Fprintf(ctx.Out, "Reinitialized existing project %s in %s\n", project, svc.Repo().ProjectDir(project))
		return nil
	}
	fmt.Fprintf(ctx.Out, "Initialized empty project %s in %s (branch %s)\n", project, svc.Repo().ProjectDir(project), config.DefaultBranch)
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
