package commit

import (
	"flag"
	"fmt"
	"strings"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
)

type Command struct {
	messages messageList
	author   string
}

// messageList collects repeated -m flags, one paragraph each.
type messageList []string

func (m *messageList) String() string     { return strings.Join(*m, "\n\n") }
func (m *messageList) Set(v string) error { *m = append(*m, v); return nil }

func (c *Command) Name() string  { return "commit" }
func (c *Command) Short() string { return "C" }
func (c *Command) Brief() string { return "Record the working tree as a new revision" }
func (c *Command) Usage() string { return `commit -m "<message>" [--author "<name> <email>"] <project>` }
func (c *Command) Help() string {
	return `Record the project's working tree as the new head revision.

Committing a tree identical to head is refused with "nothing to commit".
An empty message is recorded as "Update project". Repeated -m flags are
joined as separate paragraphs.

Options:
  -m, --message=<msg>   Commit message.
      --author=<who>    Author as "Name <email>"; defaults to the project's
                        remembered author, then the committer.`
}
func (c *Command) Aliases() []string              { return []string{"ci"} }
func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	c.messages = nil
	fs.Var(&c.messages, "m", "commit message")
	fs.Var(&c.messages, "message", "alias for -m")
	fs.StringVar(&c.author, "author", "", "author")
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

	rev, err := svc.CommitWorking(project, c.messages.String(), c.author)
	if err != nil {
		return err
	}

	firstLine := strings.SplitN(rev.Message, "\n", 2)[0]
	fmt.Fprintf(ctx.Out, "[%s %s] %s\n", project, rev.ID[:7], firstLine)
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
