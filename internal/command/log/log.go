package log

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
	"github.com/keshon/sbvc/internal/repo"
)

type Command struct {
	oneline bool
	asJSON  bool
	limit   int
	since   string
	until   string
}

func (c *Command) Name() string      { return "log" }
func (c *Command) Short() string     { return "L" }
func (c *Command) Aliases() []string { return []string{"commits"} }
func (c *Command) Usage() string     { return "log [options] <project>" }
func (c *Command) Brief() string     { return "Show revision history, newest first" }
func (c *Command) Help() string {
	return `Show the project's revisions, newest first.

Options:
      --oneline         Show each revision as a single line (ID + message).
      --json            Print revisions as JSON.
  -n <count>            Limit to the last N revisions.
      --since <date>    Show revisions after the given date (YYYY-MM-DD).
      --until <date>    Show revisions before the given date (YYYY-MM-DD).

Examples:
  sbvc log game
  sbvc log --oneline -n 10 game`
}

func (c *Command) Subcommands() []command.Command {
	return nil
}
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.oneline, "oneline", false, "show each revision on one line")
	fs.BoolVar(&c.asJSON, "json", false, "print JSON")
	fs.IntVar(&c.limit, "n", 0, "limit number of revisions")
	fs.StringVar(&c.since, "since", "", "show revisions after date YYYY-MM-DD")
	fs.StringVar(&c.until, "until", "", "show revisions before date YYYY-MM-DD")
}

func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}

func (c *Command) Run(ctx *command.Context) error {
	project, err := ctx.Project()
	if err != nil {
		return err
	}
	since, err := parseDate("since", c.since)
	if err != nil {
		return err
	}
	until, err := parseDate("until", c.until)
	if err != nil {
		return err
	}

	svc, err := ctx.Env.Service()
	if err != nil {
		return err
	}
	all, err := svc.Log(project)
	if err != nil {
		return err
	}

	revs := make([]repo.Revision, 0, len(all))
	for _, rev := range all {
		t := rev.Time()
		if !since.IsZero() && t.Before(since) {
			continue
		}
		if !until.IsZero() && t.After(until) {
			continue
		}
		revs = append(revs, rev)
	}
	if c.limit > 0 && c.limit < len(revs) {
		revs = revs[:c.limit]
	}

	if c.asJSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(revs)
	}

	if len(revs) == 0 {
		fmt.Fprintln(ctx.Out, "No revisions found")
		return nil
	}

	if c.oneline {
		for _, rev := range revs {
			firstLine := strings.SplitN(rev.Message, "\n", 2)[0]
			fmt.Fprintf(ctx.Out, "%s %s\n", rev.ID[:7], firstLine)
		}
		return nil
	}

	for _, rev := range revs {
		fmt.Fprintf(ctx.Out, "\033[90mRevision:\033[0m %s\n", rev.ID)
		if len(rev.Parents) > 0 {
			fmt.Fprintf(ctx.Out, "\033[90mParent:\033[0m   %s\n", strings.Join(rev.Parents, " "))
		}
		fmt.Fprintf(ctx.Out, "\033[90mAuthor:\033[0m   %s <%s>\n", rev.Author, rev.Email)
		fmt.Fprintf(ctx.Out, "\033[90mDate:\033[0m     %s\n\n", rev.Time().Format("Mon Jan 2 15:04:05 2006"))

		for _, line := range strings.Split(rev.Message, "\n") {
			if strings.TrimSpace(line) == "" {
				fmt.Fprintln(ctx.Out)
			} else {
				fmt.Fprintf(ctx.Out, "    %s\n", line)
			}
		}
		fmt.Fprintln(ctx.Out)
	}
	fmt.Fprintf(ctx.Out, "Total revisions: %d\n", len(revs))
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
