package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

// RunCLI is the main entrypoint for executing commands.
// It resolves subcommands, parses flags and runs the target command.
func RunCLI(std context.Context, args []string, env *Env, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("no command provided")
	}

	node, remaining, err := ResolveCommand(args)
	if err != nil {
		return fmt.Errorf("%w: %s", err, args[0])
	}

	cmd := node.Cmd

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s\n\n%s\n", cmd.Usage(), cmd.Help())
	}
	cmd.Flags(fs)
	if err := fs.Parse(remaining); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parsing flags: %w", err)
	}

	ctx := &Context{
		Args:  fs.Args(),
		Flags: fs,
		Std:   std,
		Out:   out,
		Env:   env,
	}

	return cmd.Run(ctx)
}
