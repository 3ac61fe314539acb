package middleware

import (
	"flag"
	"strings"

	"github.com/keshon/sbvc/internal/command"
)

// WithDebugArgsPrint logs the parsed arguments of a command when debug is
// enabled. Secrets never reach the log.
func WithDebugArgsPrint() command.Middleware {
	return func(cmd command.Command) command.Command {
		return command.Wrap(cmd, func(ctx *command.Context, next func(*command.Context) error) error {
			if ctx.Env != nil && ctx.Env.Config != nil && ctx.Env.Config.Debug {
				ev := ctx.Env.Logger.Debug().Str("command", cmd.Name()).Strs("args", ctx.Args)
				if ctx.Flags != nil {
					ev = ev.Strs("flags", setFlags(ctx))
				}
				ev.Msg("run")
			}
			return next(ctx)
		})
	}
}

var secretFlags = map[string]bool{"token": true}

// setFlags renders every explicitly set flag as name=value.
func setFlags(ctx *command.Context) []string {
	var out []string
	ctx.Flags.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		if secretFlags[strings.ToLower(f.Name)] {
			v = "[redacted]"
		}
		out = append(out, f.Name+"="+v)
	})
	return out
}
