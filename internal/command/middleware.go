package command

// Middleware is a function that wraps a command
type Middleware func(Command) Command

// WrappedCommand represents a command wrapped with a middleware. Everything
// but Run is delegated to the inner command, flags included.
type WrappedCommand struct {
	Command
	Wrap func(ctx *Context) error
}

// Wrap builds a WrappedCommand that runs fn around cmd.
func Wrap(cmd Command, fn func(ctx *Context, next func(*Context) error) error) *WrappedCommand {
	return &WrappedCommand{
		Command: cmd,
		Wrap: func(ctx *Context) error {
			return fn(ctx, cmd.Run)
		},
	}
}

// Run executes the wrapped command
func (w *WrappedCommand) Run(ctx *Context) error {
	if w.Wrap != nil {
		return w.Wrap(ctx)
	}
	return w.Command.Run(ctx)
}

// ApplyMiddlewares wraps a command with any number of middlewares. The
// first middleware runs outermost.
func ApplyMiddlewares(cmd Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		cmd = mws[i](cmd)
	}
	return cmd
}
