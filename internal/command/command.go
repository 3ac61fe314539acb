package command

import (
	"context"
	"flag"
	"io"
)

// Command represents a cli command
type Command interface {
	Name() string
	Short() string
	Aliases() []string
	Usage() string
	Brief() string
	Help() string
	Subcommands() []Command
	Flags(fs *flag.FlagSet)
	Run(ctx *Context) error
}

// Context represents a cli context
type Context struct {
	Args  []string
	Flags *flag.FlagSet
	Std   context.Context
	Out   io.Writer
	Env   *Env
}

// Project returns the first positional argument, the project id every
// project command takes.
func (c *Context) Project() (string, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return "", errMissingProject
	}
	return c.Args[0], nil
}
