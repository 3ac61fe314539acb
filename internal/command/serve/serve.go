package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/keshon/sbvc/internal/command"
	"github.com/keshon/sbvc/internal/middleware"
	"github.com/keshon/sbvc/internal/relay"
	"github.com/keshon/sbvc/internal/server"
)

type Command struct {
	relayAddr string
	httpAddr  string
}

func (c *Command) Name() string      { return "serve" }
func (c *Command) Short() string     { return "" }
func (c *Command) Aliases() []string { return []string{"daemon"} }
func (c *Command) Usage() string     { return "serve [--relay <addr>] [--http <addr>]" }
func (c *Command) Brief() string     { return "Run the editor relay and the HTTP endpoint" }
func (c *Command) Help() string {
	return `Serve the websocket relay used by the editor extension and the HTTP
endpoint (health, project diffs, metrics) until interrupted.

Options:
      --relay=<addr>   Relay listen address (default SBVC_RELAY_ADDR).
      --http=<addr>    HTTP listen address (default SBVC_HTTP_ADDR); "off"
                       disables it.`
}

func (c *Command) Subcommands() []command.Command { return nil }
func (c *Command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.relayAddr, "relay", "", "relay listen address")
	fs.StringVar(&c.httpAddr, "http", "", "http listen address")
}

func (c *Command) Run(ctx *command.Context) error {
	env := ctx.Env
	svc, err := env.Service()
	if err != nil {
		return err
	}

	relayAddr := orDefault(c.relayAddr, env.Config.RelayAddr)
	httpAddr := orDefault(c.httpAddr, env.Config.HTTPAddr)

	g, std := errgroup.WithContext(ctx.Std)

	rl := relay.New(svc, env.Logger, env.Config.Debug)
	g.Go(func() error {
		if err := rl.ListenAndServe(std, relayAddr); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	})

	if httpAddr != "off" {
		srv := server.New(httpAddr, svc, env.Metrics, env.Logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-std.Done()
			return srv.Shutdown()
		})
	}

	env.Logger.Info().Str("projects_root", env.Config.ProjectsRoot).Msg("serving")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func init() {
	command.RegisterCommand(
		command.ApplyMiddlewares(
			&Command{},
			middleware.WithDebugArgsPrint(),
		),
	)
}
