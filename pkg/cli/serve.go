package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/aiguide/pkg/service/mcp"
	"github.com/m-mizutani/aiguide/pkg/service/web"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address (host:port)",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("AIGUIDE_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve recommendations over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			uc, err := cfg.newQuery(ctx)
			if err != nil {
				return err
			}

			srv := web.New(uc,
				web.WithLogger(logging.From(ctx)),
				web.WithQueryTimeout(uc.GenerateTimeout()),
				web.WithHandler("/mcp", mcp.NewServer(uc).Handler()),
			)
			return srv.Serve(ctx, addr)
		},
	}
}
