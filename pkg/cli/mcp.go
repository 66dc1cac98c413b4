package cli

import (
	"context"

	"github.com/m-mizutani/aiguide/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the recommend_restaurants tool over MCP stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			uc, err := cfg.newQuery(ctx)
			if err != nil {
				return err
			}

			return mcp.NewServer(uc).Run(ctx)
		},
	}
}
