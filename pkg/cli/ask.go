package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg config
		k   int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "k",
			Usage:       "Number of restaurants to retrieve, 0 for the configured default",
			Sources:     cli.EnvVars("AIGUIDE_TOP_K"),
			Destination: &k,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single restaurant question",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			q := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(q) == "" {
				return goerr.New("query is required")
			}

			uc, err := cfg.newQuery(ctx)
			if err != nil {
				return err
			}

			answer, err := uc.HandleQuery(ctx, q, int(k))
			if err != nil {
				return err
			}

			printAnswer(c.Root().Writer, answer)
			return nil
		},
	}
}
