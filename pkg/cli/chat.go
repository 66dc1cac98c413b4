package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// lineReader reads one line per turn. It returns io.EOF when input ends.
type lineReader interface {
	Readline() (string, error)
}

type querier interface {
	HandleQuery(ctx context.Context, query string, k int) (*query.Answer, error)
}

func chatCommand() *cli.Command {
	var (
		cfg config
		k   int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "k",
			Usage:       "Number of restaurants to retrieve per turn, 0 for the configured default",
			Sources:     cli.EnvVars("AIGUIDE_TOP_K"),
			Destination: &k,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive restaurant recommendation session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			uc, err := cfg.newQuery(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			return runChat(ctx, rl, c.Root().Writer, uc, int(k), true)
		},
	}
}

// runChat is the interactive loop. "exit" (any case) or end of input ends the session, empty
// lines are ignored and anything else is answered as a query.
func runChat(ctx context.Context, r lineReader, w io.Writer, uc querier, k int, withSpinner bool) error {
	fmt.Fprintf(w, "Ask me where to eat. Type 'exit' to quit.\n")

	for {
		line, err := r.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		message := strings.TrimSpace(line)
		if message == "" {
			continue
		}
		if strings.EqualFold(message, "exit") {
			break
		}

		var sp *spinner.Spinner
		if withSpinner {
			sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
			sp.Suffix = " thinking..."
			sp.Start()
		}

		answer, err := uc.HandleQuery(ctx, message, k)

		if sp != nil {
			sp.Stop()
		}

		if err != nil {
			if errors.Is(err, query.ErrInvalidQuery) {
				fmt.Fprintf(w, "Invalid request: %v\n", err)
				continue
			}
			return err
		}

		printAnswer(w, answer)
	}

	fmt.Fprintf(w, "\nBye!\n")
	return nil
}

func printAnswer(w io.Writer, answer *query.Answer) {
	fmt.Fprintf(w, "%s\n", answer.Response)
	if len(answer.Images) > 0 {
		fmt.Fprintf(w, "\nImages:\n")
		for _, img := range answer.Images {
			fmt.Fprintf(w, "  %s\n", img)
		}
	}
	fmt.Fprintln(w)
}
