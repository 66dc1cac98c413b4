package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env is optional; values already in the environment take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Code: 1, Message: "failed to load .env: " + err.Error()}
	}

	var logCfg logConfig
	cmd := &cli.Command{
		Name:   "aiguide",
		Usage:  "Restaurant recommendation assistant backed by vector search and an LLM",
		Flags:  logFlags(&logCfg),
		Before: logCfg.setup,
		After: func(ctx context.Context, c *cli.Command) error {
			logCfg.close()
			return nil
		},
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			ingestCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

type logConfig struct {
	level  string
	format string
	output string

	closer func()
}

func logFlags(cfg *logConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("AIGUIDE_LOG_LEVEL"),
			Destination: &cfg.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("AIGUIDE_LOG_FORMAT"),
			Destination: &cfg.format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Usage:       "Log destination (stderr, stdout or a file path)",
			Value:       "stderr",
			Sources:     cli.EnvVars("AIGUIDE_LOG_OUTPUT"),
			Destination: &cfg.output,
		},
	}
}

func (cfg *logConfig) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	format, err := logging.ParseFormat(cfg.format)
	if err != nil {
		return ctx, err
	}

	w, closer, err := logging.OpenOutput(cfg.output)
	if err != nil {
		return ctx, goerr.Wrap(err, "failed to set up logging")
	}
	cfg.closer = closer

	logger := logging.New(cfg.level, format, w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

func (cfg *logConfig) close() {
	if cfg.closer != nil {
		cfg.closer()
	}
}
