package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/adapter"
	"github.com/m-mizutani/aiguide/pkg/usecase/ingest"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg          config
		bqQuery      string
		bqProject    string
		bqLocation   string
		imageBaseURL string
		maxScanBytes int64
		dryRun       bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-query",
			Usage:       "Load rows from the result of a BigQuery query instead of a CSV",
			Sources:     cli.EnvVars("AIGUIDE_BIGQUERY_QUERY"),
			Destination: &bqQuery,
		},
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "Project that runs the BigQuery job, defaults to --project",
			Sources:     cli.EnvVars("AIGUIDE_BIGQUERY_PROJECT"),
			Destination: &bqProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-location",
			Usage:       "BigQuery job location",
			Sources:     cli.EnvVars("AIGUIDE_BIGQUERY_LOCATION"),
			Destination: &bqLocation,
		},
		&cli.IntFlag{
			Name:        "max-scan-bytes",
			Usage:       "Refuse BigQuery queries that would scan more bytes, 0 for unlimited",
			Value:       1 << 30,
			Sources:     cli.EnvVars("AIGUIDE_MAX_SCAN_BYTES"),
			Destination: &maxScanBytes,
		},
		&cli.StringFlag{
			Name:        "image-base-url",
			Usage:       "Rewrite restaurant images to <base>/<unique id>.png",
			Sources:     cli.EnvVars("AIGUIDE_IMAGE_BASE_URL"),
			Destination: &imageBaseURL,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Validate rows without embedding or writing them",
			Destination: &dryRun,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ingest",
		Usage:     "Load a restaurant dataset into the vector store",
		ArgsUsage: "[<csv path or gs://bucket/object>]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.close()

			path := c.Args().First()
			if path == "" && bqQuery == "" {
				return goerr.New("CSV path or bigquery-query is required")
			}
			if path != "" && bqQuery != "" {
				return goerr.New("CSV path and bigquery-query are exclusive")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}

			opts := []ingest.Option{
				ingest.WithImageBaseURL(imageBaseURL),
				ingest.WithMaxScanBytes(maxScanBytes),
				ingest.WithDryRun(dryRun),
			}

			if strings.HasPrefix(path, "gs://") {
				storage, err := cfg.newStorage(ctx)
				if err != nil {
					return err
				}
				opts = append(opts, ingest.WithStorage(storage))
			}

			if bqQuery != "" {
				project := bqProject
				if project == "" {
					project = cfg.project
				}
				if project == "" {
					return goerr.New("bigquery-project or project is required")
				}

				var bqOpts []adapter.BigQueryOption
				if bqLocation != "" {
					bqOpts = append(bqOpts, adapter.WithBigQueryLocation(bqLocation))
				}
				bq, err := adapter.NewBigQuery(ctx, project, bqOpts...)
				if err != nil {
					return err
				}
				defer bq.Close()
				opts = append(opts, ingest.WithBigQuery(bq))
			}

			uc := ingest.New(embedder, repo, opts...)

			var report *ingest.Report
			if bqQuery != "" {
				report, err = uc.ImportQuery(ctx, bqQuery)
			} else {
				report, err = uc.ImportCSV(ctx, path)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "total: %d, inserted: %d, skipped: %d, failed: %d\n",
				report.Total, report.Inserted, report.Skipped, report.Failed)
			return nil
		},
	}
}
