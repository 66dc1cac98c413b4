package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/adapter"
	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const progressInterval = 100

// Report counts the outcome of one ingestion run
type Report struct {
	Total    int
	Inserted int
	Skipped  int
	Failed   int
}

// UseCase loads restaurant datasets into a vector store
type UseCase struct {
	embedder interfaces.Embedder
	store    interfaces.VectorStore
	storage  adapter.Storage
	bigquery adapter.BigQuery

	imageBaseURL string
	maxScanBytes int64
	dryRun       bool
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage enables gs:// sources
func WithStorage(s adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = s
	}
}

// WithBigQuery enables query sources
func WithBigQuery(bq adapter.BigQuery) Option {
	return func(uc *UseCase) {
		uc.bigquery = bq
	}
}

// WithImageBaseURL rewrites images to <base>/<unique id>.png
func WithImageBaseURL(base string) Option {
	return func(uc *UseCase) {
		uc.imageBaseURL = base
	}
}

// WithMaxScanBytes refuses BigQuery sources that would scan more than n bytes. 0 is unlimited.
func WithMaxScanBytes(n int64) Option {
	return func(uc *UseCase) {
		uc.maxScanBytes = n
	}
}

// WithDryRun validates rows without embedding or writing them. Valid rows count as skipped.
func WithDryRun(dryRun bool) Option {
	return func(uc *UseCase) {
		uc.dryRun = dryRun
	}
}

func New(embedder interfaces.Embedder, store interfaces.VectorStore, opts ...Option) *UseCase {
	uc := &UseCase{
		embedder: embedder,
		store:    store,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ImportCSV ingests a CSV file from a local path or a gs://bucket/object URL
func (uc *UseCase) ImportCSV(ctx context.Context, path string) (*Report, error) {
	var r io.ReadCloser
	if strings.HasPrefix(path, "gs://") {
		if uc.storage == nil {
			return nil, goerr.New("cloud storage is not configured", goerr.V("path", path))
		}
		obj, err := uc.storage.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		r = obj
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open dataset", goerr.V("path", path))
		}
		r = f
	}
	defer r.Close()

	rows, err := ReadCSV(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read dataset", goerr.V("path", path))
	}

	logging.From(ctx).Info("dataset loaded", "path", path, "rows", len(rows))
	return uc.ImportRows(ctx, rows), nil
}

// ImportQuery ingests the result rows of a BigQuery query
func (uc *UseCase) ImportQuery(ctx context.Context, query string) (*Report, error) {
	if uc.bigquery == nil {
		return nil, goerr.New("bigquery is not configured")
	}

	bytes, err := uc.bigquery.DryRun(ctx, query)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("bigquery dry run", "bytes", bytes)
	if uc.maxScanBytes > 0 && bytes > uc.maxScanBytes {
		return nil, goerr.New("query scans too much data",
			goerr.V("bytes", bytes), goerr.V("limit", uc.maxScanBytes))
	}

	values, err := uc.bigquery.QueryRows(ctx, query)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(values))
	for _, v := range values {
		raw := make(map[string]string, len(v))
		for col, cell := range v {
			if cell != nil {
				raw[col] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, NewRow(raw))
	}

	return uc.ImportRows(ctx, rows), nil
}

// ImportRows converts, embeds and upserts rows. A row that fails is counted and logged and
// does not stop the run. Unchanged records are skipped before embedding.
func (uc *UseCase) ImportRows(ctx context.Context, rows []Row) *Report {
	logger := logging.From(ctx)
	report := &Report{}

	for i, row := range rows {
		if ctx.Err() != nil {
			logger.Warn("ingestion interrupted", "error", ctx.Err(), "processed", i)
			break
		}
		report.Total++

		written, err := uc.importRow(ctx, i, row)
		switch {
		case err != nil:
			report.Failed++
			logger.Warn("failed to import row", "row", i, "error", err)
		case written:
			report.Inserted++
		default:
			report.Skipped++
		}

		if (i+1)%progressInterval == 0 {
			logger.Info("ingestion progress", "processed", i+1, "of", len(rows))
		}
	}

	logger.Info("ingestion finished",
		"total", report.Total,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report
}

func (uc *UseCase) importRow(ctx context.Context, index int, row Row) (bool, error) {
	r, err := row.toRestaurant(index, uc.imageBaseURL)
	if err != nil {
		return false, err
	}
	if uc.dryRun {
		return false, nil
	}

	existing, err := uc.store.GetRestaurant(ctx, r.ID)
	switch {
	case err == nil && existing.Fingerprint() == r.Fingerprint():
		return false, nil
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return false, err
	}

	embedding, err := uc.embedder.Embed(ctx, r.Document())
	if err != nil {
		return false, goerr.Wrap(err, "failed to embed restaurant", goerr.V("id", r.ID), goerr.V("name", r.Name))
	}

	return uc.store.UpsertRestaurant(ctx, r, embedding)
}

// ReadCSV parses a CSV with a header line into rows
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read CSV header")
	}

	var rows []Row
	for n := 1; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read CSV record", goerr.V("record", n))
		}

		raw := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				raw[col] = record[i]
			}
		}
		rows = append(rows, NewRow(raw))
	}

	return rows, nil
}
