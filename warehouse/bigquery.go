// Package warehouse implements the BigQuery side of the load trigger.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/trigger"
)

// BigQuery submits load jobs and audit rows against one project.
type BigQuery struct {
	client  *bigquery.Client
	project string
}

// New opens a BigQuery client for the project. credentialsFile is optional.
func New(ctx context.Context, project, credentialsFile string) (*BigQuery, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQuery{client: client, project: project}, nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// DatasetLocation looks up where the dataset lives so load jobs run in the
// same region.
func (b *BigQuery) DatasetLocation(ctx context.Context, dataset string) (string, error) {
	md, err := b.client.DatasetInProject(b.project, dataset).Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("dataset %s metadata: %w", dataset, err)
	}
	return md.Location, nil
}

// Load runs one load job to completion and returns the rows it appended.
// A job id collision means the event was already handled and surfaces as
// trigger.ErrDuplicateJob.
func (b *BigQuery) Load(ctx context.Context, job trigger.LoadJob) (int64, error) {
	gcsRef := bigquery.NewGCSReference(job.SourceURI)
	gcsRef.AutoDetect = true

	switch job.Format {
	case trigger.FormatParquet:
		gcsRef.SourceFormat = bigquery.Parquet
	case trigger.FormatJSON:
		gcsRef.SourceFormat = bigquery.JSON
	case trigger.FormatCSV:
		gcsRef.SourceFormat = bigquery.CSV
		gcsRef.SkipLeadingRows = job.CSV.SkipLeadingRows
		gcsRef.FieldDelimiter = job.CSV.FieldDelimiter
		gcsRef.AllowJaggedRows = true
		gcsRef.AllowQuotedNewlines = true
		gcsRef.Encoding = bigquery.UTF_8
	default:
		return 0, fmt.Errorf("unsupported source format %q", job.Format)
	}

	loader := b.client.DatasetInProject(b.project, job.Dataset).Table(job.TableID).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.TableWriteDisposition(job.WriteDisposition)
	loader.JobID = job.JobID
	loader.Location = job.Location

	bqJob, err := loader.Run(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 409 {
			return 0, trigger.ErrDuplicateJob
		}
		return 0, fmt.Errorf("submit load job: %w", err)
	}

	status, err := bqJob.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("load job failed: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		return stats.OutputRows, nil
	}
	return 0, nil
}

// auditRow matches the audit table schema.
type auditRow struct {
	Timestamp time.Time `bigquery:"ts"`
	URI       string    `bigquery:"gcs_uri"`
	Table     string    `bigquery:"bq_table"`
	Rows      int64     `bigquery:"rows"`
	Status    string    `bigquery:"status"`
	Format    string    `bigquery:"format"`
	Error     string    `bigquery:"error"`
}

// InsertAudit streams one row into the audit table, given as "dataset.table".
func (b *BigQuery) InsertAudit(ctx context.Context, table string, row trigger.AuditRow) error {
	dataset, name, ok := strings.Cut(table, ".")
	if !ok {
		return fmt.Errorf("audit table %q must be qualified as dataset.table", table)
	}
	ins := b.client.Dataset(dataset).Table(name).Inserter()
	ins.SkipInvalidRows = true

	return ins.Put(ctx, auditRow{
		Timestamp: row.Timestamp,
		URI:       row.URI,
		Table:     row.Table,
		Rows:      row.Rows,
		Status:    row.Status,
		Format:    row.Format,
		Error:     row.Error,
	})
}
