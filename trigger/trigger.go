// Package trigger reacts to Cloud Storage object-finalize events by
// submitting BigQuery load jobs and recording every decision in an audit
// table.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/upload"
)

// ErrDuplicateJob reports that a load job with the same id already exists,
// meaning this event was already handled.
var ErrDuplicateJob = errors.New("load job already exists")

// StorageEvent is the object-finalize notification payload.
type StorageEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Source formats accepted by the loader.
const (
	FormatParquet = "PARQUET"
	FormatJSON    = "NEWLINE_DELIMITED_JSON"
	FormatCSV     = "CSV"
)

// Audit statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusSkipped = "SKIPPED"
	StatusFailed  = "FAILED"
)

// CSVOptions tune CSV load jobs.
type CSVOptions struct {
	SkipLeadingRows int64
	FieldDelimiter  string
}

// LoadJob describes one BigQuery load submission.
type LoadJob struct {
	SourceURI        string
	Dataset          string
	TableID          string
	Format           string
	WriteDisposition string
	JobID            string
	Location         string
	CSV              CSVOptions
}

// AuditRow is one audit-table entry. Field lengths are bounded so a giant
// job error cannot blow the insert.
type AuditRow struct {
	Timestamp time.Time
	URI       string
	Table     string
	Rows      int64
	Status    string
	Format    string
	Error     string
}

// Warehouse is the destination the handler loads into.
type Warehouse interface {
	DatasetLocation(ctx context.Context, dataset string) (string, error)
	Load(ctx context.Context, job LoadJob) (int64, error)
	InsertAudit(ctx context.Context, table string, row AuditRow) error
}

// Config holds load-trigger settings, usually populated from the environment.
type Config struct {
	Dataset          string
	AllowedPrefix    string
	DefaultFormat    string
	WriteDisposition string
	AuditTable       string
	TableNamingMode  string
	CSV              CSVOptions
}

// Result is what the handler decided for one event.
type Result struct {
	Status string
	Reason string
	Table  string
	Format string
	JobID  string
	Rows   int64
}

// Handler turns storage events into load jobs.
type Handler struct {
	wh      Warehouse
	cfg     Config
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
}

// NewHandler wires an event handler.
func NewHandler(wh Warehouse, cfg Config, logger *logging.ComponentLogger, m *metrics.Metrics) *Handler {
	return &Handler{wh: wh, cfg: cfg, logger: logger, metrics: m}
}

// Handle processes one object-finalize event end to end: gate on prefix,
// classify format, derive the table name, submit an idempotent load job, and
// audit the outcome. Audit failures are logged and swallowed so the load
// outcome is never masked by bookkeeping.
func (h *Handler) Handle(ctx context.Context, ev StorageEvent) Result {
	uri := fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Name)

	// Objects outside the prefix are unrelated uploads; they are logged but
	// kept out of the audit table.
	if h.cfg.AllowedPrefix != "" && !strings.HasPrefix(ev.Name, h.cfg.AllowedPrefix) {
		h.logger.Info().Str("uri", uri).Str("prefix", h.cfg.AllowedPrefix).Msg("Ignoring object outside prefix")
		return Result{Status: StatusSkipped, Reason: fmt.Sprintf("object outside prefix %s", h.cfg.AllowedPrefix)}
	}
	if path.Base(ev.Name) == upload.ManifestName {
		res := Result{Status: StatusSkipped, Reason: "manifest object"}
		h.audit(ctx, uri, res)
		return res
	}

	format, ok := InferFormat(ev.Name, h.cfg.DefaultFormat)
	if !ok {
		res := Result{Status: StatusSkipped, Reason: fmt.Sprintf("unsupported file type: %s", path.Ext(ev.Name))}
		h.audit(ctx, uri, res)
		return res
	}
	// When the pipeline expects parquet, anything else inside the prefix is
	// not ours to load.
	if h.cfg.DefaultFormat == FormatParquet && format != FormatParquet {
		res := Result{Status: StatusSkipped, Reason: fmt.Sprintf("%s object while expecting PARQUET", format), Format: format}
		h.audit(ctx, uri, res)
		return res
	}

	table, ok := TableName(ev.Name, h.cfg.AllowedPrefix, h.cfg.TableNamingMode)
	if !ok {
		res := Result{Status: StatusSkipped, Reason: "cannot derive table name from object path", Format: format}
		h.audit(ctx, uri, res)
		return res
	}
	jobID := StableJobID(uri, table)

	location, err := h.wh.DatasetLocation(ctx, h.cfg.Dataset)
	if err != nil {
		res := Result{Status: StatusFailed, Reason: fmt.Sprintf("resolve dataset location: %v", err), Table: table, Format: format, JobID: jobID}
		h.metrics.RecordLoadJob("failed")
		h.audit(ctx, uri, res)
		return res
	}

	job := LoadJob{
		SourceURI:        uri,
		Dataset:          h.cfg.Dataset,
		TableID:          table,
		Format:           format,
		WriteDisposition: h.cfg.WriteDisposition,
		JobID:            jobID,
		Location:         location,
		CSV:              h.cfg.CSV,
	}

	h.logger.Info().Str("uri", uri).Str("table", table).Str("format", format).Str("job_id", jobID).Msg("Submitting load job")

	rows, err := h.wh.Load(ctx, job)
	switch {
	case errors.Is(err, ErrDuplicateJob):
		res := Result{Status: StatusSkipped, Reason: "duplicate job", Table: table, Format: format, JobID: jobID}
		h.metrics.RecordLoadJob("duplicate")
		h.audit(ctx, uri, res)
		return res
	case err != nil:
		res := Result{Status: StatusFailed, Reason: err.Error(), Table: table, Format: format, JobID: jobID}
		h.metrics.RecordLoadJob("failed")
		h.audit(ctx, uri, res)
		return res
	}

	res := Result{Status: StatusSuccess, Table: table, Format: format, JobID: jobID, Rows: rows}
	h.metrics.RecordLoadJob("success")
	h.logger.Info().Str("table", table).Int64("rows", rows).Msg("Load job completed")
	h.audit(ctx, uri, res)
	return res
}

const maxAuditErrorLen = 1500

// audit writes one best-effort audit row.
func (h *Handler) audit(ctx context.Context, uri string, res Result) {
	if h.cfg.AuditTable == "" {
		return
	}
	errMsg := res.Reason
	if res.Status == StatusSuccess {
		errMsg = ""
	}
	if len(errMsg) > maxAuditErrorLen {
		errMsg = errMsg[:maxAuditErrorLen]
	}
	row := AuditRow{
		Timestamp: time.Now().UTC(),
		URI:       uri,
		Table:     res.Table,
		Rows:      res.Rows,
		Status:    res.Status,
		Format:    res.Format,
		Error:     errMsg,
	}
	if err := h.wh.InsertAudit(ctx, h.cfg.AuditTable, row); err != nil {
		h.logger.Warn().Err(err).Str("uri", uri).Msg("Audit insert failed")
	}
}

// InferFormat classifies an object by extension. Unknown extensions fall back
// to the configured default, except when the default is PARQUET: a parquet
// load against an arbitrary file fails loudly downstream, so it is skipped
// here instead.
func InferFormat(name, defaultFormat string) (string, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".parquet":
		return FormatParquet, true
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, true
	case ".csv":
		return FormatCSV, true
	default:
		if defaultFormat != "" && defaultFormat != FormatParquet {
			return defaultFormat, true
		}
		return "", false
	}
}

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// TableName derives the destination table from the object path. In
// "subfolder" mode the first path segment below the prefix names the table
// when one exists; otherwise, and in "filename" mode, the file name without
// its extension is used. Characters BigQuery rejects become underscores.
// The bool is false when no name can be derived, e.g. an object name that is
// nothing but the prefix.
func TableName(objectName, prefix, mode string) (string, bool) {
	rel := strings.TrimPrefix(objectName, prefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", false
	}

	var raw string
	if mode != "filename" {
		if idx := strings.Index(rel, "/"); idx > 0 {
			raw = rel[:idx]
		}
	}
	if raw == "" {
		base := path.Base(rel)
		raw = strings.TrimSuffix(base, path.Ext(base))
	}

	table := tableNameSanitizer.ReplaceAllString(raw, "_")
	if table == "" {
		return "", false
	}
	return table, true
}

// StableJobID derives a deterministic job id from the object URI and target
// table so retried deliveries of the same event collapse into one job.
func StableJobID(uri, table string) string {
	h := fnv.New64a()
	h.Write([]byte(uri + "|" + table))
	return fmt.Sprintf("gcs2bq_%d", h.Sum64())
}
