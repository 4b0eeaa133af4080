package trigger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// fakeWarehouse records submissions and audit rows and returns canned
// results.
type fakeWarehouse struct {
	location    string
	locationErr error
	loadRows    int64
	loadErr     error
	loaded      []LoadJob
	audits      []AuditRow
	auditErr    error
}

func (f *fakeWarehouse) DatasetLocation(ctx context.Context, dataset string) (string, error) {
	return f.location, f.locationErr
}

func (f *fakeWarehouse) Load(ctx context.Context, job LoadJob) (int64, error) {
	f.loaded = append(f.loaded, job)
	return f.loadRows, f.loadErr
}

func (f *fakeWarehouse) InsertAudit(ctx context.Context, table string, row AuditRow) error {
	f.audits = append(f.audits, row)
	return f.auditErr
}

func testHandler(wh *fakeWarehouse, cfg Config) *Handler {
	if cfg.AuditTable == "" {
		cfg.AuditTable = "ops.load_audit"
	}
	return NewHandler(wh, cfg, logging.NewComponentLogger("trigger-test", "test"), nil)
}

// TestHandler_PrefixGate verifies objects outside the allowed prefix are
// skipped without touching the warehouse; unrelated uploads stay out of the
// audit table.
func TestHandler_PrefixGate(t *testing.T) {
	wh := &fakeWarehouse{location: "EU"}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw"})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "other/file.parquet"})

	if res.Status != StatusSkipped {
		t.Fatalf("status = %s, want SKIPPED", res.Status)
	}
	if len(wh.loaded) != 0 {
		t.Error("load submitted for out-of-prefix object")
	}
	if len(wh.audits) != 0 {
		t.Errorf("audits = %+v, want none for out-of-prefix objects", wh.audits)
	}
}

// TestHandler_NonParquetSkippedWhenParquetExpected verifies that with the
// default format set to PARQUET, a recognized non-parquet object inside the
// prefix is skipped with an audit row and no job submission.
func TestHandler_NonParquetSkippedWhenParquetExpected(t *testing.T) {
	wh := &fakeWarehouse{location: "EU"}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatParquet})

	for _, name := range []string{"data_in_parquet/t/file.csv", "data_in_parquet/t/file.json"} {
		res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: name})
		if res.Status != StatusSkipped {
			t.Errorf("%s: status = %s, want SKIPPED", name, res.Status)
		}
	}
	if len(wh.loaded) != 0 {
		t.Errorf("loaded = %+v, want no jobs for non-parquet objects", wh.loaded)
	}
	if len(wh.audits) != 2 {
		t.Fatalf("audits = %d rows, want 2", len(wh.audits))
	}
	for _, row := range wh.audits {
		if row.Status != StatusSkipped {
			t.Errorf("audit status = %s, want SKIPPED", row.Status)
		}
	}
}

// TestHandler_CSVLoadedWhenCSVExpected verifies the non-parquet gate only
// applies when parquet is the expected format.
func TestHandler_CSVLoadedWhenCSVExpected(t *testing.T) {
	wh := &fakeWarehouse{location: "EU", loadRows: 5}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatCSV})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/t/file.csv"})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", res.Status)
	}
	if len(wh.loaded) != 1 || wh.loaded[0].Format != FormatCSV {
		t.Fatalf("loaded = %+v, want one CSV job", wh.loaded)
	}
}

// TestHandler_UnderivableTableSkipped verifies an object name that reduces to
// nothing after the prefix is skipped with an audit row instead of submitting
// a job with an empty table id.
func TestHandler_UnderivableTableSkipped(t *testing.T) {
	wh := &fakeWarehouse{location: "EU"}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatCSV})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/"})

	if res.Status != StatusSkipped {
		t.Fatalf("status = %s, want SKIPPED", res.Status)
	}
	if len(wh.loaded) != 0 {
		t.Errorf("loaded = %+v, want no jobs", wh.loaded)
	}
	if len(wh.audits) != 1 || wh.audits[0].Status != StatusSkipped {
		t.Errorf("audits = %+v, want one SKIPPED row", wh.audits)
	}
}

// TestHandler_ManifestSkipped verifies the manifest object never becomes a
// load job.
func TestHandler_ManifestSkipped(t *testing.T) {
	wh := &fakeWarehouse{location: "EU"}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw"})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/export_manifest.json"})

	if res.Status != StatusSkipped {
		t.Fatalf("status = %s, want SKIPPED", res.Status)
	}
	if len(wh.loaded) != 0 {
		t.Error("manifest was submitted as a load job")
	}
}

// TestHandler_SuccessfulLoad verifies a parquet object inside the prefix is
// loaded with a deterministic job id and audited as SUCCESS.
func TestHandler_SuccessfulLoad(t *testing.T) {
	wh := &fakeWarehouse{location: "EU", loadRows: 1234}
	h := testHandler(wh, Config{
		AllowedPrefix:    "data_in_parquet/",
		Dataset:          "glamira_raw_data",
		DefaultFormat:    FormatParquet,
		WriteDisposition: "WRITE_APPEND",
	})

	ev := StorageEvent{Bucket: "bkt", Name: "data_in_parquet/summary.parquet"}
	res := h.Handle(context.Background(), ev)

	if res.Status != StatusSuccess || res.Rows != 1234 {
		t.Fatalf("result = %+v, want SUCCESS with 1234 rows", res)
	}
	if len(wh.loaded) != 1 {
		t.Fatalf("loaded = %d jobs, want 1", len(wh.loaded))
	}
	job := wh.loaded[0]
	if job.TableID != "summary" || job.Format != FormatParquet || job.Location != "EU" {
		t.Errorf("job = %+v", job)
	}
	if job.JobID != StableJobID("gs://bkt/data_in_parquet/summary.parquet", "summary") {
		t.Errorf("job id %s is not the stable id", job.JobID)
	}
	if len(wh.audits) != 1 || wh.audits[0].Status != StatusSuccess || wh.audits[0].Rows != 1234 {
		t.Errorf("audits = %+v", wh.audits)
	}
	if wh.audits[0].Error != "" {
		t.Errorf("success audit carries error %q", wh.audits[0].Error)
	}
}

// TestHandler_DuplicateJob verifies a job id collision is reported as
// SKIPPED, not as a failure.
func TestHandler_DuplicateJob(t *testing.T) {
	wh := &fakeWarehouse{location: "EU", loadErr: ErrDuplicateJob}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatParquet})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/summary.parquet"})

	if res.Status != StatusSkipped || res.Reason != "duplicate job" {
		t.Fatalf("result = %+v, want SKIPPED duplicate job", res)
	}
}

// TestHandler_LoadFailureAudited verifies a failed load produces a FAILED
// audit row with the truncated error.
func TestHandler_LoadFailureAudited(t *testing.T) {
	longErr := strings.Repeat("x", 2000)
	wh := &fakeWarehouse{location: "EU", loadErr: errors.New(longErr)}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatParquet})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/summary.parquet"})

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if len(wh.audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(wh.audits))
	}
	if got := len(wh.audits[0].Error); got != maxAuditErrorLen {
		t.Errorf("audit error length = %d, want %d", got, maxAuditErrorLen)
	}
}

// TestHandler_AuditFailureSwallowed verifies an audit insert failure never
// changes the handler's result.
func TestHandler_AuditFailureSwallowed(t *testing.T) {
	wh := &fakeWarehouse{location: "EU", loadRows: 10, auditErr: errors.New("audit table gone")}
	h := testHandler(wh, Config{AllowedPrefix: "data_in_parquet/", Dataset: "raw", DefaultFormat: FormatParquet})

	res := h.Handle(context.Background(), StorageEvent{Bucket: "b", Name: "data_in_parquet/summary.parquet"})

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS despite audit failure", res.Status)
	}
}

// TestInferFormat covers extension classification and the parquet-strict
// fallback.
func TestInferFormat(t *testing.T) {
	cases := []struct {
		name          string
		object        string
		defaultFormat string
		want          string
		ok            bool
	}{
		{"parquet", "a/b.parquet", FormatParquet, FormatParquet, true},
		{"json", "a/b.json", FormatParquet, FormatJSON, true},
		{"jsonl", "a/b.jsonl", FormatParquet, FormatJSON, true},
		{"ndjson", "a/b.ndjson", FormatParquet, FormatJSON, true},
		{"csv", "a/b.csv", FormatParquet, FormatCSV, true},
		{"uppercase extension", "a/B.PARQUET", FormatParquet, FormatParquet, true},
		{"unknown with parquet default skips", "a/b.txt", FormatParquet, "", false},
		{"unknown with csv default falls back", "a/b.txt", FormatCSV, FormatCSV, true},
		{"unknown with no default skips", "a/b.txt", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := InferFormat(tc.object, tc.defaultFormat)
			if got != tc.want || ok != tc.ok {
				t.Errorf("InferFormat(%q, %q) = (%q, %v), want (%q, %v)",
					tc.object, tc.defaultFormat, got, ok, tc.want, tc.ok)
			}
		})
	}
}

// TestTableName covers subfolder and filename naming, sanitization and the
// underivable cases.
func TestTableName(t *testing.T) {
	cases := []struct {
		name   string
		object string
		prefix string
		mode   string
		want   string
		ok     bool
	}{
		{"subfolder names table", "data_in_parquet/summary/part-0001.parquet", "data_in_parquet/", "subfolder", "summary", true},
		{"flat file uses filename", "data_in_parquet/summary.parquet", "data_in_parquet/", "subfolder", "summary", true},
		{"filename mode ignores subfolder", "data_in_parquet/summary/part-0001.parquet", "data_in_parquet/", "filename", "part_0001", true},
		{"hyphens sanitized", "data_in_parquet/user-events.parquet", "data_in_parquet/", "subfolder", "user_events", true},
		{"dots in name sanitized", "data_in_parquet/v1.2-export.parquet", "data_in_parquet/", "subfolder", "v1_2_export", true},
		{"prefix without trailing slash", "data_in_parquet/summary.parquet", "data_in_parquet", "subfolder", "summary", true},
		{"prefix-only object underivable", "data_in_parquet/", "data_in_parquet/", "subfolder", "", false},
		{"bare extension underivable", "data_in_parquet/.parquet", "data_in_parquet/", "subfolder", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := TableName(tc.object, tc.prefix, tc.mode)
			if got != tc.want || ok != tc.ok {
				t.Errorf("TableName(%q) = (%q, %v), want (%q, %v)", tc.object, got, ok, tc.want, tc.ok)
			}
		})
	}
}

// TestStableJobID verifies determinism and sensitivity to both inputs.
func TestStableJobID(t *testing.T) {
	a := StableJobID("gs://b/x.parquet", "x")
	b := StableJobID("gs://b/x.parquet", "x")
	if a != b {
		t.Errorf("same inputs gave %s and %s", a, b)
	}
	if !strings.HasPrefix(a, "gcs2bq_") {
		t.Errorf("job id %s missing gcs2bq_ prefix", a)
	}
	if a == StableJobID("gs://b/y.parquet", "x") {
		t.Error("different URIs gave the same job id")
	}
	if a == StableJobID("gs://b/x.parquet", "y") {
		t.Error("different tables gave the same job id")
	}
}
