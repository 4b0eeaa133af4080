package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/trigger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
mongo:
  uri: mongodb://localhost:27017
  database: glamira
export:
  collections: [summary]
gcs:
  project_id: my-project
  bucket: my-bucket
`

// TestLoad_Defaults verifies the defaults every stage relies on.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Export.BatchSize != 10000 {
		t.Errorf("batch_size = %d, want 10000", cfg.Export.BatchSize)
	}
	if cfg.Export.TempDir != "./temp_export" || cfg.Export.Format != "parquet" {
		t.Errorf("export defaults = %+v", cfg.Export)
	}
	if cfg.GCS.TargetPrefix != "data_in_parquet" {
		t.Errorf("target_prefix = %s", cfg.GCS.TargetPrefix)
	}

	wantForce := []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "gclid"}
	if len(cfg.Export.ForceStringCols) != len(wantForce) {
		t.Fatalf("force_string_columns = %v", cfg.Export.ForceStringCols)
	}
	for i, col := range wantForce {
		if cfg.Export.ForceStringCols[i] != col {
			t.Errorf("force_string_columns[%d] = %s, want %s", i, cfg.Export.ForceStringCols[i], col)
		}
	}

	if cfg.Geo.BatchSize != 1000 || cfg.Geo.Collection != "summary" {
		t.Errorf("geo defaults = %+v", cfg.Geo)
	}
	if cfg.Crawler.BatchSize != 50 || len(cfg.Crawler.EventTypes) == 0 {
		t.Errorf("crawler defaults = %+v", cfg.Crawler)
	}
}

// TestLoad_ValidationErrors verifies missing required settings are rejected.
func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing mongo uri", `
mongo:
  database: glamira
export:
  collections: [summary]
gcs:
  project_id: p
  bucket: b
`},
		{"no collections", `
mongo:
  uri: mongodb://localhost:27017
  database: glamira
gcs:
  project_id: p
  bucket: b
`},
		{"missing bucket", `
mongo:
  uri: mongodb://localhost:27017
  database: glamira
export:
  collections: [summary]
gcs:
  project_id: p
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}

// TestTriggerFromEnv verifies environment parsing and its defaults.
func TestTriggerFromEnv(t *testing.T) {
	t.Setenv("GCP_PROJECT", "my-project")
	t.Setenv("AUDIT_TABLE", "ops.load_audit")

	cfg, err := TriggerFromEnv()
	if err != nil {
		t.Fatalf("TriggerFromEnv failed: %v", err)
	}

	if cfg.ProjectID != "my-project" || cfg.ListenAddr != ":8080" {
		t.Errorf("cfg = %+v", cfg)
	}
	tr := cfg.Trigger
	if tr.Dataset != "glamira_raw_data" || tr.AllowedPrefix != "data_in_parquet/" {
		t.Errorf("trigger defaults = %+v", tr)
	}
	if tr.DefaultFormat != trigger.FormatParquet || tr.WriteDisposition != "WRITE_APPEND" {
		t.Errorf("format defaults = %+v", tr)
	}
	if tr.CSV.SkipLeadingRows != 1 || tr.CSV.FieldDelimiter != "," {
		t.Errorf("csv defaults = %+v", tr.CSV)
	}
	if tr.TableNamingMode != "subfolder" || tr.AuditTable != "ops.load_audit" {
		t.Errorf("trigger = %+v", tr)
	}
}

// TestTriggerFromEnv_RequiresProject verifies a missing project is an error.
func TestTriggerFromEnv_RequiresProject(t *testing.T) {
	t.Setenv("GCP_PROJECT", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	if _, err := TriggerFromEnv(); err == nil {
		t.Fatal("TriggerFromEnv succeeded without a project")
	}
}
