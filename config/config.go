// Package config loads and validates the pipeline's YAML configuration and
// the load trigger's environment-based settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/crawler"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/geo"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/source"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/trigger"
)

// ExportConfig controls the collection export stage.
type ExportConfig struct {
	Collections      []string `yaml:"collections"`
	BatchSize        int      `yaml:"batch_size"`
	ForceStringCols  []string `yaml:"force_string_columns"`
	TempDir          string   `yaml:"temp_dir"`
	Format           string   `yaml:"format"`
	PreexistingFiles []string `yaml:"preexisting_files"`
}

// GCSConfig controls the staging destination.
type GCSConfig struct {
	ProjectID       string `yaml:"project_id"`
	Bucket          string `yaml:"bucket"`
	TargetPrefix    string `yaml:"target_prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Config is the full pipeline configuration.
type Config struct {
	Mongo    source.Config  `yaml:"mongo"`
	Export   ExportConfig   `yaml:"export"`
	GCS      GCSConfig      `yaml:"gcs"`
	Geo      geo.Config     `yaml:"geo"`
	Crawler  crawler.Config `yaml:"crawler"`
	Metrics  metrics.Config `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
}

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in defaults for everything optional.
func (c *Config) ApplyDefaults() {
	if c.Export.BatchSize == 0 {
		c.Export.BatchSize = 10000
	}
	if len(c.Export.ForceStringCols) == 0 {
		c.Export.ForceStringCols = []string{
			"utm_source", "utm_medium", "utm_campaign",
			"utm_term", "utm_content", "gclid",
		}
	}
	if c.Export.TempDir == "" {
		c.Export.TempDir = "./temp_export"
	}
	if c.Export.Format == "" {
		c.Export.Format = "parquet"
	}
	if c.GCS.TargetPrefix == "" {
		c.GCS.TargetPrefix = "data_in_parquet"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Geo.ApplyDefaults()
	c.Crawler.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks the settings every stage depends on. Stage-specific
// settings (geo BIN file, crawler targets) are checked by the binaries that
// need them.
func (c *Config) Validate() error {
	if err := c.Mongo.Validate(); err != nil {
		return err
	}
	if len(c.Export.Collections) == 0 {
		return fmt.Errorf("export.collections must list at least one collection")
	}
	if c.GCS.ProjectID == "" {
		return fmt.Errorf("gcs.project_id is required")
	}
	if c.GCS.Bucket == "" {
		return fmt.Errorf("gcs.bucket is required")
	}
	return nil
}

// TriggerConfig is the load trigger's runtime configuration plus its listen
// address.
type TriggerConfig struct {
	ProjectID       string
	CredentialsFile string
	ListenAddr      string
	Trigger         trigger.Config
}

// TriggerFromEnv reads the load trigger configuration from the environment,
// the way event-driven deployments inject settings.
func TriggerFromEnv() (*TriggerConfig, error) {
	project := os.Getenv("GCP_PROJECT")
	if project == "" {
		project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if project == "" {
		return nil, fmt.Errorf("GCP_PROJECT or GOOGLE_CLOUD_PROJECT must be set")
	}

	cfg := &TriggerConfig{
		ProjectID:       project,
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		Trigger: trigger.Config{
			Dataset:          envOr("BQ_DATASET", "glamira_raw_data"),
			AllowedPrefix:    envOr("ALLOWED_PREFIX", "data_in_parquet/"),
			DefaultFormat:    envOr("DEFAULT_SOURCE_FORMAT", trigger.FormatParquet),
			WriteDisposition: envOr("WRITE_DISPOSITION", "WRITE_APPEND"),
			AuditTable:       os.Getenv("AUDIT_TABLE"),
			TableNamingMode:  envOr("TABLE_NAMING_MODE", "subfolder"),
			CSV: trigger.CSVOptions{
				SkipLeadingRows: envOrInt("CSV_SKIP_LEADING_ROWS", 1),
				FieldDelimiter:  envOr("CSV_FIELD_DELIMITER", ","),
			},
		},
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
