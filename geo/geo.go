// Package geo resolves visitor IP addresses to geographic locations.
package geo

import "time"

// Location is one resolved IP address. Fields the database has no data for
// are empty strings and are stored as nulls.
type Location struct {
	IPAddress   string
	CountryCode string
	CountryName string
	RegionName  string
	CityName    string
	ProcessedAt time.Time
}

// Lookup resolves a single IP address. A nil location with nil error means
// the address could not be resolved and is skipped.
type Lookup interface {
	Lookup(ip string) (*Location, error)
	Close() error
}

// Sink persists resolved locations. Writes are keyed by IP address and must
// be idempotent, because a resumed run can replay the batch in flight when
// the previous run stopped.
type Sink interface {
	UpsertLocations(locations []*Location) error
}

// Config holds IP resolution settings.
type Config struct {
	BinFile       string `yaml:"bin_file"`
	BatchSize     int    `yaml:"batch_size"`
	IPField       string `yaml:"ip_field"`
	Collection    string `yaml:"collection"`
	OutputDir     string `yaml:"output_dir"`
	UniqueIPsFile string `yaml:"unique_ips_file"`
}

// ApplyDefaults sets default values for geo config.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.IPField == "" {
		c.IPField = "ip"
	}
	if c.Collection == "" {
		c.Collection = "summary"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}
	if c.UniqueIPsFile == "" {
		c.UniqueIPsFile = "unique_ips.txt"
	}
}
