package geo

import (
	"fmt"
	"time"

	"github.com/ip2location/ip2location-go/v9"
)

// ip2locationLookup resolves addresses against a local IP2Location BIN
// database file.
type ip2locationLookup struct {
	db *ip2location.DB
}

// OpenIP2Location opens the BIN database at the given path.
func OpenIP2Location(binFile string) (Lookup, error) {
	db, err := ip2location.OpenDB(binFile)
	if err != nil {
		return nil, fmt.Errorf("open IP2Location database %s: %w", binFile, err)
	}
	return &ip2locationLookup{db: db}, nil
}

func (l *ip2locationLookup) Lookup(ip string) (*Location, error) {
	rec, err := l.db.Get_all(ip)
	if err != nil {
		return nil, err
	}
	loc := &Location{
		IPAddress:   ip,
		CountryCode: blankIfUnknown(rec.Country_short),
		CountryName: blankIfUnknown(rec.Country_long),
		RegionName:  blankIfUnknown(rec.Region),
		CityName:    blankIfUnknown(rec.City),
		ProcessedAt: time.Now().UTC(),
	}
	return loc, nil
}

func (l *ip2locationLookup) Close() error {
	l.db.Close()
	return nil
}

// blankIfUnknown maps the database's "-" placeholder to an empty value so it
// becomes null downstream.
func blankIfUnknown(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
