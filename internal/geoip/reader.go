package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Provider looks up country codes in an opened GeoIP2 database.
// A nil Provider answers every lookup with an empty code.
type Provider struct {
	db *geoip2.Reader
}

// Open opens the database at path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// CountryCode returns the ISO country code (e.g. "US", "DE") of ipStr,
// or an empty string when it cannot be determined.
func (p *Provider) CountryCode(ipStr string) string {
	if p == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	record, err := p.db.Country(ip)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}
