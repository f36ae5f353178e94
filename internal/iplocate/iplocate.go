// Package iplocate resolves upload source addresses to a coarse location for
// the audit log, backed by an ip2region xdb database.
package iplocate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
)

const unknown = "Unknown"

// Location is the resolved geolocation of an address. Every field falls back
// to "Unknown" rather than staying empty.
type Location struct {
	Country  string
	Region   string
	Province string
	City     string
	ISP      string
}

// UnknownLocation is the fallback when no database is configured or a lookup
// fails.
func UnknownLocation() Location {
	return Location{
		Country:  unknown,
		Region:   unknown,
		Province: unknown,
		City:     unknown,
		ISP:      unknown,
	}
}

// Locator resolves addresses. Lookup never fails; resolution errors degrade
// to UnknownLocation.
type Locator interface {
	Lookup(ip string) Location
}

// Noop is a Locator that answers UnknownLocation for every address.
type Noop struct{}

func (Noop) Lookup(string) Location { return UnknownLocation() }

// XDB is a Locator over an ip2region xdb snapshot.
type XDB struct {
	searcher *xdb.Searcher
	logger   *slog.Logger
}

// NewXDB opens the xdb database at path.
func NewXDB(path string, log *slog.Logger) (*XDB, error) {
	if log == nil {
		log = slog.Default()
	}
	searcher, err := xdb.NewWithFileOnly(path)
	if err != nil {
		return nil, fmt.Errorf("iplocate: open %s: %w", path, err)
	}
	return &XDB{
		searcher: searcher,
		logger:   log.With(slog.String("service", "iplocate")),
	}, nil
}

func (x *XDB) Lookup(ip string) Location {
	raw, err := x.searcher.SearchByStr(ip)
	if err != nil {
		x.logger.Debug("lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return UnknownLocation()
	}
	return parseRegion(raw)
}

// Close releases the underlying file handle.
func (x *XDB) Close() {
	x.searcher.Close()
}

// parseRegion splits the xdb answer "country|region|province|city|isp",
// mapping the database's "0" placeholder to Unknown.
func parseRegion(raw string) Location {
	loc := UnknownLocation()
	parts := strings.Split(raw, "|")
	fields := []*string{&loc.Country, &loc.Region, &loc.Province, &loc.City, &loc.ISP}
	for i, p := range parts {
		if i >= len(fields) {
			break
		}
		if p != "" && p != "0" {
			*fields[i] = p
		}
	}
	return loc
}
