package utils

import (
	"fmt"
	"time"
)

// Offsets used when the host has no tz database entry for a zone.
var fixedZones = map[string]struct {
	abbr   string
	offset int
}{
	"Europe/Moscow": {"MSK", 3 * 60 * 60},
	"Asia/Kolkata":  {"IST", 5*60*60 + 30*60},
}

// LoadLocation resolves an IANA zone name. Empty means UTC. Known zones fall
// back to a fixed offset when the tz database is unavailable.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}

	if z, ok := fixedZones[name]; ok {
		return time.FixedZone(z.abbr, z.offset), nil
	}
	return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
}

// MustLocation is LoadLocation with a UTC fallback.
func MustLocation(name string) *time.Location {
	loc, err := LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
