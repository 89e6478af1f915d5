// Package units reads the lookup table that maps SWMM report units to
// UDUNITS strings and CF attributes.
package units

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

// Attribute is one NetCDF variable attribute.
type Attribute struct {
	Name  string
	Value string
}

// Lookup maps a SWMM unit (e.g. "CMS") to its variable attributes.
type Lookup map[string][]Attribute

// Attributes returns the attributes for unit.
func (l Lookup) Attributes(unit string) ([]Attribute, bool) {
	a, ok := l[unit]
	return a, ok
}

// ReadFile reads the lookup CSV at path.
func ReadFile(path string) (Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open units lookup: %w", domain.ErrConfig, err)
	}
	defer f.Close()
	l, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("units lookup %s: %w", path, err)
	}
	return l, nil
}

// Read parses a lookup CSV whose header names the columns, e.g.
//
//	SWMM,UDUNITS,long_name,standard_name
//	CMS,m3 s-1,discharge,water_volume_transport_in_river_channel
//
// The first column is the key; the next three become attributes named by
// the header, with UDUNITS renamed to units.
func Read(r io.Reader) (Lookup, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: units lookup is empty", domain.ErrConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: units lookup header: %w", domain.ErrConfig, err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("%w: units lookup header needs 4 columns, got %d", domain.ErrConfig, len(header))
	}
	names := make([]string, 3)
	for i := range names {
		names[i] = strings.TrimSpace(header[i+1])
		if names[i] == "UDUNITS" {
			names[i] = "units"
		}
	}

	out := make(Lookup)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: units lookup line %d: %w", domain.ErrConfig, line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("%w: units lookup line %d has %d columns, want 4", domain.ErrConfig, line, len(rec))
		}
		attrs := make([]Attribute, 3)
		for i := range attrs {
			attrs[i] = Attribute{Name: names[i], Value: strings.TrimSpace(rec[i+1])}
		}
		out[strings.TrimSpace(rec[0])] = attrs
	}
	return out, nil
}
