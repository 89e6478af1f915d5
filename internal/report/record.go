package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

// Date layouts seen in SWMM reports. Reports are month-first; ISO dates
// appear when the model runs with a non-US locale setting.
var dateLayouts = []string{"01/02/2006", "2006-01-02"}

// BuildRows turns whitespace-delimited data lines into rows. The template
// names every token of a line: a date, a time of day, then one column per
// value.
func BuildRows(lines []string, template []string) ([]domain.Row, error) {
	return buildRows(lines, 0, template)
}

// buildRows is BuildRows with errors numbered from firstLine (0-based).
func buildRows(lines []string, firstLine int, template []string) ([]domain.Row, error) {
	if len(template) < 3 {
		return nil, fmt.Errorf("%w: column template %v needs a date, a time and at least one value", domain.ErrParse, template)
	}
	rows := make([]domain.Row, 0, len(lines))
	for i, line := range lines {
		row, err := parseRow(line, template)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrParse, firstLine+i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(line string, template []string) (domain.Row, error) {
	fields := strings.Fields(line)
	if len(fields) != len(template) {
		return domain.Row{}, fmt.Errorf("expected %d fields, got %d", len(template), len(fields))
	}

	ts, err := parseTimestamp(fields[0], fields[1])
	if err != nil {
		return domain.Row{}, err
	}

	values := make([]float64, len(fields)-2)
	for j, raw := range fields[2:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Row{}, fmt.Errorf("column %s: non-numeric value %q", template[j+2], raw)
		}
		values[j] = v
	}
	return domain.Row{Time: ts, Values: values}, nil
}

// parseTimestamp combines a calendar date and a time-of-day offset. The
// offset is a duration, so "24:00:00" rolls into the next day.
func parseTimestamp(date, clock string) (time.Time, error) {
	var day time.Time
	var err error
	for _, layout := range dateLayouts {
		day, err = time.Parse(layout, date)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}

	offset, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(offset), nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}
