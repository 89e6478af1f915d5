// Package inpfile renders FEWS curves and control rules into EPA-SWMM input
// file syntax and rewrites a template input file with them.
package inpfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	fieldGap = "     "
	// Continuation lines leave the keyword column blank.
	continuationGap = fieldGap + fieldGap + fieldGap
)

// RenderCurve formats a curve as [CURVES] section lines. The first point
// carries the curve keyword; later points repeat only the identifier.
func RenderCurve(c domain.CurveDefinition) string {
	kind := c.Kind
	if kind == "" {
		kind = domain.CurveRating
	}
	var b strings.Builder
	for i, p := range c.Points {
		b.WriteString(c.ID)
		if i == 0 {
			b.WriteString(fieldGap)
			b.WriteString(string(kind))
			b.WriteString(fieldGap)
		} else {
			b.WriteString(continuationGap)
		}
		b.WriteString(p.X)
		b.WriteString(fieldGap)
		b.WriteString(p.Y)
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderRules formats each series as numbered date/time rules for the
// [CONTROLS] section. Series are numbered from 1 in input order; events are
// numbered from 1 within a series, counting only events that are not the
// series' missing value.
func RenderRules(series []domain.ControlSeries) ([]domain.RuleBlock, error) {
	blocks := make([]domain.RuleBlock, 0, len(series))
	seen := make(map[string]bool, len(series))

	for j, s := range series {
		key := s.Key()
		if seen[key] {
			return nil, fmt.Errorf("%w: more than one control rule series for %s", domain.ErrDuplicate, key)
		}
		seen[key] = true

		events := make([]domain.Event, len(s.Events))
		copy(events, s.Events)
		sort.SliceStable(events, func(a, b int) bool { return events[a].Time.Before(events[b].Time) })

		var b strings.Builder
		n := 0
		for _, e := range events {
			if IsMissing(e.Value, s.MissingValue) {
				continue
			}
			n++
			b.WriteString("Rule AdapterRule" + strconv.Itoa(j+1) + "." + strconv.Itoa(n) + "\n")
			b.WriteString("IF SIMULATION DATE = " + e.Time.Format("01/02/2006") + "\n")
			b.WriteString("AND SIMULATION CLOCKTIME = " + e.Time.Format("15:04:05") + "\n")
			b.WriteString("THEN " + s.Parameter + " " + s.Location + " SETTING = " + e.Value + "\n\n")
		}
		blocks = append(blocks, domain.RuleBlock{Key: key, Text: b.String()})
	}
	return blocks, nil
}

// IsMissing reports whether value is the missing-value sentinel, either
// textually or as the same decimal number ("-999" and "-999.0").
func IsMissing(value, sentinel string) bool {
	if value == sentinel {
		return true
	}
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	m, err := decimal.NewFromString(strings.TrimSpace(sentinel))
	if err != nil {
		return false
	}
	return v.Equal(m)
}
