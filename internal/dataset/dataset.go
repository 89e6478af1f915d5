// Package dataset turns parsed report tables into station-by-time datasets
// for the node and link NetCDF files FEWS imports.
package dataset

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
	"github.com/jonboulle/clockwork"
)

// Coordinate attributes.
var (
	TimeAttributes = []units.Attribute{
		{Name: "standard_name", Value: "time"},
		{Name: "long_name", Value: "time"},
		{Name: "axis", Value: "T"},
	}
	StationAttributes = []units.Attribute{
		{Name: "standard_name", Value: "Station Identifier"},
		{Name: "long_name", Value: "EPA_SWMM Station Identifier"},
		{Name: "axis", Value: "XY"},
		{Name: "cf_role", Value: "timeseries_id"},
	}
)

// Variable is one reported quantity across all stations.
type Variable struct {
	Name       string
	Attributes []units.Attribute
	Values     [][]float64 // [time][station], NaN where a station has no value
}

// Dataset is the station-by-time view of all tables of one kind.
type Dataset struct {
	Kind       domain.TableKind
	Times      []time.Time
	Stations   []string
	Variables  []Variable
	Attributes []units.Attribute
}

// Empty reports whether the dataset holds no stations.
func (d *Dataset) Empty() bool { return len(d.Stations) == 0 }

// Variable returns the named variable.
func (d *Dataset) Variable(name string) (*Variable, bool) {
	for i := range d.Variables {
		if d.Variables[i].Name == name {
			return &d.Variables[i], true
		}
	}
	return nil, false
}

// Assembler builds datasets from a report document.
type Assembler struct {
	lookup units.Lookup
	attrs  GlobalAttributes
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewAssembler creates an Assembler. A nil clock uses the real clock.
func NewAssembler(lookup units.Lookup, attrs GlobalAttributes, clock clockwork.Clock, logger *slog.Logger) *Assembler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Assembler{lookup: lookup, attrs: attrs, clock: clock, logger: logger}
}

// Build splits the document into node and link datasets. Tables that are
// neither are skipped. Every table's units must be in the lookup.
func (a *Assembler) Build(doc *domain.ReportDocument) (nodes, links *Dataset, err error) {
	var nodeTables, linkTables []*domain.ResultTable
	var ignored []string
	for _, t := range doc.Ordered() {
		for _, col := range t.Columns {
			if _, ok := a.lookup.Attributes(t.Units[col]); !ok {
				return nil, nil, fmt.Errorf("%w: unit %q of %s in %s is not in the units lookup",
					domain.ErrConfig, t.Units[col], col, t.Name)
			}
		}
		switch t.Kind() {
		case domain.KindNode:
			nodeTables = append(nodeTables, t)
		case domain.KindLink:
			linkTables = append(linkTables, t)
		default:
			ignored = append(ignored, t.Name)
		}
	}
	if len(ignored) > 0 {
		a.logger.Info("locations ignored in the output files (not a node or a link)", "locations", ignored)
	}

	now := a.clock.Now()
	nodes = a.assemble(domain.KindNode, nodeTables, now)
	links = a.assemble(domain.KindLink, linkTables, now)
	return nodes, links, nil
}

func (a *Assembler) assemble(kind domain.TableKind, tables []*domain.ResultTable, now time.Time) *Dataset {
	ds := &Dataset{Kind: kind, Attributes: a.attrs.list(now)}
	if len(tables) == 0 {
		return ds
	}

	times := timeAxis(tables)
	timeIndex := make(map[int64]int, len(times))
	for i, t := range times {
		timeIndex[t.UnixNano()] = i
	}

	varIndex := make(map[string]int)
	for _, t := range tables {
		for _, col := range t.Columns {
			if _, ok := varIndex[col]; ok {
				continue
			}
			attrs, _ := a.lookup.Attributes(t.Units[col])
			varIndex[col] = len(ds.Variables)
			ds.Variables = append(ds.Variables, Variable{
				Name:       col,
				Attributes: append([]units.Attribute(nil), attrs...),
				Values:     nanGrid(len(times), len(tables)),
			})
		}
	}

	for s, t := range tables {
		ds.Stations = append(ds.Stations, t.Name)
		for _, row := range t.Rows {
			ti := timeIndex[row.Time.UnixNano()]
			for c, col := range t.Columns {
				ds.Variables[varIndex[col]].Values[ti][s] = row.Values[c]
			}
		}
	}
	ds.Times = times
	return ds
}

func timeAxis(tables []*domain.ResultTable) []time.Time {
	seen := make(map[int64]time.Time)
	for _, t := range tables {
		for _, r := range t.Rows {
			seen[r.Time.UnixNano()] = r.Time
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func nanGrid(rows, cols int) [][]float64 {
	grid := make([][]float64, rows)
	for i := range grid {
		grid[i] = make([]float64, cols)
		for j := range grid[i] {
			grid[i][j] = math.NaN()
		}
	}
	return grid
}
