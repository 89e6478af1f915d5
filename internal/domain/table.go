package domain

import (
	"strings"
	"time"
)

// Row is one time step of a result table. Values are positional to the
// table's Columns.
type Row struct {
	Time   time.Time
	Values []float64
}

// ResultTable is one named time series table extracted from a report.
type ResultTable struct {
	Name     string
	Columns  []string
	Units    map[string]string
	Template []string // Columns prefixed with the Date and Time placeholders.
	Rows     []Row

	// Line offsets (0-based) recorded when the table was opened and closed.
	StartLine int
	EndLine   int
}

// Column returns the series for the named column and whether it exists.
func (t *ResultTable) Column(name string) ([]float64, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[idx]
	}
	return out, true
}

// TableKind classifies a table by its name for dataset assembly.
type TableKind string

const (
	KindNode  TableKind = "node"
	KindLink  TableKind = "link"
	KindOther TableKind = "other"
)

// Kind reports whether the table describes a node, a link or something else
// (subcatchments, system totals).
func (t *ResultTable) Kind() TableKind {
	lower := strings.ToLower(t.Name)
	switch {
	case strings.Contains(lower, "node"):
		return KindNode
	case strings.Contains(lower, "link"):
		return KindLink
	default:
		return KindOther
	}
}

// ReportDocument maps table names to tables for a whole report. Order keeps
// the first-seen order of names; a reused name replaces the earlier table
// but keeps its position.
type ReportDocument struct {
	Tables map[string]*ResultTable
	Order  []string
}

// NewReportDocument returns an empty document.
func NewReportDocument() *ReportDocument {
	return &ReportDocument{Tables: make(map[string]*ResultTable)}
}

// Put stores t under its name, replacing any earlier table of that name.
func (d *ReportDocument) Put(t *ResultTable) {
	if _, ok := d.Tables[t.Name]; !ok {
		d.Order = append(d.Order, t.Name)
	}
	d.Tables[t.Name] = t
}

// Get returns the named table.
func (d *ReportDocument) Get(name string) (*ResultTable, bool) {
	t, ok := d.Tables[name]
	return t, ok
}

// Len returns the number of tables.
func (d *ReportDocument) Len() int { return len(d.Tables) }

// Ordered returns the tables in first-seen order.
func (d *ReportDocument) Ordered() []*ResultTable {
	out := make([]*ResultTable, 0, len(d.Order))
	for _, name := range d.Order {
		out = append(out, d.Tables[name])
	}
	return out
}
