package domain

import "time"

// CurveKind is the keyword on the first line of a curve in the [CURVES] section.
type CurveKind string

const (
	CurveRating  CurveKind = "Rating"
	CurveStorage CurveKind = "Storage"
)

// IsCurveKind reports whether s is a curve keyword the rewriter recognises.
func IsCurveKind(s string) bool {
	return s == string(CurveRating) || s == string(CurveStorage)
}

// CurvePoint is one (x, y) pair of a curve, kept as the source text.
type CurvePoint struct {
	X string
	Y string
}

// CurveDefinition is a curve supplied by FEWS for one structure.
type CurveDefinition struct {
	ID     string
	Kind   CurveKind
	Unit   string
	Points []CurvePoint
}

// Event is one timed setting of a control series.
type Event struct {
	Time  time.Time
	Value string
}

// ControlSeries is a FEWS time series that drives a structure setting.
type ControlSeries struct {
	Parameter    string
	Location     string
	MissingValue string
	Events       []Event
}

// Key identifies the series by location and parameter, e.g. "OL341-OUTLET".
func (s ControlSeries) Key() string {
	return s.Location + "-" + s.Parameter
}

// RuleBlock is the rendered control-rule text for one series.
type RuleBlock struct {
	Key  string
	Text string
}
