package fewspi

import (
	"fmt"
	"io"
	"sort"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

type timeSeriesDoc struct {
	Series []struct {
		Header struct {
			ParameterID string `xml:"parameterId"`
			LocationID  string `xml:"locationId"`
			MissVal     string `xml:"missVal"`
		} `xml:"header"`
		Events []struct {
			Date  string `xml:"date,attr"`
			Time  string `xml:"time,attr"`
			Value string `xml:"value,attr"`
		} `xml:"event"`
	} `xml:"series"`
}

// ReadControlSeriesFile reads a PI time series export of control settings.
func ReadControlSeriesFile(path string) ([]domain.ControlSeries, error) {
	var doc timeSeriesDoc
	if err := decodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("read control rules %s: %w", path, err)
	}
	series, err := doc.controlSeries()
	if err != nil {
		return nil, fmt.Errorf("read control rules %s: %w", path, err)
	}
	return series, nil
}

// ReadControlSeries reads a PI time series export of control settings.
// Events come back in chronological order.
func ReadControlSeries(r io.Reader) ([]domain.ControlSeries, error) {
	var doc timeSeriesDoc
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	return doc.controlSeries()
}

func (doc timeSeriesDoc) controlSeries() ([]domain.ControlSeries, error) {
	out := make([]domain.ControlSeries, 0, len(doc.Series))
	for i, s := range doc.Series {
		if s.Header.ParameterID == "" || s.Header.LocationID == "" {
			return nil, fmt.Errorf("%w: series %d lacks parameterId or locationId", domain.ErrConfig, i+1)
		}
		cs := domain.ControlSeries{
			Parameter:    s.Header.ParameterID,
			Location:     s.Header.LocationID,
			MissingValue: s.Header.MissVal,
			Events:       make([]domain.Event, 0, len(s.Events)),
		}
		for _, e := range s.Events {
			ts, err := ParseDateTime(e.Date, e.Time)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", cs.Key(), err)
			}
			cs.Events = append(cs.Events, domain.Event{Time: ts, Value: e.Value})
		}
		sort.SliceStable(cs.Events, func(a, b int) bool { return cs.Events[a].Time.Before(cs.Events[b].Time) })
		out = append(out, cs)
	}
	return out, nil
}
