package fewspi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ratingCurvesXML = `<?xml version="1.0" encoding="UTF-8"?>
<RatingCurves xmlns="http://www.wldelft.nl/fews/PI" version="1.10">
  <ratingCurve>
    <header>
      <locationId>LocationX</locationId>
      <stageUnit>m</stageUnit>
      <dischargeUnit>m3/s</dischargeUnit>
    </header>
    <table>
      <row stage="1" discharge="0"/>
      <row stage="2" discharge="0"/>
      <row stage="3" discharge="10"/>
      <row stage="4" discharge="15"/>
      <row stage="5" discharge="20"/>
      <row stage="6" discharge="40"/>
    </table>
  </ratingCurve>
  <ratingCurve>
    <header>
      <locationId>LocationY</locationId>
      <stageUnit>m</stageUnit>
    </header>
    <table>
      <row stage="100.5" discharge="0.25"/>
    </table>
  </ratingCurve>
</RatingCurves>`

func TestReadRatingCurves(t *testing.T) {
	curves, err := ReadRatingCurves(strings.NewReader(ratingCurvesXML))
	require.NoError(t, err)
	require.Len(t, curves, 2)

	x := curves[0]
	assert.Equal(t, "LocationX", x.ID)
	assert.Equal(t, domain.CurveRating, x.Kind)
	assert.Equal(t, "m", x.Unit)
	require.Len(t, x.Points, 6)
	assert.Equal(t, domain.CurvePoint{X: "1", Y: "0"}, x.Points[0])
	assert.Equal(t, domain.CurvePoint{X: "6", Y: "40"}, x.Points[5])

	assert.Equal(t, []domain.CurvePoint{{X: "100.5", Y: "0.25"}}, curves[1].Points)
}

func TestReadRatingCurves_Errors(t *testing.T) {
	curve := func(loc, rows string) string {
		return `<ratingCurve><header><locationId>` + loc + `</locationId></header><table>` + rows + `</table></ratingCurve>`
	}
	doc := func(body string) string {
		return `<RatingCurves xmlns="` + Namespace + `">` + body + `</RatingCurves>`
	}
	okRow := `<row stage="1" discharge="2"/>`

	cases := []struct {
		name    string
		xml     string
		wantErr error
	}{
		{"no curves", doc(""), domain.ErrConfig},
		{"duplicate location", doc(curve("A", okRow) + curve("A", okRow)), domain.ErrDuplicate},
		{"no rows", doc(curve("A", "")), domain.ErrConfig},
		{"missing discharge", doc(curve("A", `<row stage="1"/>`)), domain.ErrConfig},
		{"non-numeric stage", doc(curve("A", `<row stage="high" discharge="2"/>`)), domain.ErrConfig},
		{"missing location", doc(curve("", okRow)), domain.ErrConfig},
		{"malformed", "<RatingCurves><ratingCurve>", domain.ErrConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadRatingCurves(strings.NewReader(tc.xml))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

const controlRulesXML = `<?xml version="1.0" encoding="UTF-8"?>
<TimeSeries xmlns="http://www.wldelft.nl/fews/PI" version="1.2">
  <timeZone>0.0</timeZone>
  <series>
    <header>
      <type>instantaneous</type>
      <locationId>OL341</locationId>
      <parameterId>OUTLET</parameterId>
      <missVal>-999.0</missVal>
    </header>
    <event date="2020-04-24" time="05:00:00" value="0.4" flag="0"/>
    <event date="2020-04-23" time="18:00:00" value="0.5" flag="0"/>
    <event date="2020-04-23" time="19:00:00" value="-999.0" flag="8"/>
  </series>
  <series>
    <header>
      <locationId>OL342</locationId>
      <parameterId>OUTLET</parameterId>
      <missVal>NaN</missVal>
    </header>
  </series>
</TimeSeries>`

func TestReadControlSeries(t *testing.T) {
	series, err := ReadControlSeries(strings.NewReader(controlRulesXML))
	require.NoError(t, err)
	require.Len(t, series, 2)

	s := series[0]
	assert.Equal(t, "OL341-OUTLET", s.Key())
	assert.Equal(t, "-999.0", s.MissingValue)
	require.Len(t, s.Events, 3)
	assert.Equal(t, time.Date(2020, time.April, 23, 18, 0, 0, 0, time.UTC), s.Events[0].Time)
	assert.Equal(t, "0.5", s.Events[0].Value)
	assert.Equal(t, "-999.0", s.Events[1].Value)
	assert.Equal(t, "0.4", s.Events[2].Value)

	assert.Equal(t, "OL342-OUTLET", series[1].Key())
	assert.Empty(t, series[1].Events)
}

func TestReadControlSeries_Errors(t *testing.T) {
	cases := []struct {
		name string
		xml  string
	}{
		{"bad date", `<TimeSeries><series><header><locationId>A</locationId><parameterId>P</parameterId></header><event date="24/04/2020" time="05:00:00" value="1"/></series></TimeSeries>`},
		{"missing parameter", `<TimeSeries><series><header><locationId>A</locationId></header></series></TimeSeries>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadControlSeries(strings.NewReader(tc.xml))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, "Dam_rating_curve.xml")
	cr := filepath.Join(dir, "Control_rules.xml")
	require.NoError(t, os.WriteFile(rc, []byte(ratingCurvesXML), 0o600))
	require.NoError(t, os.WriteFile(cr, []byte(controlRulesXML), 0o600))

	curves, err := ReadRatingCurvesFile(rc)
	require.NoError(t, err)
	assert.Len(t, curves, 2)

	series, err := ReadControlSeriesFile(cr)
	require.NoError(t, err)
	assert.Len(t, series, 2)

	_, err = ReadRatingCurvesFile(filepath.Join(dir, "absent.xml"))
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestParseDateTime(t *testing.T) {
	ts, err := ParseDateTime("2000-01-25", "12:46:33")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2000, time.January, 25, 12, 46, 33, 0, time.UTC), ts)

	_, err = ParseDateTime("2000-01-25", "")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestReadRatingCurves_Namespace(t *testing.T) {
	body := `<ratingCurve><header><locationId>Dam1</locationId></header><table><row stage="1" discharge="2"/></table></ratingCurve>`

	curves, err := ReadRatingCurves(strings.NewReader(`<RatingCurves>` + body + `</RatingCurves>`))
	require.NoError(t, err)
	require.Len(t, curves, 1)
	assert.Equal(t, "Dam1", curves[0].ID)

	_, err = ReadRatingCurves(strings.NewReader(`<RatingCurves xmlns="http://example.com/other">` + body + `</RatingCurves>`))
	require.ErrorIs(t, err, domain.ErrConfig)
	assert.Contains(t, err.Error(), Namespace)
}
