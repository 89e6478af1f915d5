package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/netcdf"
	"github.com/couchcryptid/swmm-fews-adapter/internal/config"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/inpfile"
	"github.com/couchcryptid/swmm-fews-adapter/internal/observability"
	"github.com/couchcryptid/swmm-fews-adapter/internal/pipeline"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runStart = time.Date(2020, 3, 18, 20, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeInputs struct {
	curves []domain.CurveDefinition
	series []domain.ControlSeries
	rain   *netcdf.Rainfall
	err    error
	read   []string
}

func (f *fakeInputs) RatingCurves(path string) ([]domain.CurveDefinition, error) {
	f.read = append(f.read, path)
	return f.curves, f.err
}

func (f *fakeInputs) ControlSeries(path string) ([]domain.ControlSeries, error) {
	f.read = append(f.read, path)
	return f.series, f.err
}

func (f *fakeInputs) Rainfall(path string) (*netcdf.Rainfall, error) {
	f.read = append(f.read, path)
	return f.rain, nil
}

type fakeWriter struct {
	input     inpfile.Input
	inputPath string
	result    inpfile.Result
	err       error
	rainPath  string
}

func (f *fakeWriter) RewriteInput(path string, in inpfile.Input) (inpfile.Result, error) {
	f.inputPath, f.input = path, in
	return f.result, f.err
}

func (f *fakeWriter) WriteRainDat(path string, r *netcdf.Rainfall) (int, error) {
	f.rainPath = path
	return len(r.Times) * len(r.Stations), nil
}

type fakeModel struct {
	args []string
	err  error
}

func (f *fakeModel) Run(_ context.Context, exe, inp, rpt, workDir string) error {
	f.args = []string{exe, inp, rpt, workDir}
	return f.err
}

type fakeResults struct {
	diags  []domain.Diagnostic
	doc    *domain.ReportDocument
	lookup units.Lookup
}

func (f *fakeResults) Diagnostics(string) ([]domain.Diagnostic, error) { return f.diags, nil }
func (f *fakeResults) Report(string) (*domain.ReportDocument, error)   { return f.doc, nil }
func (f *fakeResults) Units(string) (units.Lookup, error)              { return f.lookup, nil }

type fakeDatasets struct {
	written map[string]*dataset.Dataset
}

func (f *fakeDatasets) WriteDataset(path string, ds *dataset.Dataset) (bool, error) {
	if ds.Empty() {
		return false, nil
	}
	if f.written == nil {
		f.written = map[string]*dataset.Dataset{}
	}
	f.written[path] = ds
	return true, nil
}

type fakePublisher struct {
	runID string
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, runID string, doc *domain.ReportDocument) (int, error) {
	f.runID = runID
	if f.err != nil {
		return 0, f.err
	}
	return doc.Len(), nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRunInfo(t *testing.T) *config.RunInfo {
	t.Helper()
	dir := t.TempDir()
	return &config.RunInfo{
		Dir:             dir,
		DiagnosticFile:  filepath.Join(dir, "diagnostics.xml"),
		WorkDir:         filepath.Join(dir, "model"),
		Start:           runStart,
		End:             runStart.Add(36 * time.Hour),
		Time0:           runStart.Add(12 * time.Hour),
		RainfallFile:    filepath.Join(dir, "input", "rain.nc"),
		ModelExecutable: filepath.Join(dir, "bin", "swmm5"),
		InputFile:       filepath.Join(dir, "model", "DonRiver.inp"),
		UnitsLookupFile: filepath.Join(dir, "model", "UDUNITS_lookup.csv"),
		NodesOutputFile: filepath.Join(dir, "output", "DonRiver_output_nodes.nc"),
		LinksOutputFile: filepath.Join(dir, "output", "DonRiver_output_links.nc"),
		ReportFile:      filepath.Join(dir, "model", "DonRiver.rpt"),
		RainDatFile:     filepath.Join(dir, "model", "rain.dat"),
	}
}

func testRain() *netcdf.Rainfall {
	return &netcdf.Rainfall{
		Stations: []string{"G1", "G2"},
		Times:    []time.Time{runStart, runStart.Add(time.Hour)},
		Values:   [][]float64{{1, 2}, {3, 4}},
	}
}

func testDoc() *domain.ReportDocument {
	doc := domain.NewReportDocument()
	doc.Put(&domain.ResultTable{
		Name:    "Node_J1",
		Columns: []string{"Depth"},
		Units:   map[string]string{"Depth": "meters"},
		Rows:    []domain.Row{{Time: runStart, Values: []float64{0.5}}},
	})
	doc.Put(&domain.ResultTable{
		Name:    "Link_C1",
		Columns: []string{"Flow"},
		Units:   map[string]string{"Flow": "CMS"},
		Rows:    []domain.Row{{Time: runStart, Values: []float64{1.5}}, {Time: runStart.Add(time.Minute), Values: []float64{1.6}}},
	})
	return doc
}

func testLookup() units.Lookup {
	return units.Lookup{
		"meters": {{Name: "units", Value: "m"}},
		"CMS":    {{Name: "units", Value: "m3 s-1"}},
	}
}

func writeReport(t *testing.T, ri *config.RunInfo) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(ri.ReportFile), 0o755))
	require.NoError(t, os.WriteFile(ri.ReportFile, []byte("report"), 0o644))
}

// --- pre ---

func TestPre_HappyPath(t *testing.T) {
	ri := testRunInfo(t)
	ri.RatingCurveFile = filepath.Join(ri.Dir, "input", "Dam_rating_curves.xml")
	ri.ControlRulesFile = filepath.Join(ri.Dir, "input", "Control_rules.xml")

	inputs := &fakeInputs{
		curves: []domain.CurveDefinition{{ID: "Dam1", Kind: domain.CurveRating, Points: []domain.CurvePoint{{X: "1", Y: "0"}}}},
		series: []domain.ControlSeries{{
			Parameter: "OUTLET", Location: "OL341", MissingValue: "-999",
			Events: []domain.Event{{Time: runStart, Value: "0.5"}},
		}},
		rain: testRain(),
	}
	writer := &fakeWriter{result: inpfile.Result{OptionsUpdated: 6, Replaced: []string{"Dam1"}, RulesInjected: true}}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ri, pipeline.Stages{Inputs: inputs, Writer: writer}, dataset.DefaultAttributes(), nil, discardLogger(), metrics)
	_, err := p.Execute(context.Background(), pipeline.PhasePre)
	require.NoError(t, err)

	assert.Equal(t, []string{ri.RatingCurveFile, ri.ControlRulesFile, ri.RainfallFile}, inputs.read)
	assert.Equal(t, ri.InputFile, writer.inputPath)
	assert.Equal(t, ri.Start, writer.input.Start)
	assert.Equal(t, ri.End, writer.input.End)
	assert.Equal(t, inputs.curves, writer.input.Curves)
	require.Len(t, writer.input.Rules, 1)
	assert.Equal(t, "OL341-OUTLET", writer.input.Rules[0].Key)
	assert.Contains(t, writer.input.Rules[0].Text, "THEN OUTLET OL341 SETTING = 0.5")
	assert.Equal(t, ri.RainDatFile, writer.rainPath)

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.OptionsUpdated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CurvesReplaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RuleSeries))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RainfallSamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PhaseRuns.WithLabelValues("pre", "success")))
}

func TestPre_NoOptionalInputs(t *testing.T) {
	ri := testRunInfo(t)
	ri.IgnoredTimeSeriesFile = filepath.Join(ri.Dir, "input", "other.xml")
	inputs := &fakeInputs{rain: testRain()}
	writer := &fakeWriter{}

	var logs bytes.Buffer
	p := pipeline.New(ri, pipeline.Stages{Inputs: inputs, Writer: writer}, dataset.DefaultAttributes(), nil,
		slog.New(slog.NewTextHandler(&logs, nil)), observability.NewMetricsForTesting())
	require.NoError(t, p.Pre(context.Background()))

	assert.Equal(t, []string{ri.RainfallFile}, inputs.read)
	assert.Nil(t, writer.input.Curves)
	assert.Nil(t, writer.input.Rules)
	assert.Contains(t, logs.String(), "rating curves will not be updated")
	assert.Contains(t, logs.String(), "not a control rules file")
}

func TestPre_DuplicateRuleSeries(t *testing.T) {
	ri := testRunInfo(t)
	ri.ControlRulesFile = filepath.Join(ri.Dir, "input", "Control_rules.xml")
	s := domain.ControlSeries{Parameter: "OUTLET", Location: "OL341"}
	inputs := &fakeInputs{series: []domain.ControlSeries{s, s}, rain: testRain()}

	p := pipeline.New(ri, pipeline.Stages{Inputs: inputs, Writer: &fakeWriter{}}, dataset.DefaultAttributes(), nil,
		discardLogger(), observability.NewMetricsForTesting())
	err := p.Pre(context.Background())
	require.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestPre_RewriteFails(t *testing.T) {
	ri := testRunInfo(t)
	writer := &fakeWriter{err: domain.ErrConfig}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ri, pipeline.Stages{Inputs: &fakeInputs{rain: testRain()}, Writer: writer}, dataset.DefaultAttributes(), nil,
		discardLogger(), metrics)
	_, err := p.Execute(context.Background(), pipeline.PhasePre)
	require.ErrorIs(t, err, domain.ErrConfig)
	assert.Contains(t, err.Error(), "rewrite input file")
	assert.Empty(t, writer.rainPath)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PhaseRuns.WithLabelValues("pre", "error")))
}

// --- run ---

func TestRun(t *testing.T) {
	ri := testRunInfo(t)
	model := &fakeModel{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ri, pipeline.Stages{Model: model}, dataset.DefaultAttributes(), clockwork.NewFakeClock(), discardLogger(), metrics)
	_, err := p.Execute(context.Background(), pipeline.PhaseRun)
	require.NoError(t, err)

	assert.Equal(t, []string{ri.ModelExecutable, ri.InputFile, ri.ReportFile, ri.WorkDir}, model.args)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ModelRunDuration))
}

func TestRun_ModelFails(t *testing.T) {
	model := &fakeModel{err: errors.Join(domain.ErrModel, errors.New("exit 1"))}
	p := pipeline.New(testRunInfo(t), pipeline.Stages{Model: model}, dataset.DefaultAttributes(), nil,
		discardLogger(), observability.NewMetricsForTesting())
	err := p.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrModel)
}

// --- post ---

func TestPost_HappyPath(t *testing.T) {
	ri := testRunInfo(t)
	writeReport(t, ri)
	warn := domain.Diagnostic{Severity: domain.SeverityWarning, Message: "WARNING 04: minimum elevation drop used for Conduit C1"}
	results := &fakeResults{diags: []domain.Diagnostic{warn}, doc: testDoc(), lookup: testLookup()}
	datasets := &fakeDatasets{}
	publisher := &fakePublisher{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ri, pipeline.Stages{Results: results, Datasets: datasets, Publisher: publisher},
		dataset.DefaultAttributes(), clockwork.NewFakeClockAt(runStart), discardLogger(), metrics)
	diags, err := p.Execute(context.Background(), pipeline.PhasePost)
	require.NoError(t, err)

	if diff := cmp.Diff([]domain.Diagnostic{warn}, diags); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, datasets.written, 2)
	nodes := datasets.written[ri.NodesOutputFile]
	require.NotNil(t, nodes)
	assert.Equal(t, []string{"Node_J1"}, nodes.Stations)
	links := datasets.written[ri.LinksOutputFile]
	require.NotNil(t, links)
	assert.Len(t, links.Times, 2)
	assert.DirExists(t, filepath.Join(ri.Dir, "output"))

	assert.Equal(t, "DonRiver-20200319T080000", publisher.runID)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReportTables))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ReportRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DatasetStations.WithLabelValues("node")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TablesPublished.WithLabelValues("success")))
}

func TestPost_ModelErrorsStopConversion(t *testing.T) {
	ri := testRunInfo(t)
	writeReport(t, ri)
	diags := []domain.Diagnostic{{Severity: domain.SeverityError, Message: "ERROR 138: node J1 has initial depth greater than maximum depth"}}
	datasets := &fakeDatasets{}

	p := pipeline.New(ri, pipeline.Stages{Results: &fakeResults{diags: diags}, Datasets: datasets},
		dataset.DefaultAttributes(), nil, discardLogger(), observability.NewMetricsForTesting())
	got, err := p.Post(context.Background())
	require.ErrorIs(t, err, domain.ErrModel)
	assert.Equal(t, diags, got)
	assert.Empty(t, datasets.written)
}

func TestPost_MissingReport(t *testing.T) {
	p := pipeline.New(testRunInfo(t), pipeline.Stages{Results: &fakeResults{}}, dataset.DefaultAttributes(), nil,
		discardLogger(), observability.NewMetricsForTesting())
	_, err := p.Post(context.Background())
	require.ErrorIs(t, err, domain.ErrModel)
	assert.Contains(t, err.Error(), "was not able to find")
}

func TestPost_UnknownUnit(t *testing.T) {
	ri := testRunInfo(t)
	writeReport(t, ri)
	results := &fakeResults{doc: testDoc(), lookup: units.Lookup{"meters": {{Name: "units", Value: "m"}}}}

	p := pipeline.New(ri, pipeline.Stages{Results: results, Datasets: &fakeDatasets{}}, dataset.DefaultAttributes(), nil,
		discardLogger(), observability.NewMetricsForTesting())
	_, err := p.Post(context.Background())
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestPost_PublishFailureIsNotFatal(t *testing.T) {
	ri := testRunInfo(t)
	writeReport(t, ri)
	results := &fakeResults{doc: testDoc(), lookup: testLookup()}
	metrics := observability.NewMetricsForTesting()

	var logs bytes.Buffer
	p := pipeline.New(ri, pipeline.Stages{Results: results, Datasets: &fakeDatasets{}, Publisher: &fakePublisher{err: errors.New("no brokers")}},
		dataset.DefaultAttributes(), nil, slog.New(slog.NewTextHandler(&logs, nil)), metrics)
	_, err := p.Post(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "publishing table summaries failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TablesPublished.WithLabelValues("error")))
}

func TestExecute_UnknownPhase(t *testing.T) {
	p := pipeline.New(testRunInfo(t), pipeline.Stages{}, dataset.DefaultAttributes(), nil,
		discardLogger(), observability.NewMetricsForTesting())
	_, err := p.Execute(context.Background(), "calibrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase")
}
