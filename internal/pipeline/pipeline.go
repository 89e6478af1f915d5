// Package pipeline runs the adapter phases FEWS invokes around a model run:
// pre prepares the model inputs, run executes the model and post converts
// the model report into FEWS datasets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/netcdf"
	"github.com/couchcryptid/swmm-fews-adapter/internal/config"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/diagnostics"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/inpfile"
	"github.com/couchcryptid/swmm-fews-adapter/internal/observability"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
	"github.com/jonboulle/clockwork"
)

// Phase names as given on the command line.
const (
	PhasePre  = "pre"
	PhaseRun  = "run"
	PhasePost = "post"
)

// InputReader reads the exports FEWS places next to the run file.
type InputReader interface {
	RatingCurves(path string) ([]domain.CurveDefinition, error)
	ControlSeries(path string) ([]domain.ControlSeries, error)
	Rainfall(path string) (*netcdf.Rainfall, error)
}

// InputWriter writes the model input files.
type InputWriter interface {
	RewriteInput(path string, in inpfile.Input) (inpfile.Result, error)
	WriteRainDat(path string, r *netcdf.Rainfall) (int, error)
}

// ModelRunner executes the model.
type ModelRunner interface {
	Run(ctx context.Context, exe, inp, rpt, workDir string) error
}

// ResultReader reads the model outputs and the units lookup.
type ResultReader interface {
	Diagnostics(path string) ([]domain.Diagnostic, error)
	Report(path string) (*domain.ReportDocument, error)
	Units(path string) (units.Lookup, error)
}

// DatasetWriter writes a dataset file, reporting false when it was skipped.
type DatasetWriter interface {
	WriteDataset(path string, ds *dataset.Dataset) (bool, error)
}

// ResultPublisher sends table summaries downstream.
type ResultPublisher interface {
	Publish(ctx context.Context, runID string, doc *domain.ReportDocument) (int, error)
}

// Stages are the collaborators of the phases. Publisher may be nil.
type Stages struct {
	Inputs    InputReader
	Writer    InputWriter
	Model     ModelRunner
	Results   ResultReader
	Datasets  DatasetWriter
	Publisher ResultPublisher
}

// Pipeline runs the adapter phases for one run file.
type Pipeline struct {
	run     *config.RunInfo
	stages  Stages
	attrs   dataset.GlobalAttributes
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(run *config.RunInfo, stages Stages, attrs dataset.GlobalAttributes, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{run: run, stages: stages, attrs: attrs, clock: clock, logger: logger, metrics: metrics}
}

// Execute runs the named phase. The returned diagnostics come from the
// model report and are only set by post.
func (p *Pipeline) Execute(ctx context.Context, phase string) ([]domain.Diagnostic, error) {
	var run func(context.Context) ([]domain.Diagnostic, error)
	switch phase {
	case PhasePre:
		run = func(ctx context.Context) ([]domain.Diagnostic, error) { return nil, p.Pre(ctx) }
	case PhaseRun:
		run = func(ctx context.Context) ([]domain.Diagnostic, error) { return nil, p.Run(ctx) }
	case PhasePost:
		run = p.Post
	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}

	start := p.clock.Now()
	diags, err := run(ctx)
	p.metrics.PhaseDuration.WithLabelValues(phase).Observe(p.clock.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.metrics.PhaseRuns.WithLabelValues(phase, outcome).Inc()
	return diags, err
}

// Pre updates the model input file from the FEWS exports and converts the
// rainfall NetCDF into the rain gauge file.
func (p *Pipeline) Pre(_ context.Context) error {
	p.logger.Info("##### Running Pre-Adapter EPA-SWMM Delft-FEWS", "run_info", p.run.Dir)

	var curves []domain.CurveDefinition
	if p.run.RatingCurveFile != "" {
		var err error
		if curves, err = p.stages.Inputs.RatingCurves(p.run.RatingCurveFile); err != nil {
			return fmt.Errorf("read rating curves: %w", err)
		}
	} else {
		p.logger.Info("no rating curve file provided in the run info, rating curves will not be updated")
	}

	var rules []domain.RuleBlock
	switch {
	case p.run.ControlRulesFile != "":
		series, err := p.stages.Inputs.ControlSeries(p.run.ControlRulesFile)
		if err != nil {
			return fmt.Errorf("read control rules: %w", err)
		}
		if rules, err = inpfile.RenderRules(series); err != nil {
			return fmt.Errorf("render control rules: %w", err)
		}
	case p.run.IgnoredTimeSeriesFile != "":
		p.logger.Info("time series file is not a control rules file and is ignored",
			"path", p.run.IgnoredTimeSeriesFile, "expected", config.ControlRulesFileName)
	default:
		p.logger.Info("no control rule file provided in the run info, control rules will not be updated")
	}

	res, err := p.stages.Writer.RewriteInput(p.run.InputFile, inpfile.Input{
		Start:  p.run.Start,
		End:    p.run.End,
		Curves: curves,
		Rules:  rules,
	})
	if err != nil {
		return fmt.Errorf("rewrite input file: %w", err)
	}
	p.metrics.OptionsUpdated.Add(float64(res.OptionsUpdated))
	p.metrics.CurvesReplaced.Add(float64(len(res.Replaced)))
	p.metrics.CurvesUnmatched.Add(float64(len(res.Unmatched)))
	if res.RulesInjected {
		p.metrics.RuleSeries.Add(float64(len(rules)))
	}
	p.logger.Info("input file updated", "path", p.run.InputFile,
		"options", res.OptionsUpdated, "curves", len(res.Replaced), "rules", len(rules))

	rain, err := p.stages.Inputs.Rainfall(p.run.RainfallFile)
	if err != nil {
		return fmt.Errorf("read rainfall: %w", err)
	}
	n, err := p.stages.Writer.WriteRainDat(p.run.RainDatFile, rain)
	if err != nil {
		return fmt.Errorf("write rain data: %w", err)
	}
	p.metrics.RainfallSamples.Add(float64(n))
	p.logger.Info("converted the NetCDF rainfall file to EPASWMM .DAT format",
		"from", p.run.RainfallFile, "to", p.run.RainDatFile, "samples", n)

	p.logger.Info("##### Completed Pre-Adapter EPA-SWMM Delft-FEWS")
	return nil
}

// Run executes the model in the work directory.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("##### Running EPA-SWMM model", "run_info", p.run.Dir)
	p.logger.Info("model executable being used to run SWMM model", "path", p.run.ModelExecutable)

	start := p.clock.Now()
	err := p.stages.Model.Run(ctx, p.run.ModelExecutable, p.run.InputFile, p.run.ReportFile, p.run.WorkDir)
	p.metrics.ModelRunDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("run model: %w", err)
	}
	return nil
}

// Post checks the model report for errors and converts its time series into
// the node and link datasets. The report's diagnostics are returned even
// when the phase fails so they reach the diagnostics file.
func (p *Pipeline) Post(ctx context.Context) ([]domain.Diagnostic, error) {
	p.logger.Info("##### Running Post-Adapter EPA-SWMM Delft-FEWS", "run_info", p.run.Dir)

	rpt := p.run.ReportFile
	if _, err := os.Stat(rpt); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: was not able to find %s", domain.ErrModel, rpt)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrModel, err)
	}

	p.logger.Info("checking SWMM for warnings and errors", "path", rpt)
	modelDiags, err := p.stages.Results.Diagnostics(rpt)
	if err != nil {
		return nil, fmt.Errorf("read model diagnostics: %w", err)
	}
	if diagnostics.HasErrors(modelDiags) {
		p.logger.Error("errors were detected in the model simulation, see the diagnostics file for more details")
		return modelDiags, fmt.Errorf("%w: errors were detected in the model simulation", domain.ErrModel)
	}
	p.logger.Info("no SWMM errors found, proceeding with parsing the report", "path", rpt)

	lookup, err := p.stages.Results.Units(p.run.UnitsLookupFile)
	if err != nil {
		return modelDiags, fmt.Errorf("read units lookup: %w", err)
	}

	doc, err := p.stages.Results.Report(rpt)
	if err != nil {
		return modelDiags, fmt.Errorf("parse report: %w", err)
	}
	rows := 0
	for _, t := range doc.Ordered() {
		rows += len(t.Rows)
	}
	p.metrics.ReportTables.Add(float64(doc.Len()))
	p.metrics.ReportRows.Add(float64(rows))
	p.logger.Info("report parsed", "tables", doc.Len(), "rows", rows)

	nodes, links, err := dataset.NewAssembler(lookup, p.attrs, p.clock, p.logger).Build(doc)
	if err != nil {
		return modelDiags, fmt.Errorf("build datasets: %w", err)
	}
	for _, out := range []struct {
		ds   *dataset.Dataset
		path string
	}{{nodes, p.run.NodesOutputFile}, {links, p.run.LinksOutputFile}} {
		p.logger.Info("writing netCDF output file", "kind", out.ds.Kind, "path", out.path)
		if err := os.MkdirAll(filepath.Dir(out.path), 0o755); err != nil {
			return modelDiags, fmt.Errorf("create output directory: %w", err)
		}
		written, err := p.stages.Datasets.WriteDataset(out.path, out.ds)
		if err != nil {
			return modelDiags, fmt.Errorf("write %s dataset: %w", out.ds.Kind, err)
		}
		if written {
			p.metrics.DatasetStations.WithLabelValues(string(out.ds.Kind)).Set(float64(len(out.ds.Stations)))
		}
	}

	p.publish(ctx, doc)
	p.logger.Info("###### Post-Adapter process completed successfully!")
	return modelDiags, nil
}

// publish is best effort; FEWS does not depend on the summaries.
func (p *Pipeline) publish(ctx context.Context, doc *domain.ReportDocument) {
	if p.stages.Publisher == nil {
		return
	}
	n, err := p.stages.Publisher.Publish(ctx, p.RunID(), doc)
	if err != nil {
		p.metrics.TablesPublished.WithLabelValues("error").Add(float64(doc.Len()))
		p.logger.Warn("publishing table summaries failed", "error", err)
		return
	}
	p.metrics.TablesPublished.WithLabelValues("success").Add(float64(n))
}

// RunID identifies a forecast run by model and forecast time, e.g.
// "DonRiver-20200319T080000".
func (p *Pipeline) RunID() string {
	stem := strings.TrimSuffix(filepath.Base(p.run.InputFile), filepath.Ext(p.run.InputFile))
	return stem + "-" + p.run.Time0.Format("20060102T150405")
}
