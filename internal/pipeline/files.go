package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/fewspi"
	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/netcdf"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/diagnostics"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/inpfile"
	"github.com/couchcryptid/swmm-fews-adapter/internal/report"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
)

// Files implements the file based stages on top of the reader and writer
// packages.
type Files struct {
	logger *slog.Logger
}

// NewFiles creates the file stages.
func NewFiles(logger *slog.Logger) *Files {
	return &Files{logger: logger}
}

func (f *Files) RatingCurves(path string) ([]domain.CurveDefinition, error) {
	return fewspi.ReadRatingCurvesFile(path)
}

func (f *Files) ControlSeries(path string) ([]domain.ControlSeries, error) {
	return fewspi.ReadControlSeriesFile(path)
}

func (f *Files) Rainfall(path string) (*netcdf.Rainfall, error) {
	return netcdf.ReadRainfall(path)
}

func (f *Files) RewriteInput(path string, in inpfile.Input) (inpfile.Result, error) {
	return inpfile.RewriteFile(path, in, f.logger)
}

func (f *Files) WriteRainDat(path string, r *netcdf.Rainfall) (int, error) {
	return netcdf.WriteRainDatFile(path, r, f.logger)
}

func (f *Files) Diagnostics(path string) ([]domain.Diagnostic, error) {
	return diagnostics.ReadFiles(path)
}

func (f *Files) Report(path string) (*domain.ReportDocument, error) {
	return report.ParseFile(path, f.logger)
}

func (f *Files) Units(path string) (units.Lookup, error) {
	return units.ReadFile(path)
}

func (f *Files) WriteDataset(path string, ds *dataset.Dataset) (bool, error) {
	return netcdf.WriteDataset(path, ds, f.logger)
}
