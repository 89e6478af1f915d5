// Package netcdf writes the node and link result files FEWS imports and
// reads the FEWS rainfall export, using a pure Go NetCDF implementation.
package netcdf

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
)

// TimeUnits is the CF encoding of the time coordinate in written files.
const TimeUnits = "minutes since 1970-01-01 00:00:00"

const (
	dimTime    = "time"
	dimStation = "station_id"
	dimStrlen  = "station_id_strlen"
)

type namedVar struct {
	name     string
	variable api.Variable
}

// WriteDataset writes ds to path as a classic NetCDF file, replacing any
// existing file. An empty dataset is skipped and reported as false.
func WriteDataset(path string, ds *dataset.Dataset, logger *slog.Logger) (bool, error) {
	if ds.Empty() {
		logger.Warn("no stations for dataset, output file not written", "kind", ds.Kind, "path", path)
		return false, nil
	}

	vars, globals, err := encode(ds)
	if err != nil {
		return false, fmt.Errorf("encode %s dataset: %w", ds.Kind, err)
	}

	// The writer refuses to overwrite.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove previous %s: %w", path, err)
	}
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	for _, v := range vars {
		if err := cw.AddVar(v.name, v.variable); err != nil {
			_ = cw.Close()
			_ = os.Remove(path)
			return false, fmt.Errorf("write variable %s to %s: %w", v.name, path, err)
		}
	}
	if err := cw.AddGlobalAttrs(globals); err != nil {
		_ = cw.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("write global attributes to %s: %w", path, err)
	}
	if err := cw.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	logger.Debug("dataset written", "kind", ds.Kind, "path", path,
		"stations", len(ds.Stations), "times", len(ds.Times), "variables", len(ds.Variables))
	return true, nil
}

// encode converts a dataset into NetCDF variables: the time and station
// coordinates followed by one [time][station] variable per column.
func encode(ds *dataset.Dataset) ([]namedVar, api.AttributeMap, error) {
	vars := make([]namedVar, 0, len(ds.Variables)+2)

	times := make([]float64, len(ds.Times))
	for i, t := range ds.Times {
		times[i] = float64(t.Unix()) / 60
	}
	timeAttrs, err := attributeMap(append(append([]units.Attribute(nil), dataset.TimeAttributes...), units.Attribute{Name: "units", Value: TimeUnits}))
	if err != nil {
		return nil, nil, err
	}
	vars = append(vars, namedVar{dimTime, api.Variable{Values: times, Dimensions: []string{dimTime}, Attributes: timeAttrs}})

	stationAttrs, err := attributeMap(dataset.StationAttributes)
	if err != nil {
		return nil, nil, err
	}
	stations := append([]string(nil), ds.Stations...)
	vars = append(vars, namedVar{dimStation, api.Variable{Values: stations, Dimensions: []string{dimStation, dimStrlen}, Attributes: stationAttrs}})

	for _, v := range ds.Variables {
		attrs, err := attributeMap(v.Attributes)
		if err != nil {
			return nil, nil, err
		}
		vars = append(vars, namedVar{v.Name, api.Variable{Values: v.Values, Dimensions: []string{dimTime, dimStation}, Attributes: attrs}})
	}

	globals, err := attributeMap(ds.Attributes)
	if err != nil {
		return nil, nil, err
	}
	return vars, globals, nil
}

// attributeMap keeps the first position of a repeated name and its last value.
func attributeMap(attrs []units.Attribute) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if _, dup := vals[a.Name]; !dup {
			keys = append(keys, a.Name)
		}
		vals[a.Name] = a.Value
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("attribute map: %w", err)
	}
	return m, nil
}
