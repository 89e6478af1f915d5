package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/shopspring/decimal"
)

// Variable names of the FEWS rainfall export.
const (
	VarPrecipitation = "P"
	VarTime          = "time"
	VarStationID     = "station_id"
)

// Rainfall is a precipitation grid exported by FEWS.
type Rainfall struct {
	Stations []string
	Times    []time.Time
	Values   [][]float64 // [station][time], NaN where missing
}

// variableSource is the part of a NetCDF group the reader uses.
type variableSource interface {
	GetVariable(name string) (*api.Variable, error)
}

// ReadRainfall reads the rainfall export at path.
func ReadRainfall(path string) (*Rainfall, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open rainfall %s: %w", domain.ErrConfig, path, err)
	}
	defer nc.Close()
	r, err := readRainfall(nc)
	if err != nil {
		return nil, fmt.Errorf("rainfall %s: %w", path, err)
	}
	return r, nil
}

func readRainfall(src variableSource) (*Rainfall, error) {
	timeVar, err := src.GetVariable(VarTime)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarTime, err)
	}
	times, err := decodeTimes(timeVar)
	if err != nil {
		return nil, err
	}

	stationVar, err := src.GetVariable(VarStationID)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarStationID, err)
	}
	stations, err := decodeStrings(stationVar.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarStationID, err)
	}

	pVar, err := src.GetVariable(VarPrecipitation)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarPrecipitation, err)
	}
	values, err := decodeGrid(pVar, len(times), len(stations))
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarPrecipitation, err)
	}
	return &Rainfall{Stations: stations, Times: times, Values: values}, nil
}

func decodeTimes(v *api.Variable) ([]time.Time, error) {
	unitsAttr, _ := attribute(v, "units")
	unitsText, _ := unitsAttr.(string)
	step, ref, err := parseTimeUnits(unitsText)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarTime, err)
	}
	offsets, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %w", domain.ErrConfig, VarTime, err)
	}
	times := make([]time.Time, len(offsets))
	for i, o := range offsets {
		times[i] = ref.Add(time.Duration(math.Round(o * float64(step))))
	}
	return times, nil
}

var refLayouts = []string{
	"2006-01-02 15:04:05.0 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// parseTimeUnits decodes CF time units such as
// "minutes since 1970-01-01 00:00:00.0 +0000".
func parseTimeUnits(s string) (time.Duration, time.Time, error) {
	unit, refText, ok := strings.Cut(strings.TrimSpace(s), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q are not of the form <unit> since <reference>", s)
	}
	var step time.Duration
	switch strings.ToLower(unit) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute", "min":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", unit)
	}
	refText = strings.TrimSpace(refText)
	for _, layout := range refLayouts {
		if ref, err := time.Parse(layout, refText); err == nil {
			return step, ref.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unparseable time reference %q", refText)
}

// decodeGrid reorders the precipitation values to [station][time]. Extra
// axes such as analysis_time must have length one.
func decodeGrid(v *api.Variable, nTimes, nStations int) ([][]float64, error) {
	fill := math.NaN()
	for _, name := range []string{"_FillValue", "missing_value"} {
		if raw, ok := attribute(v, name); ok {
			if f, err := scalar(raw); err == nil {
				fill = f
				break
			}
		}
	}

	shape := shapeOf(v.Values)
	if len(shape) != len(v.Dimensions) {
		return nil, fmt.Errorf("values have %d axes but %d dimensions are named", len(shape), len(v.Dimensions))
	}
	timeAxis, stationAxis := -1, -1
	for i, d := range v.Dimensions {
		switch {
		case d == "time":
			timeAxis = i
		case strings.HasPrefix(d, "station"):
			stationAxis = i
		default:
			if shape[i] != 1 {
				return nil, fmt.Errorf("dimension %s has length %d, only one is supported", d, shape[i])
			}
		}
	}
	if timeAxis < 0 || stationAxis < 0 {
		return nil, fmt.Errorf("dimensions %v lack time or station", v.Dimensions)
	}
	if shape[timeAxis] != nTimes || shape[stationAxis] != nStations {
		return nil, fmt.Errorf("shape %v does not match %d times and %d stations", shape, nTimes, nStations)
	}

	flat, err := flatten(v.Values)
	if err != nil {
		return nil, err
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}

	grid := make([][]float64, nStations)
	for s := range grid {
		grid[s] = make([]float64, nTimes)
		for t := range grid[s] {
			val := flat[s*strides[stationAxis]+t*strides[timeAxis]]
			if val == fill || math.IsNaN(val) {
				val = math.NaN()
			}
			grid[s][t] = val
		}
	}
	return grid, nil
}

func attribute(v *api.Variable, name string) (any, bool) {
	if v.Attributes == nil {
		return nil, false
	}
	return v.Attributes.Get(name)
}

func shapeOf(values any) []int {
	var shape []int
	rv := reflect.ValueOf(values)
	for rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
	}
	return shape
}

// flatten returns the numeric values of a nested slice in row-major order.
// float32 values keep their shortest decimal form.
func flatten(values any) ([]float64, error) {
	var out []float64
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		if rv.Kind() == reflect.Slice {
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		f, err := scalar(rv.Interface())
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}
	if err := walk(reflect.ValueOf(values)); err != nil {
		return nil, err
	}
	return out, nil
}

func scalar(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return float64(n), nil
		}
		return decimal.NewFromFloat32(n).InexactFloat64(), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case []float32:
		if len(n) == 1 {
			return scalar(n[0])
		}
	case []float64:
		if len(n) == 1 {
			return n[0], nil
		}
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func decodeStrings(values any) ([]string, error) {
	switch v := values.(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimRight(s, "\x00 ")
		}
		return out, nil
	case [][]byte:
		out := make([]string, len(v))
		for i, b := range v {
			out[i] = strings.TrimRight(string(b), "\x00 ")
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported station id type %T", values)
}
