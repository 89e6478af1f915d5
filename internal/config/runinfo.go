package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/fewspi"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

// Property keys the adapter requires in the run file.
const (
	PropModelExecutable = "model-executable"
	PropInputFile       = "swmm_input_file"
)

// ControlRulesFileName is the only time series file treated as control rules.
const ControlRulesFileName = "Control_rules.xml"

// RunInfo is the resolved content of a FEWS run_info.xml file. All paths
// are absolute or relative to the process working directory.
type RunInfo struct {
	Dir string // directory holding the run file

	DiagnosticFile string
	WorkDir        string

	Start           time.Time
	End             time.Time
	Time0           time.Time
	LastObservation time.Time // zero when absent
	TimeZone        float64

	RatingCurveFile  string // empty when FEWS supplies no rating curves
	ControlRulesFile string // empty when FEWS supplies no control rules
	// IgnoredTimeSeriesFile is a time series file that is not named
	// Control_rules.xml and therefore not read.
	IgnoredTimeSeriesFile string
	RainfallFile          string

	Properties      map[string]string
	ModelExecutable string
	InputFile       string

	UnitsLookupFile string
	NodesOutputFile string
	LinksOutputFile string
	ReportFile      string
	RainDatFile     string
}

// LogDir is where the per-phase adapter logs are written.
func (r *RunInfo) LogDir() string { return filepath.Join(r.Dir, "log") }

type piDateTime struct {
	Date string `xml:"date,attr"`
	Time string `xml:"time,attr"`
}

type piProperty struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type runInfoXML struct {
	DiagnosticFile  string       `xml:"outputDiagnosticFile"`
	WorkDir         string       `xml:"workDir"`
	Start           *piDateTime  `xml:"startDateTime"`
	End             *piDateTime  `xml:"endDateTime"`
	Time0           *piDateTime  `xml:"time0"`
	LastObservation *piDateTime  `xml:"lastObservationDateTime"`
	TimeZone        string       `xml:"timeZone"`
	RatingCurveFile string       `xml:"inputRatingCurveFile"`
	TimeSeriesFile  string       `xml:"inputTimeSeriesFile"`
	NetcdfFile      string       `xml:"inputNetcdfFile"`
	Properties      []piProperty `xml:"properties>string"`
}

// LoadRunInfo reads and validates the run file at path. When validation
// fails after the diagnostics file is known, the partially resolved RunInfo
// is returned with the error so the caller can still report it to FEWS.
func LoadRunInfo(path string) (*RunInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read run info: %w", domain.ErrConfig, err)
	}
	var raw runInfoXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse run info %s: %w", domain.ErrConfig, path, err)
	}
	ri, err := resolve(filepath.Dir(path), &raw)
	if err != nil {
		return ri, fmt.Errorf("run info %s: %w", path, err)
	}
	return ri, nil
}

func resolve(dir string, raw *runInfoXML) (*RunInfo, error) {
	ri := &RunInfo{Dir: dir, Properties: make(map[string]string)}
	abs := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	if ri.DiagnosticFile = abs(raw.DiagnosticFile); ri.DiagnosticFile == "" {
		return nil, missing("outputDiagnosticFile")
	}
	ri.WorkDir = abs(raw.WorkDir)
	if err := requireDir("workDir", ri.WorkDir); err != nil {
		return ri, err
	}

	var err error
	if ri.Start, err = required("startDateTime", raw.Start); err != nil {
		return ri, err
	}
	if ri.End, err = required("endDateTime", raw.End); err != nil {
		return ri, err
	}
	if ri.End.Before(ri.Start) {
		return ri, fmt.Errorf("%w: endDateTime %s is before startDateTime %s", domain.ErrConfig, ri.End, ri.Start)
	}
	if ri.Time0, err = required("time0", raw.Time0); err != nil {
		return ri, err
	}
	if raw.LastObservation != nil {
		if ri.LastObservation, err = fewspi.ParseDateTime(raw.LastObservation.Date, raw.LastObservation.Time); err != nil {
			return ri, fmt.Errorf("lastObservationDateTime: %w", err)
		}
	}
	if tz := strings.TrimSpace(raw.TimeZone); tz != "" {
		if ri.TimeZone, err = strconv.ParseFloat(tz, 64); err != nil {
			return ri, fmt.Errorf("%w: invalid timeZone %q", domain.ErrConfig, tz)
		}
	}

	if raw.RatingCurveFile != "" {
		ri.RatingCurveFile = abs(raw.RatingCurveFile)
		if err := requireFile("inputRatingCurveFile", ri.RatingCurveFile); err != nil {
			return ri, err
		}
	}
	if raw.TimeSeriesFile != "" {
		ts := abs(raw.TimeSeriesFile)
		if filepath.Base(ts) == ControlRulesFileName {
			if err := requireFile("inputTimeSeriesFile", ts); err != nil {
				return ri, err
			}
			ri.ControlRulesFile = ts
		} else {
			ri.IgnoredTimeSeriesFile = ts
		}
	}
	ri.RainfallFile = abs(raw.NetcdfFile)
	if err := requireFile("inputNetcdfFile", ri.RainfallFile); err != nil {
		return ri, err
	}

	for _, p := range raw.Properties {
		value := abs(p.Value)
		if err := requireFile("property "+p.Key, value); err != nil {
			return ri, err
		}
		ri.Properties[p.Key] = value
	}
	if ri.ModelExecutable = ri.Properties[PropModelExecutable]; ri.ModelExecutable == "" {
		return ri, missing("property " + PropModelExecutable)
	}
	if ri.InputFile = ri.Properties[PropInputFile]; ri.InputFile == "" {
		return ri, missing("property " + PropInputFile)
	}

	stem := strings.TrimSuffix(filepath.Base(ri.InputFile), filepath.Ext(ri.InputFile))
	ri.UnitsLookupFile = filepath.Join(dir, "model", "UDUNITS_lookup.csv")
	if err := requireFile("units lookup", ri.UnitsLookupFile); err != nil {
		return ri, err
	}
	ri.NodesOutputFile = filepath.Join(dir, "output", stem+"_output_nodes.nc")
	ri.LinksOutputFile = filepath.Join(dir, "output", stem+"_output_links.nc")
	ri.ReportFile = filepath.Join(dir, "model", stem+".rpt")
	ri.RainDatFile = filepath.Join(dir, "model", "rain.dat")
	return ri, nil
}

func required(name string, v *piDateTime) (time.Time, error) {
	if v == nil {
		return time.Time{}, missing(name)
	}
	t, err := fewspi.ParseDateTime(v.Date, v.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s is required", domain.ErrConfig, name)
}

func requireFile(name, path string) error {
	if path == "" {
		return missing(name)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s %s does not exist", domain.ErrConfig, name, path)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrConfig, name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", domain.ErrConfig, name, path)
	}
	return nil
}

func requireDir(name, path string) error {
	if path == "" {
		return missing(name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConfig, name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s %s is not a directory", domain.ErrConfig, name, path)
	}
	return nil
}
