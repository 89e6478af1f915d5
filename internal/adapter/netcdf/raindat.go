package netcdf

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

const rainDatHeader = ";Rainfall      \n"

// WriteRainDat writes rainfall as a SWMM rain gauge data file: one
// "station year month day hour minute value" line per sample, grouped by
// station. Missing samples are left out.
func WriteRainDat(w io.Writer, r *Rainfall, logger *slog.Logger) (int, error) {
	bw := bufio.NewWriter(w)
	bw.WriteString(rainDatHeader)
	written, missing := 0, 0
	for s, station := range r.Stations {
		for t, ts := range r.Times {
			v := r.Values[s][t]
			if math.IsNaN(v) {
				missing++
				continue
			}
			ts = ts.UTC()
			fmt.Fprintf(bw, "%s %d %d %d %d %d %s\n",
				station, ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), formatValue(v))
			written++
		}
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("write rain data: %w", err)
	}
	if missing > 0 {
		logger.Warn("missing rainfall samples left out of the rain data file", "missing", missing)
	}
	return written, nil
}

// WriteRainDatFile writes the rain data file at path, creating its directory.
func WriteRainDatFile(path string, r *Rainfall, logger *slog.Logger) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create rain data directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create rain data file: %w", err)
	}
	n, err := WriteRainDat(f, r, logger)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close rain data file: %w", cerr)
	}
	return n, err
}

// formatValue prints the shortest decimal form, keeping ".0" on whole numbers.
func formatValue(v float64) string {
	s := decimal.NewFromFloat(v).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
