// Command validate checks a model report and input file offline, without
// FEWS: it parses the report, checks its diagnostics and unit coverage, and
// dry-runs the input file rewrite with optional FEWS rating curves and
// control rules.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -rpt model/DonRiver.rpt \
//	  -units model/UDUNITS_lookup.csv \
//	  -inp model/DonRiver.inp \
//	  -curves input/Dam_rating_curves.xml \
//	  -rules input/Control_rules.xml
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/fewspi"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/diagnostics"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/inpfile"
	"github.com/couchcryptid/swmm-fews-adapter/internal/report"
	"github.com/couchcryptid/swmm-fews-adapter/internal/units"
	"github.com/jonboulle/clockwork"
)

// Fixed so dataset attributes are reproducible between runs.
var validationTime = time.Date(2020, time.March, 19, 0, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	rpt, units, inp, curves, rules string
	start, end                     time.Time
}

func main() {
	rpt := flag.String("rpt", "", "path to the model report (.rpt)")
	unitsPath := flag.String("units", "", "path to the UDUNITS lookup CSV")
	inp := flag.String("inp", "", "path to the model input file (.inp) to dry-run the rewrite on")
	curves := flag.String("curves", "", "path to a FEWS PI rating curve file")
	rules := flag.String("rules", "", "path to a FEWS PI control rules time series file")
	start := flag.String("start", "2020-03-18T20:00:00Z", "simulation start for the dry-run rewrite (RFC 3339)")
	end := flag.String("end", "2020-03-20T08:00:00Z", "simulation end for the dry-run rewrite (RFC 3339)")
	flag.Parse()

	if *rpt == "" && *inp == "" {
		flag.Usage()
		os.Exit(1)
	}
	opts := options{rpt: *rpt, units: *unitsPath, inp: *inp, curves: *curves, rules: *rules}
	var err error
	if opts.start, err = time.Parse(time.RFC3339, *start); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: -start: %v\n", err)
		os.Exit(1)
	}
	if opts.end, err = time.Parse(time.RFC3339, *end); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: -end: %v\n", err)
		os.Exit(1)
	}

	if code := run(opts, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(opts options, out io.Writer) int {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Fprintln(out, "=== SWMM Adapter Offline Validation ===")
	fmt.Fprintln(out)

	var phases []*phase
	if opts.rpt != "" {
		doc, p := validateReport(opts.rpt, logger)
		phases = append(phases, p, validateReportDiagnostics(opts.rpt))
		if opts.units != "" && doc != nil {
			phases = append(phases, validateUnits(doc, opts.units, logger))
		}
	}
	if opts.inp != "" {
		phases = append(phases, validateRewrite(opts, logger))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}
	if logs.Len() > 0 {
		fmt.Fprintf(out, "\n--- warnings ---\n%s", logs.String())
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateReport parses the report and checks each table's shape.
func validateReport(path string, logger *slog.Logger) (*domain.ReportDocument, *phase) {
	p := &phase{name: "Report parse"}
	doc, err := report.ParseFile(path, logger)
	if err != nil {
		p.errorf("parse %s: %v", path, err)
		return nil, p
	}
	for _, t := range doc.Ordered() {
		if len(t.Rows) == 0 {
			p.errorf("%s: no data rows", t.Name)
		}
		for i := 1; i < len(t.Rows); i++ {
			if !t.Rows[i].Time.After(t.Rows[i-1].Time) {
				p.errorf("%s: row %d at %s is not after the previous row", t.Name, i+1, t.Rows[i].Time.Format(time.RFC3339))
				break
			}
		}
		if t.Kind() == domain.KindOther {
			continue
		}
		for _, c := range t.Columns {
			if t.Units[c] == "" {
				p.errorf("%s: column %s has no unit", t.Name, c)
			}
		}
	}
	return doc, p
}

func validateReportDiagnostics(path string) *phase {
	p := &phase{name: "Report diagnostics"}
	diags, err := diagnostics.ReadFiles(path)
	if err != nil {
		p.errorf("read %s: %v", path, err)
		return p
	}
	for _, d := range diags {
		if d.Severity <= domain.SeverityError {
			p.errorf("%s", d.Message)
		}
	}
	return p
}

// validateUnits builds the node and link datasets as post would.
func validateUnits(doc *domain.ReportDocument, path string, logger *slog.Logger) *phase {
	p := &phase{name: "Units coverage and dataset assembly"}
	lookup, err := units.ReadFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	asm := dataset.NewAssembler(lookup, dataset.DefaultAttributes(), clockwork.NewFakeClockAt(validationTime), logger)
	nodes, links, err := asm.Build(doc)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if nodes.Empty() && links.Empty() {
		p.errorf("report has no node or link tables")
	}
	return p
}

// validateRewrite runs the input file rewrite into memory.
func validateRewrite(opts options, logger *slog.Logger) *phase {
	p := &phase{name: "Input file rewrite (dry run)"}
	in := inpfile.Input{Start: opts.start, End: opts.end}

	if opts.curves != "" {
		curves, err := fewspi.ReadRatingCurvesFile(opts.curves)
		if err != nil {
			p.errorf("rating curves: %v", err)
		}
		in.Curves = curves
	}
	if opts.rules != "" {
		series, err := fewspi.ReadControlSeriesFile(opts.rules)
		if err != nil {
			p.errorf("control rules: %v", err)
		}
		if in.Rules, err = inpfile.RenderRules(series); err != nil {
			p.errorf("control rules: %v", err)
		}
	}
	if !p.passed() {
		return p
	}

	f, err := os.Open(opts.inp)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	defer f.Close()

	res, err := inpfile.Rewrite(f, io.Discard, in, logger)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if res.OptionsUpdated == 0 {
		p.errorf("no simulation window options found in [OPTIONS]")
	}
	for _, id := range res.Unmatched {
		p.errorf("curve %s has no match in [CURVES]", id)
	}
	return p
}
