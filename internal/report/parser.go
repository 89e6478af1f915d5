// Package report parses the time series section of an EPA-SWMM text report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

const (
	tableMarker    = "<<<"
	variableMarker = "***"
	analysisBegun  = "Analysis begun on"
	analysisEnded  = "Analysis ended on"
	elapsedTime    = "Total elapsed time"
)

// Boilerplate line counts between the last data row and the line that
// closes a table.
const (
	markerEndOffset   = 3
	variableEndOffset = 5
	footerEndOffset   = 3
)

// ParseFile reads and parses the report at path.
func ParseFile(path string, logger *slog.Logger) (*domain.ReportDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	doc, err := Parse(lines, logger)
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return doc, nil
}

// ReadLines splits r into lines without their terminators.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// pendingTable is a table whose marker has been seen but whose rows are not
// materialized yet.
type pendingTable struct {
	table *domain.ResultTable
	done  bool
}

// parser holds the forward-scan state.
type parser struct {
	lines   []string
	logger  *slog.Logger
	doc     *domain.ReportDocument
	current *pendingTable
	last    *pendingTable // table whose body was most recently scanned
	inData  bool
	varSwap bool
}

// Parse scans report lines once and returns every time series table.
func Parse(lines []string, logger *slog.Logger) (*domain.ReportDocument, error) {
	p := &parser{lines: lines, logger: logger, doc: domain.NewReportDocument()}
	if err := p.scan(); err != nil {
		return nil, err
	}
	if p.current != nil && !p.current.done {
		return nil, fmt.Errorf("%w: table %s starting at line %d is never closed",
			domain.ErrParse, p.current.table.Name, p.current.table.StartLine-2)
	}
	if p.doc.Len() == 0 {
		return nil, domain.ErrEmptyReport
	}
	logger.Debug("report parsed", "tables", p.doc.Len())
	return p.doc, nil
}

func (p *parser) scan() error {
	for i, line := range p.lines {
		switch {
		case strings.Contains(line, tableMarker):
			if err := p.openTable(i); err != nil {
				return err
			}
		case !p.inData:
		case strings.Contains(line, variableMarker) && p.varSwap:
			// Closing line of a banner; the table is already finalized.
		case strings.Contains(line, variableMarker):
			if err := p.finalize(p.last, i-variableEndOffset); err != nil {
				return err
			}
			p.varSwap = true
		case strings.Contains(line, analysisBegun):
			p.logger.Info("EPASWMM Model: " + strings.TrimSpace(line))
			if err := p.finalize(p.last, i-footerEndOffset); err != nil {
				return err
			}
		case strings.Contains(line, analysisEnded):
			p.logger.Info("EPASWMM Model: " + strings.TrimSpace(line))
		case strings.Contains(line, elapsedTime):
			p.logger.Info("EPASWMM Model: " + strings.TrimSpace(line))
			return nil
		default:
			p.last = p.current
		}
	}
	return nil
}

// openTable starts the table whose marker is at line i and closes the
// previous one when the marker is not a variable continuation.
func (p *parser) openTable(i int) error {
	tbl, err := p.readHeader(i)
	if err != nil {
		return err
	}
	p.current = &pendingTable{table: tbl}
	p.logger.Debug("report table found", "table", tbl.Name, "line", i+1)

	switch {
	case !p.inData:
		p.inData = true
	case p.varSwap:
		p.varSwap = false
	default:
		return p.finalize(p.last, i-markerEndOffset)
	}
	return nil
}

// readHeader reads the marker at line i and the header and units lines that
// follow it.
func (p *parser) readHeader(i int) (*domain.ResultTable, error) {
	if i+3 >= len(p.lines) {
		return nil, fmt.Errorf("%w: line %d: table marker without header and units lines", domain.ErrParse, i+1)
	}
	name := tableName(p.lines[i])
	header := headerFields(p.lines[i+2])
	units := headerFields(p.lines[i+3])

	var template []string
	if len(header) > len(units) {
		template = header
		header = header[2:]
	} else {
		if len(units) < 2 {
			return nil, fmt.Errorf("%w: line %d: units line of %s lacks date and time labels", domain.ErrParse, i+4, name)
		}
		template = append(append([]string{}, units[:2]...), header...)
		units = units[2:]
	}

	if len(header) != len(units) {
		return nil, fmt.Errorf("%w: line %d: table %s has %d columns but %d units",
			domain.ErrParse, i+3, name, len(header), len(units))
	}
	unitMap := make(map[string]string, len(header))
	for k, col := range header {
		if _, dup := unitMap[col]; dup {
			return nil, fmt.Errorf("%w: line %d: table %s repeats column %s", domain.ErrParse, i+3, name, col)
		}
		unitMap[col] = units[k]
	}

	return &domain.ResultTable{
		Name:      name,
		Columns:   header,
		Units:     unitMap,
		Template:  template,
		StartLine: i + 3,
	}, nil
}

// finalize materializes the rows of t, ending at the exclusive line end.
func (p *parser) finalize(t *pendingTable, end int) error {
	if t == nil {
		return nil
	}
	tbl := t.table
	tbl.EndLine = end

	from, to := tbl.StartLine+2, end-1
	if to > len(p.lines) {
		return fmt.Errorf("%w: table %s extends past the end of the report", domain.ErrParse, tbl.Name)
	}
	var body []string
	if to > from {
		body = p.lines[from:to]
	}
	rows, err := buildRows(body, from, tbl.Template)
	if err != nil {
		return fmt.Errorf("table %s: %w", tbl.Name, err)
	}
	tbl.Rows = rows
	t.done = true
	p.doc.Put(tbl)
	return nil
}

func tableName(line string) string {
	name := strings.TrimSpace(line)
	name = strings.Trim(name, "<")
	name = strings.Trim(name, ">")
	name = strings.TrimSpace(name)
	return strings.ReplaceAll(name, " ", "_")
}

func headerFields(line string) []string {
	return strings.Fields(strings.TrimRight(strings.TrimSpace(line), "/"))
}
