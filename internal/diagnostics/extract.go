// Package diagnostics collects severity-tagged lines from the adapter log and
// the SWMM report and writes them as a FEWS PI diagnostics file.
package diagnostics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

var keywords = []string{"ERROR", "WARNING", "DEBUG", "INFO", "FATAL"}

// Checked in this order; the last match wins, so "FATAL ERROR" is fatal.
var levelMarkers = []struct {
	marker   string
	severity domain.Severity
}{
	{"DEBUG", domain.SeverityDebug},
	{"INFO", domain.SeverityInfo},
	{"WARN", domain.SeverityWarning},
	{"ERROR", domain.SeverityError},
	{"FATAL", domain.SeverityFatal},
}

type entry struct {
	level       string
	description string
	hasColon    bool
}

// Extract returns the diagnostics found in r, deduplicated and in the order
// they first appear.
func Extract(r io.Reader) ([]domain.Diagnostic, error) {
	entries, err := scan(r)
	if err != nil {
		return nil, err
	}
	return toDiagnostics(dedupe(entries)), nil
}

// ReadFiles extracts diagnostics from every file in turn, deduplicating
// across all of them. A missing file is an error.
func ReadFiles(paths ...string) ([]domain.Diagnostic, error) {
	var all []entry
	for _, p := range paths {
		entries, err := scanFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return toDiagnostics(dedupe(all)), nil
}

func scanFile(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics source: %w", err)
	}
	defer f.Close()
	entries, err := scan(f)
	if err != nil {
		return nil, fmt.Errorf("read diagnostics source %s: %w", path, err)
	}
	return entries, nil
}

func scan(r io.Reader) ([]entry, error) {
	var entries []entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !hasKeyword(line) {
			continue
		}
		line = strings.TrimSpace(line)
		level, desc, ok := strings.Cut(line, ":")
		entries = append(entries, entry{level: level, description: strings.TrimSpace(desc), hasColon: ok})
	}
	return entries, sc.Err()
}

func hasKeyword(line string) bool {
	for _, k := range keywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

func dedupe(entries []entry) []entry {
	type key struct{ level, description string }
	seen := make(map[key]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		k := key{e.level, e.description}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func toDiagnostics(entries []entry) []domain.Diagnostic {
	out := make([]domain.Diagnostic, 0, len(entries))
	for _, e := range entries {
		msg := e.level
		if e.hasColon {
			msg = e.level + ": " + e.description
		}
		sev, ok := severityOf(e.level)
		if !ok {
			sev, _ = severityOf(msg)
		}
		out = append(out, domain.Diagnostic{Severity: sev, Message: msg})
	}
	return out
}

func severityOf(s string) (domain.Severity, bool) {
	sev, found := domain.SeverityInfo, false
	for _, m := range levelMarkers {
		if strings.Contains(s, m.marker) {
			sev, found = m.severity, true
		}
	}
	return sev, found
}

// HasErrors reports whether any diagnostic is an error or worse.
func HasErrors(diags []domain.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity <= domain.SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics per severity.
func Count(diags []domain.Diagnostic) map[domain.Severity]int {
	out := make(map[domain.Severity]int)
	for _, d := range diags {
		out[d.Severity]++
	}
	return out
}
