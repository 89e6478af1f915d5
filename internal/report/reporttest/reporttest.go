// Package reporttest builds synthetic SWMM reports with the same line layout
// as the model's output, for tests and fixture generation.
package reporttest

import (
	"fmt"
	"strings"
)

const rule = "  --------------------------------------------------------------"

// Row is one data line of a table.
type Row struct {
	Date   string
	Time   string
	Values []string
}

// Table describes one time series table of a report.
type Table struct {
	Name    string // marker text, e.g. "Node J1"
	Columns []string
	Units   []string
	Rows    []Row

	// LabelsOnHeader puts the Date/Time labels on the header row, as
	// subcatchment tables do. Node and link tables carry them on the units row.
	LabelsOnHeader bool

	// VariableChange closes this table with a "***" banner instead of the
	// next marker, as the report does when it switches object type.
	VariableChange bool
	// ClosedBanner adds the closing asterisk line under a VariableChange
	// banner.
	ClosedBanner bool
}

// Report is a whole synthetic report.
type Report struct {
	Preamble []string
	Tables   []Table
	// NoFooter omits the "Analysis begun on" footer so the last table is
	// never closed.
	NoFooter bool
}

// Lines renders the report line by line.
func (r Report) Lines() []string {
	var out []string
	out = append(out,
		"",
		"  EPA STORM WATER MANAGEMENT MODEL - VERSION 5.1 (Build 5.1.015)",
		"  --------------------------------------------------------------",
		"",
	)
	out = append(out, r.Preamble...)
	out = append(out, "", "  ******************", "  Time Series Results", "  ******************", "")

	for _, t := range r.Tables {
		out = append(out, "  <<< "+t.Name+" >>>", rule)
		out = append(out, t.headerLines()...)
		out = append(out, rule)
		for _, row := range t.Rows {
			out = append(out, row.line())
		}
		if t.VariableChange {
			out = append(out, "", "", "", "", "", "",
				"  ******************",
				"  Next Object Results")
			if t.ClosedBanner {
				out = append(out, "  ******************")
			}
			out = append(out, "")
			continue
		}
		out = append(out, "", "", "", "")
	}

	if !r.NoFooter {
		out = append(out,
			"  Analysis begun on:  Wed Mar 18 20:00:01 2020",
			"  Analysis ended on:  Wed Mar 18 20:00:03 2020",
			"  Total elapsed time: 00:00:02",
		)
	}
	return out
}

// String renders the report as newline-terminated text.
func (r Report) String() string {
	return strings.Join(r.Lines(), "\n") + "\n"
}

func (t Table) headerLines() []string {
	var header, units strings.Builder
	if t.LabelsOnHeader {
		header.WriteString(fmt.Sprintf("  %-10s  %-8s", "Date", "Time"))
		units.WriteString(strings.Repeat(" ", 22))
	} else {
		header.WriteString(strings.Repeat(" ", 22))
		units.WriteString(fmt.Sprintf("  %-10s  %-8s", "Date", "Time"))
	}
	for _, c := range t.Columns {
		header.WriteString(fmt.Sprintf("%10s", c))
	}
	for _, u := range t.Units {
		units.WriteString(fmt.Sprintf("%10s", u))
	}
	return []string{header.String(), units.String()}
}

func (r Row) line() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-10s  %-8s", r.Date, r.Time))
	for _, v := range r.Values {
		b.WriteString(fmt.Sprintf("%10s", v))
	}
	return b.String()
}

// Series returns n rows starting at date/start with a fixed step in minutes.
// Each column value is the row index times the column's 1-based position
// divided by ten, formatted with three decimals.
func Series(date string, startHour, stepMinutes, n, columns int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		minutes := startHour*60 + i*stepMinutes
		vals := make([]string, columns)
		for c := range vals {
			vals[c] = fmt.Sprintf("%.3f", float64(i*(c+1))/10)
		}
		rows[i] = Row{
			Date:   date,
			Time:   fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60),
			Values: vals,
		}
	}
	return rows
}
