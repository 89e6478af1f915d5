// Command genmock writes a synthetic model run directory for local testing:
// a report with node and link tables, the matching units lookup and a
// template input file. The report uses the same line layout as the model,
// so the adapter's post phase and cmd/validate can run against it.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/model \
//	  -nodes 4 -links 3 -steps 288 -step-minutes 5
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/report/reporttest"
)

const reportDateLayout = "01/02/2006"

// Column layouts of the generated tables, as the model reports them in SI units.
var (
	nodeColumns = []string{"Inflow", "Flooding", "Depth", "Head"}
	nodeUnits   = []string{"CMS", "CMS", "meters", "meters"}
	linkColumns = []string{"Flow", "Velocity", "Depth", "Capacity"}
	linkUnits   = []string{"CMS", "m/sec", "meters", "ratio"}
)

const unitsLookup = `SWMM,UDUNITS,long_name,standard_name
CMS,m3 s-1,discharge,water_volume_transport_in_river_channel
meters,m,depth,water_surface_height_above_reference_datum
m/sec,m s-1,velocity,water_velocity
ratio,1,capacity,fraction_of_capacity
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the generated model files")
	name := flag.String("name", "DonRiver", "model name used for the .rpt and .inp file names")
	nodes := flag.Int("nodes", 3, "number of node tables")
	links := flag.Int("links", 2, "number of link tables")
	steps := flag.Int("steps", 12, "number of report time steps")
	stepMinutes := flag.Int("step-minutes", 5, "report time step in minutes")
	start := flag.String("start", "2020-03-18T20:00:00Z", "first report time (RFC 3339, whole hours)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *nodes < 0 || *links < 0 || *nodes+*links == 0 {
		return fmt.Errorf("at least one node or link table is required")
	}
	if *steps < 1 || *stepMinutes < 1 {
		return fmt.Errorf("-steps and -step-minutes must be positive")
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if t0.Minute() != 0 || t0.Second() != 0 {
		return fmt.Errorf("-start must be on a whole hour")
	}
	if t0.Hour()*60+(*steps-1)**stepMinutes >= 24*60 {
		return fmt.Errorf("report must end on the day it starts; reduce -steps or -step-minutes")
	}

	rpt := buildReport(t0, *nodes, *links, *steps, *stepMinutes)
	end := t0.Add(time.Duration((*steps-1)**stepMinutes) * time.Minute)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	files := map[string]string{
		*name + ".rpt":       rpt.String(),
		*name + ".inp":       templateInput(t0, end, *nodes, *links),
		"UDUNITS_lookup.csv": unitsLookup,
	}
	for file, content := range files {
		path := filepath.Join(*out, file)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
		log.Printf("wrote %s", path)
	}

	log.Printf("tables: %d nodes, %d links, %d steps of %d minutes", *nodes, *links, *steps, *stepMinutes)
	return nil
}

func buildReport(t0 time.Time, nodes, links, steps, stepMinutes int) reporttest.Report {
	date := t0.Format(reportDateLayout)
	r := reporttest.Report{
		Preamble: []string{"  WARNING 04: minimum elevation drop used for Conduit C1"},
	}
	for i := 1; i <= nodes; i++ {
		r.Tables = append(r.Tables, reporttest.Table{
			Name:    fmt.Sprintf("Node J%d", i),
			Columns: nodeColumns,
			Units:   nodeUnits,
			Rows:    reporttest.Series(date, t0.Hour(), stepMinutes, steps, len(nodeColumns)),
		})
	}
	for i := 1; i <= links; i++ {
		r.Tables = append(r.Tables, reporttest.Table{
			Name:    fmt.Sprintf("Link C%d", i),
			Columns: linkColumns,
			Units:   linkUnits,
			Rows:    reporttest.Series(date, t0.Hour(), stepMinutes, steps, len(linkColumns)),
		})
	}
	// The model switches object type with a banner instead of a marker.
	if nodes > 0 && links > 0 {
		r.Tables[nodes-1].VariableChange = true
		r.Tables[nodes-1].ClosedBanner = true
	}
	return r
}

// templateInput returns an input file with the sections the adapter rewrites
// and one rating curve per link.
func templateInput(start, end time.Time, nodes, links int) string {
	var b strings.Builder
	b.WriteString("[TITLE]\n;;Generated by genmock\n\n[OPTIONS]\n")
	fmt.Fprintf(&b, "%-21s%s\n", "FLOW_UNITS", "CMS")
	fmt.Fprintf(&b, "%-21s%s\n", "START_DATE", start.Format(reportDateLayout))
	fmt.Fprintf(&b, "%-21s%s\n", "START_TIME", start.Format("15:04:05"))
	fmt.Fprintf(&b, "%-21s%s\n", "REPORT_START_DATE", start.Format(reportDateLayout))
	fmt.Fprintf(&b, "%-21s%s\n", "REPORT_START_TIME", start.Format("15:04:05"))
	fmt.Fprintf(&b, "%-21s%s\n", "END_DATE", end.Format(reportDateLayout))
	fmt.Fprintf(&b, "%-21s%s\n", "END_TIME", end.Format("15:04:05"))

	b.WriteString("\n[JUNCTIONS]\n")
	for i := 1; i <= nodes; i++ {
		fmt.Fprintf(&b, "J%-16d%-11d%d\n", i, 100-i, 5)
	}

	b.WriteString("\n[CURVES]\n")
	for i := 1; i <= links; i++ {
		id := fmt.Sprintf("Dam%d", i)
		fmt.Fprintf(&b, "%-17s%-11s%-11s%s\n", id, "Rating", "0", "0")
		fmt.Fprintf(&b, "%-17s%-11s%-11s%s\n", id, "", "1", "2.5")
		fmt.Fprintf(&b, "%-17s%-11s%-11s%s\n", id, "", "2", "10")
		b.WriteString("\n")
	}

	b.WriteString("[CONTROLS]\nRULE Default\nIF SIMULATION TIME > 0\nTHEN PUMP P1 STATUS = OFF\n\n[REPORT]\nINPUT NO\nNODES ALL\nLINKS ALL\n")
	return b.String()
}
