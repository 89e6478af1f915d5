package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swmm_adapter"

// Metrics holds the Prometheus counters and histograms for one adapter invocation.
type Metrics struct {
	PhaseRuns     *prometheus.CounterVec   // labels: phase={pre,run,post}, outcome={success,error}
	PhaseDuration *prometheus.HistogramVec // labels: phase

	// Report parsing.
	ReportTables prometheus.Counter
	ReportRows   prometheus.Counter

	// Input file rewriting.
	CurvesReplaced  prometheus.Counter
	CurvesUnmatched prometheus.Counter
	RuleSeries      prometheus.Counter
	OptionsUpdated  prometheus.Counter

	RainfallSamples  prometheus.Counter
	ModelRunDuration prometheus.Histogram
	DatasetStations  *prometheus.GaugeVec   // labels: kind={node,link}
	Diagnostics      *prometheus.CounterVec // labels: level
	TablesPublished  *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		PhaseRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_runs_total",
			Help:      "Adapter phase invocations by phase and outcome.",
		}, []string{"phase", "outcome"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of an adapter phase.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"phase"}),
		ReportTables: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_tables_total",
			Help:      "Time series tables parsed from the model report.",
		}),
		ReportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Data rows parsed from the model report.",
		}),
		CurvesReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curves_replaced_total",
			Help:      "Curves in the input file replaced with FEWS rating curves.",
		}),
		CurvesUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curves_unmatched_total",
			Help:      "FEWS rating curves with no matching curve in the input file.",
		}),
		RuleSeries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_series_total",
			Help:      "Control rule series appended to the input file.",
		}),
		OptionsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "options_updated_total",
			Help:      "Simulation window options rewritten in the input file.",
		}),
		RainfallSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rainfall_samples_total",
			Help:      "Rainfall samples written to the rain gauge file.",
		}),
		ModelRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_run_duration_seconds",
			Help:      "Duration of the model executable run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		DatasetStations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_stations",
			Help:      "Stations written to the output dataset by kind.",
		}, []string{"kind"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics written to the FEWS diagnostics file by level.",
		}, []string{"level"}),
		TablesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_published_total",
			Help:      "Table summaries published to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PhaseRuns,
		m.PhaseDuration,
		m.ReportTables,
		m.ReportRows,
		m.CurvesReplaced,
		m.CurvesUnmatched,
		m.RuleSeries,
		m.OptionsUpdated,
		m.RainfallSamples,
		m.ModelRunDuration,
		m.DatasetStations,
		m.Diagnostics,
		m.TablesPublished,
	}
}

// NewMetrics creates and registers all adapter metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}
	return nil
}

// WriteTextfile writes the gathered metrics to path in the text exposition
// format read by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
