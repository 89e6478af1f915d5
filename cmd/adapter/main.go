// Command swmm-fews-adapter is the Delft-FEWS general adapter for EPA-SWMM.
// FEWS calls it once per phase around every forecast run:
//
//	swmm-fews-adapter --run_info run_info.xml pre
//	swmm-fews-adapter --run_info run_info.xml run
//	swmm-fews-adapter --run_info run_info.xml post
//
// Each phase writes its log to log/<phase>_adapter.log next to the run file
// and finishes by writing the FEWS diagnostics file named in the run file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/kafka"
	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/swmm"
	"github.com/couchcryptid/swmm-fews-adapter/internal/config"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/diagnostics"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/observability"
	"github.com/couchcryptid/swmm-fews-adapter/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

const program = "swmm-fews-adapter"

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	long  string
}

var commands = []command{
	{
		name:  pipeline.PhasePre,
		short: "Prepare the model inputs from the FEWS exports",
		long: `Update the simulation window, rating curves and control rules in the
model input file, and convert the FEWS rainfall NetCDF into rain.dat.
`,
	},
	{
		name:  pipeline.PhaseRun,
		short: "Run the EPA-SWMM model",
		long: `Run the model executable named in the run file with the work directory
as the current directory. A Run_model.bat record of the command is left
in the work directory.
`,
	},
	{
		name:  pipeline.PhasePost,
		short: "Convert the model report into FEWS NetCDF files",
		long: `Check the model report for errors, then write the node and link time
series as NetCDF files for FEWS to import.
`,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "%s: EPA-SWMM adapter for Delft-FEWS\n\n", program)
	fmt.Fprintf(w, "Usage:\n  %s --run_info <run_info.xml> <phase>\n\n", program)
	fmt.Fprintf(w, "Phases:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-6s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun '%s help <phase>' for details on a specific phase.\n", program)
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s --run_info <run_info.xml> %s\n\n%s", program, cmd.name, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "%s: unknown phase %q\n\nRun '%s help' for usage.\n", program, name, program)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, observability.NewMetrics(), prometheus.DefaultGatherer))
}

// invocation is a parsed command line. An empty phase means help was printed.
type invocation struct {
	runInfo string
	phase   string
}

var errHelp = errors.New("help requested")

func parseArgs(args []string, stdout, stderr io.Writer) (invocation, error) {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	runInfo := fs.String("run_info", "", "path to the FEWS run_info.xml file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return invocation{}, errHelp
		}
		return invocation{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stdout)
		return invocation{}, errHelp
	}
	if rest[0] == "help" {
		if len(rest) >= 2 {
			printCommandHelp(stdout, rest[1])
		} else {
			printUsage(stdout)
		}
		return invocation{}, errHelp
	}
	// Flags may also follow the phase.
	if len(rest) > 1 {
		if err := fs.Parse(rest[1:]); err != nil {
			return invocation{}, err
		}
		if extra := fs.Args(); len(extra) > 0 {
			return invocation{}, fmt.Errorf("unexpected arguments after %s: %v", rest[0], extra)
		}
	}
	known := false
	for _, cmd := range commands {
		known = known || cmd.name == rest[0]
	}
	if !known {
		return invocation{}, fmt.Errorf("unknown phase %q\n\nRun '%s help' for usage", rest[0], program)
	}
	if *runInfo == "" {
		return invocation{}, errors.New("--run_info is required")
	}
	return invocation{runInfo: *runInfo, phase: rest[0]}, nil
}

// run executes one phase and returns the process exit code. It is the only
// place where a phase error turns into an exit status.
func run(args []string, stdout, stderr io.Writer, metrics *observability.Metrics, gatherer prometheus.Gatherer) int {
	inv, err := parseArgs(args, stdout, stderr)
	if errors.Is(err, errHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", program, err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "%s: failed to load config: %v\n", program, err)
		return 1
	}
	console := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Without a diagnostics path there is nowhere to report to FEWS.
	ri, riErr := config.LoadRunInfo(inv.runInfo)
	if ri == nil {
		console.Error("failed to load run info", "path", inv.runInfo, "error", riErr)
		fmt.Fprintf(stderr, "%s: failed to parse run_info file %s: %v\n", program, inv.runInfo, riErr)
		return 1
	}

	logFile, err := observability.OpenAdapterLog(ri.LogDir(), inv.phase)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", program, err)
		return 1
	}
	defer logFile.Close()

	clock := clockwork.NewRealClock()
	logger := slog.New(observability.Fanout(
		console.Handler(),
		observability.NewAdapterLogHandler(logFile, observability.ParseLevel(cfg.LogLevel), clock),
	))

	if riErr != nil {
		return finish(inv.phase, fmt.Errorf("load run info: %w", riErr), nil, cfg, ri, logger, metrics, gatherer, stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modelDiags, phaseErr := execute(ctx, inv.phase, cfg, ri, clock, logger, metrics)
	return finish(inv.phase, phaseErr, modelDiags, cfg, ri, logger, metrics, gatherer, stderr)
}

func execute(ctx context.Context, phase string, cfg *config.Config, ri *config.RunInfo, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics) ([]domain.Diagnostic, error) {
	attrs, err := dataset.LoadAttributes(cfg.DatasetAttributesFile)
	if err != nil {
		return nil, err
	}

	files := pipeline.NewFiles(logger)
	stages := pipeline.Stages{
		Inputs:   files,
		Writer:   files,
		Model:    swmm.NewRunner(cfg.ModelTimeout, clock, logger),
		Results:  files,
		Datasets: files,
	}
	if phase == pipeline.PhasePost && cfg.PublishEnabled() {
		publisher := kafka.NewPublisher(cfg, clock, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka publisher close error", "error", err)
			}
		}()
		stages.Publisher = publisher
	}

	return pipeline.New(ri, stages, attrs, clock, logger, metrics).Execute(ctx, phase)
}

// finish writes the diagnostics file from the phase log plus any model
// diagnostics, exports metrics and maps the phase error to an exit code.
func finish(phase string, phaseErr error, modelDiags []domain.Diagnostic, cfg *config.Config, ri *config.RunInfo,
	logger *slog.Logger, metrics *observability.Metrics, gatherer prometheus.Gatherer, stderr io.Writer) int {
	if phaseErr != nil {
		logger.Error("phase failed", "phase", phase, "error", phaseErr)
	} else {
		logger.Info("phase completed", "phase", phase)
	}

	logPath := observability.AdapterLogPath(ri.LogDir(), phase)
	logDiags, err := diagnostics.ReadFiles(logPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: errors occurred while checking the log file for warnings and errors, check %s: %v\n", program, logPath, err)
		return 1
	}
	diags := append(logDiags, modelDiags...)
	if err := diagnostics.WriteFile(ri.DiagnosticFile, diags); err != nil {
		fmt.Fprintf(stderr, "%s: write diagnostics: %v\n", program, err)
		return 1
	}
	for sev, n := range diagnostics.Count(diags) {
		metrics.Diagnostics.WithLabelValues(sev.String()).Add(float64(n))
	}

	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile, gatherer); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", program, err)
		}
	}

	if phaseErr != nil {
		return 1
	}
	return 0
}
