package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/specialistvlad/burstqueue/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("burstqueue", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
burstqueue - Runs declarative command-queue workloads on a CPU device.

Usage:
  burstqueue [options] [WORKLOAD_PATH]

Arguments:
  WORKLOAD_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	workloadFlag := flagSet.String("workload", "", "Path to the workload file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workload file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", runtime.NumCPU(), "Number of CPU device workers.")
	reportFlag := flagSet.String("report", "", "Write a msgpack run report to this path.")
	notifyFlag := flagSet.String("notify-url", "", "Stream command status changes to this socket.io server.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Deadline for the whole run. 0 waits forever.")
	colorFlag := flagSet.Bool("color", true, "Colour the status column of the summary.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *workloadFlag != "" {
		path = *workloadFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Workload path determined.", "path", path)

	if path == "" {
		slog.Debug("No workload path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	if _, ok := app.ParseLogLevel(logLevel); !ok || logLevel == "" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		WorkloadPath:    path,
		ReportPath:      *reportFlag,
		NotifyURL:       *notifyFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		Workers:         *workersFlag,
		Timeout:         *timeoutFlag,
		Color:           *colorFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
