package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/notify"
	"github.com/specialistvlad/burstqueue/internal/report"
	"github.com/specialistvlad/burstqueue/internal/runner"
)

// ErrCommandsFailed is returned by Run when the workload ran to the end but
// at least one command failed.
var ErrCommandsFailed = errors.New("commands failed")

// Run executes the loaded workload, prints the report to the output writer
// and writes the msgpack report when a path is configured. The report is
// returned whenever the run got as far as producing one.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	if len(a.workload.Commands) == 0 {
		a.logger.Warn("No commands found in workload, execution not required.")
		return &report.Report{Workload: a.config.WorkloadPath}, nil
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	var trackers []runner.Tracker
	var notifier *notify.Notifier
	if a.config.NotifyURL != "" {
		n, err := notify.Dial(ctx, notify.Options{URL: a.config.NotifyURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer n.Close()
		notifier = n
		trackers = append(trackers, n)
	}

	a.logger.Info("🚀 Starting run...", "workers", a.config.Workers)
	rep, runErr := runner.New(a.kernels, a.config.Workers, trackers...).Run(ctx, a.workload)
	if rep == nil {
		return nil, fmt.Errorf("run failed: %w", runErr)
	}
	rep.Workload = a.config.WorkloadPath
	a.logger.Info("🏁 Run finished.", "duration", rep.Duration)
	if notifier != nil {
		notifier.Finished(rep)
	}

	if err := report.WriteText(a.outW, rep, a.config.Color); err != nil {
		return rep, fmt.Errorf("failed to print report: %w", err)
	}
	if a.config.ReportPath != "" {
		if err := report.WriteFile(a.config.ReportPath, rep); err != nil {
			return rep, err
		}
		a.logger.Info("Report written.", "path", a.config.ReportPath)
	}

	if runErr != nil {
		return rep, fmt.Errorf("run interrupted: %w", runErr)
	}
	if _, failed := rep.Counts(); failed > 0 {
		return rep, fmt.Errorf("%w: %d of %d", ErrCommandsFailed, failed, len(rep.Commands))
	}

	a.logger.Debug("App.Run method finished.")
	return rep, nil
}
