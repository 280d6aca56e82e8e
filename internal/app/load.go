package app

import (
	"fmt"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/workload"
)

// LoadWorkload reads the workload files under the configured path and checks
// that every kernel they launch is registered.
func (a *App) LoadWorkload() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Loading workload...", "workload_path", a.config.WorkloadPath)

	w, err := workload.Load(a.ctx, a.config.WorkloadPath)
	if err != nil {
		return err
	}
	for _, c := range w.Commands {
		if c.Kernel != "" && !a.kernels.Has(c.Kernel) {
			return fmt.Errorf("%s: command %q: unknown kernel %q", c.File, c.Name, c.Kernel)
		}
	}

	a.workload = w
	logger.Info("Workload loaded successfully.", "queues", len(w.Queues), "buffers", len(w.Buffers), "commands", len(w.Commands))
	return nil
}
