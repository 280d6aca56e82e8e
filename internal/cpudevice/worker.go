package cpudevice

import (
	"context"
	"fmt"

	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// worker is the pull loop of a single worker goroutine.
func (d *Device) worker(ctx context.Context, workerID int) error {
	logger := d.logger.With("workerID", workerID)
	logger.Debug("Worker started.")

	for {
		e, group, ok := d.getEvent()
		if !ok {
			break
		}
		workerLogger := logger.With("event", e.Handle(), "command", e.CommandType())
		data := e.BackendData().(*eventData)

		err := ctx.Err()
		if err == nil {
			if group == 0 {
				if q := e.Queue(); q != nil && q.Properties().Profiling {
					e.UpdateTiming(scheduler.TimingStart)
				}
				if serr := e.SetStatus(scheduler.Running); serr != nil {
					workerLogger.Debug("Event was not started.", "error", serr)
				}
			}
			err = d.execute(e, data, group)
		}
		if err != nil {
			workerLogger.Error("Event execution failed.", "group", group, "error", err)
			data.record(err)
		}

		if data.remaining.Add(-1) == 0 {
			d.finish(e, data)
		}
	}

	logger.Debug("Worker finished.")
	return nil
}

// finish reports the terminal status once every group has run.
func (d *Device) finish(e *scheduler.Event, data *eventData) {
	if q := e.Queue(); q != nil && q.Properties().Profiling {
		e.UpdateTiming(scheduler.TimingEnd)
	}
	status := scheduler.Complete
	if data.err != nil {
		status = scheduler.StatusFromCode(scheduler.CodeOf(data.err))
	}
	if err := e.SetStatus(status); err != nil {
		d.logger.Warn("Event status could not be reported.", "event", e.Handle(), "error", err)
	}
}

func (d *Device) execute(e *scheduler.Event, data *eventData, group int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch c := e.Command().(type) {
	case *scheduler.ReadBuffer:
		return c.Buffer.ReadAt(c.Dst, c.Offset)
	case *scheduler.WriteBuffer:
		return c.Buffer.WriteAt(c.Src, c.Offset)
	case *scheduler.CopyBuffer:
		return c.Src.CopyTo(c.Dst, c.SrcOffset, c.DstOffset, c.Size)
	case *scheduler.FillBuffer:
		return c.Buffer.Fill(c.Pattern, c.Offset, c.Size)
	case *scheduler.NativeKernel:
		return c.Func()
	case *scheduler.NDRangeKernel:
		return c.Kernel.Run(data.groupAt(group))
	default:
		return fmt.Errorf("unsupported command %s", e.CommandType())
	}
}
