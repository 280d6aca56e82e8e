// Package notify streams the status changes of a run's commands to a
// socket.io server, so a dashboard can follow a long run live.
//
// Every change is emitted as a "command_status" event carrying the command
// name, the status and its code. Once the run is over a single "run_finished"
// event carries the totals.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/report"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

const (
	EventCommandStatus = "command_status"
	EventRunFinished   = "run_finished"
)

// Options configures Dial.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout bounds the initial connection. Zero means 15s.
	ConnectTimeout time.Duration
}

// Notifier emits run progress. It is safe for concurrent use; events are
// emitted from queue dispatchers and device workers.
type Notifier struct {
	logger *slog.Logger
	emit   func(event string, payload map[string]any)
	close  func()
}

// Dial connects to the socket.io server at opts.URL and waits for the
// connection to be established.
func Dial(ctx context.Context, opts Options) (*Notifier, error) {
	logger := ctxlog.FromContext(ctx).With("notify", opts.URL)
	logger.Debug("Connecting to notification server...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notify URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("notify URL %q needs a scheme and a host", opts.URL)
	}

	sopts := socket.DefaultOptions()
	sopts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(opts.Namespace, sopts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to notification server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.Connect()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	return newNotifier(logger,
		func(event string, payload map[string]any) { io.Emit(event, payload) },
		func() { io.Disconnect() },
	), nil
}

func newNotifier(logger *slog.Logger, emit func(string, map[string]any), disconnect func()) *Notifier {
	return &Notifier{logger: logger, emit: emit, close: disconnect}
}

// Track emits a command_status event for each status e reaches from now on,
// starting with the current one when it is Submitted or later. A status that
// is skipped over is not emitted.
func (n *Notifier) Track(ctx context.Context, name string, e *scheduler.Event) error {
	var last atomic.Int32
	last.Store(math.MaxInt32)
	send := func(e *scheduler.Event, status scheduler.Status) {
		if last.Swap(int32(status)) == int32(status) {
			return
		}
		n.logger.Debug("Emitting command status.", "command", name, "status", status)
		n.emit(EventCommandStatus, map[string]any{
			"command": name,
			"event":   uint64(e.Handle()),
			"status":  status.String(),
			"code":    int32(status.Code()),
		})
	}
	for _, st := range []scheduler.Status{scheduler.Submitted, scheduler.Running, scheduler.Complete} {
		if err := e.SetCallback(st, send); err != nil {
			return err
		}
	}
	return nil
}

// Finished emits the run_finished event for rep.
func (n *Notifier) Finished(rep *report.Report) {
	completed, failed := rep.Counts()
	n.emit(EventRunFinished, map[string]any{
		"workload":    rep.Workload,
		"commands":    len(rep.Commands),
		"complete":    completed,
		"failed":      failed,
		"duration_ms": rep.Duration.Milliseconds(),
	})
}

// Close disconnects from the server.
func (n *Notifier) Close() {
	n.logger.Debug("Disconnecting from notification server.")
	n.close()
}
