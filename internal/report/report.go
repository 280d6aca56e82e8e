// Package report renders the outcome of a run: a text summary for humans and
// a msgpack file for tools.
package report

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"github.com/vmihailenco/msgpack/v5"
)

// Report is the outcome of one run.
type Report struct {
	Workload  string        `msgpack:"workload"`
	StartedAt time.Time     `msgpack:"started_at"`
	Duration  time.Duration `msgpack:"duration"`
	Commands  []Command     `msgpack:"commands"`
}

// Command is the outcome of one command.
type Command struct {
	Name   string `msgpack:"name"`
	Kind   string `msgpack:"kind"`
	Queue  string `msgpack:"queue,omitempty"`
	Status string `msgpack:"status"`
	Code   int32  `msgpack:"code"`
	Error  string `msgpack:"error,omitempty"`

	// Profiling counters in nanoseconds, zero when the queue does not profile.
	Queued int64 `msgpack:"queued,omitempty"`
	Submit int64 `msgpack:"submit,omitempty"`
	Start  int64 `msgpack:"start,omitempty"`
	End    int64 `msgpack:"end,omitempty"`

	// Output holds the bytes of a buffer read.
	Output []byte `msgpack:"output,omitempty"`
}

// Failed reports whether the command ended in an error status.
func (c Command) Failed() bool { return c.Code < 0 }

// Elapsed returns the execution time, zero without profiling.
func (c Command) Elapsed() time.Duration {
	if c.Start == 0 || c.End == 0 {
		return 0
	}
	return time.Duration(c.End - c.Start)
}

// Counts returns the number of completed and failed commands.
func (r *Report) Counts() (completed, failed int) {
	for _, c := range r.Commands {
		switch {
		case c.Failed():
			failed++
		case c.Status == "complete":
			completed++
		}
	}
	return completed, failed
}

// WriteText prints one line per command followed by a summary. Status
// columns are coloured when colored is set.
func WriteText(w io.Writer, r *Report, colored bool) error {
	paint := func(s string, style color.Color) string {
		if !colored {
			return s
		}
		return style.Render(s)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tKIND\tQUEUE\tSTATUS\tELAPSED\tDETAIL")
	for _, c := range r.Commands {
		style := color.Green
		if c.Failed() {
			style = color.Red
		} else if c.Status != "complete" {
			style = color.Yellow
		}
		elapsed := "-"
		if d := c.Elapsed(); d > 0 {
			elapsed = d.String()
		}
		detail := c.Error
		if detail == "" && c.Output != nil {
			detail = fmt.Sprintf("% x", c.Output)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Name, c.Kind, orDash(c.Queue), paint(c.Status, style), elapsed, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	completed, failed := r.Counts()
	summary := fmt.Sprintf("%d commands, %d complete, %d failed in %s", len(r.Commands), completed, failed, r.Duration.Round(time.Microsecond))
	if failed > 0 {
		summary = paint(summary, color.Red)
	} else {
		summary = paint(summary, color.Green)
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Encode writes r to w as msgpack.
func Encode(w io.Writer, r *Report) error {
	return msgpack.NewEncoder(w).Encode(r)
}

// Decode reads a report written by Encode.
func Decode(rd io.Reader) (*Report, error) {
	var r Report
	if err := msgpack.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// WriteFile writes r to path as msgpack.
func WriteFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return f.Close()
}

// ReadFile reads a report written by WriteFile.
func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
