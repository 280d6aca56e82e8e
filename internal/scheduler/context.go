package scheduler

import (
	"context"
	"log/slog"
	"slices"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/object"
)

// Context groups the backends command queues may be created for. Queues,
// user events and buffers hold a reference to their context.
type Context struct {
	object.Object

	backends []Backend
	logger   *slog.Logger
}

// NewContext creates a context over backends. The logger carried by ctx is
// captured and used by every object created in the context.
func NewContext(ctx context.Context, backends ...Backend) (*Context, error) {
	if len(backends) == 0 {
		return nil, newError(CodeInvalidValue, "create context", "no backends")
	}
	for i, b := range backends {
		if b == nil {
			return nil, newError(CodeInvalidDevice, "create context", "backend %d is nil", i)
		}
	}

	c := &Context{
		backends: slices.Clone(backends),
		logger:   ctxlog.FromContext(ctx),
	}
	c.Init(c, object.TypeContext, nil, func() {
		c.logger.Debug("Context destroyed.")
	})
	c.logger.Debug("Context created.", "context", c.Handle(), "backends", len(backends))
	return c, nil
}

// HasBackend reports whether b belongs to the context.
func (c *Context) HasBackend(b Backend) bool {
	return slices.Contains(c.backends, b)
}

// Backends returns the backends of the context.
func (c *Context) Backends() []Backend {
	return slices.Clone(c.backends)
}

// Logger returns the logger captured at creation.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}
