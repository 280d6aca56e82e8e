// Package kernels holds the named kernels a workload can run on an NDRange
// or task command. A kernel is built from a cty object of arguments; string
// arguments naming buffers are resolved by the caller.
package kernels

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/burstqueue/internal/memobject"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// Resolver returns the buffer declared under name.
type Resolver func(name string) (*memobject.Buffer, error)

// Registered is the constructor side of a kernel.
type Registered struct {
	// Args returns a pointer to the struct the argument object is decoded
	// into with gocty. Fields carry `cty` tags; every field is required.
	Args func() any
	New  func(args any, resolve Resolver) (scheduler.Kernel, error)
}

// Kernels holds all the registered kernels.
type Kernels struct {
	all map[string]*Registered
}

// New creates an empty registry.
func New() *Kernels {
	return &Kernels{
		all: make(map[string]*Registered),
	}
}

// Register adds a kernel under name. Registering a name twice is a
// programming error.
func (r *Kernels) Register(name string, k *Registered) {
	if _, exists := r.all[name]; exists {
		panic(fmt.Sprintf("kernel with name '%s' already registered", name))
	}
	slog.Debug("Registering kernel.", "name", name)
	r.all[name] = k
}

// Has reports whether name is registered.
func (r *Kernels) Has(name string) bool {
	_, ok := r.all[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Kernels) Names() []string {
	names := make([]string, 0, len(r.all))
	for name := range r.all {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build decodes args and constructs the kernel registered under name. A null
// args value is treated as an empty object.
func (r *Kernels) Build(name string, args cty.Value, resolve Resolver) (scheduler.Kernel, error) {
	k, ok := r.all[name]
	if !ok {
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
	if args == cty.NilVal || args.IsNull() {
		args = cty.EmptyObjectVal
	}
	in := k.Args()
	if err := gocty.FromCtyValue(args, in); err != nil {
		return nil, fmt.Errorf("kernel %q: invalid arguments: %w", name, err)
	}
	kernel, err := k.New(in, resolve)
	if err != nil {
		return nil, fmt.Errorf("kernel %q: %w", name, err)
	}
	return kernel, nil
}
