package kernels

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/burstqueue/internal/memobject"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// Builtins returns a registry holding every builtin kernel.
func Builtins() *Kernels {
	r := New()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins registers fill, iota, add, scale, sleep and fail.
//
// The buffer kernels treat buffers as byte arrays and touch byte i for the
// work item with linear id i, so the global size must not exceed the buffer.
func RegisterBuiltins(r *Kernels) {
	r.Register("fill", &Registered{
		Args: func() any { return new(fillArgs) },
		New: func(args any, resolve Resolver) (scheduler.Kernel, error) {
			in := args.(*fillArgs)
			out, err := resolve(in.Out)
			if err != nil {
				return nil, err
			}
			return &byteKernel{name: "fill", out: out, fn: func(int, []byte) byte { return byte(in.Value) }}, nil
		},
	})
	r.Register("iota", &Registered{
		Args: func() any { return new(iotaArgs) },
		New: func(args any, resolve Resolver) (scheduler.Kernel, error) {
			in := args.(*iotaArgs)
			out, err := resolve(in.Out)
			if err != nil {
				return nil, err
			}
			return &byteKernel{name: "iota", out: out, fn: func(i int, _ []byte) byte { return byte(in.Start + i) }}, nil
		},
	})
	r.Register("add", &Registered{
		Args: func() any { return new(addArgs) },
		New: func(args any, resolve Resolver) (scheduler.Kernel, error) {
			in := args.(*addArgs)
			bufs, err := resolveAll(resolve, in.A, in.B, in.Out)
			if err != nil {
				return nil, err
			}
			return &byteKernel{name: "add", out: bufs[2], in: bufs[:2], fn: func(_ int, v []byte) byte { return v[0] + v[1] }}, nil
		},
	})
	r.Register("scale", &Registered{
		Args: func() any { return new(scaleArgs) },
		New: func(args any, resolve Resolver) (scheduler.Kernel, error) {
			in := args.(*scaleArgs)
			buf, err := resolve(in.Buffer)
			if err != nil {
				return nil, err
			}
			return &byteKernel{name: "scale", out: buf, in: []*memobject.Buffer{buf}, fn: func(_ int, v []byte) byte { return v[0] * byte(in.Factor) }}, nil
		},
	})
	r.Register("sleep", &Registered{
		Args: func() any { return new(sleepArgs) },
		New: func(args any, _ Resolver) (scheduler.Kernel, error) {
			d, err := time.ParseDuration(args.(*sleepArgs).Duration)
			if err != nil {
				return nil, err
			}
			return &sleepKernel{d: d}, nil
		},
	})
	r.Register("fail", &Registered{
		Args: func() any { return new(failArgs) },
		New: func(args any, _ Resolver) (scheduler.Kernel, error) {
			return &failKernel{err: errors.New(args.(*failArgs).Message)}, nil
		},
	})
}

type fillArgs struct {
	Out   string `cty:"out"`
	Value int    `cty:"value"`
}

type iotaArgs struct {
	Out   string `cty:"out"`
	Start int    `cty:"start"`
}

type addArgs struct {
	A   string `cty:"a"`
	B   string `cty:"b"`
	Out string `cty:"out"`
}

type scaleArgs struct {
	Buffer string `cty:"buffer"`
	Factor int    `cty:"factor"`
}

type sleepArgs struct {
	Duration string `cty:"duration"`
}

type failArgs struct {
	Message string `cty:"message"`
}

func resolveAll(resolve Resolver, names ...string) ([]*memobject.Buffer, error) {
	out := make([]*memobject.Buffer, len(names))
	for i, name := range names {
		b, err := resolve(name)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// byteKernel computes out[i] from the bytes at i of its inputs.
type byteKernel struct {
	name string
	out  *memobject.Buffer
	in   []*memobject.Buffer
	fn   func(i int, in []byte) byte
}

func (k *byteKernel) Name() string { return k.name }

// Buffers implements scheduler.BufferArgs.
func (k *byteKernel) Buffers() []*memobject.Buffer {
	return append([]*memobject.Buffer{k.out}, k.in...)
}

func (k *byteKernel) Run(g scheduler.WorkGroup) error {
	vals := make([]byte, len(k.in))
	cell := make([]byte, 1)
	return g.Each(func(id [3]int) error {
		i := linearID(g, id)
		for j, b := range k.in {
			if err := b.ReadAt(cell, i); err != nil {
				return fmt.Errorf("%s: item %d: %w", k.name, i, err)
			}
			vals[j] = cell[0]
		}
		cell[0] = k.fn(i, vals)
		if err := k.out.WriteAt(cell, i); err != nil {
			return fmt.Errorf("%s: item %d: %w", k.name, i, err)
		}
		return nil
	})
}

// linearID flattens a global id relative to the global offset, the first
// dimension varying fastest.
func linearID(g scheduler.WorkGroup, id [3]int) int {
	x := id[0] - g.GlobalOffset[0]
	y := id[1] - g.GlobalOffset[1]
	z := id[2] - g.GlobalOffset[2]
	return x + g.GlobalSize[0]*(y+g.GlobalSize[1]*z)
}

type sleepKernel struct {
	d time.Duration
}

func (k *sleepKernel) Name() string { return "sleep" }

// Run sleeps once per work group.
func (k *sleepKernel) Run(scheduler.WorkGroup) error {
	time.Sleep(k.d)
	return nil
}

type failKernel struct {
	err error
}

func (k *failKernel) Name() string { return "fail" }

func (k *failKernel) Run(scheduler.WorkGroup) error { return k.err }
