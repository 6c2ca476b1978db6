package gdb

import (
	"context"

	"github.com/go-delve/gdbtarget/pkg/mi"
)

// BreakpointOptionsResolver decides the options of each breakpoint just
// before it is inserted. An error fails that breakpoint only.
type BreakpointOptionsResolver interface {
	Resolve(ctx context.Context, loc mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error)
}

// ResolverFunc adapts a function to BreakpointOptionsResolver.
type ResolverFunc func(ctx context.Context, loc mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, loc mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error) {
	return f(ctx, loc, opts)
}

// DefaultBreakpointOptions keeps the options derived from the launch
// configuration.
type DefaultBreakpointOptions struct{}

// Resolve returns opts unchanged.
func (DefaultBreakpointOptions) Resolve(_ context.Context, _ mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error) {
	return opts, nil
}

// HardwareBreakpointOptions forces every breakpoint to be a hardware or a
// software breakpoint.
type HardwareBreakpointOptions struct {
	Hardware bool
}

// Resolve overrides the hardware flag.
func (r HardwareBreakpointOptions) Resolve(_ context.Context, _ mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error) {
	opts.Hardware = r.Hardware
	return opts, nil
}
